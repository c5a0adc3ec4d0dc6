package title

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/agenthub/hub/internal/platform/canonjson"
)

// Model is the label recorded in the fingerprint payload; it does not
// select between generation paths (account vs API key both describe the
// same conceptual "title model"), it only versions the fingerprint itself.
const Model = "agent-hub-title-v1"

type fingerprintInput struct {
	Model    string   `json:"model"`
	MaxChars int      `json:"max_chars"`
	Prompts  []string `json:"prompts"`
}

// Fingerprint computes the canonical hash over {model, max_chars, prompts}
// used to dedup title generation (§4.H step 1).
func Fingerprint(prompts []string) (string, error) {
	data, err := canonjson.Marshal(fingerprintInput{
		Model:    Model,
		MaxChars: MaxTitleChars,
		Prompts:  prompts,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
