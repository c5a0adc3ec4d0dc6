package title

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/platform/logger"
	"github.com/agenthub/hub/internal/store"
)

// CompletionModel is the chat-completion model used for the API-key
// generation path.
const CompletionModel = "gpt-4o-mini"

// NoCredentialsError is the fixed message persisted when neither an
// account login nor an API key is available (§4.H step 4).
const NoCredentialsError = "no OpenAI credentials connected"

// VaultView is the subset of secrets.Vault the pipeline needs to pick an
// auth path.
type VaultView interface {
	HasCodexAuth() bool
	OpenAIKeyValue() (string, bool)
}

// Pipeline runs the single-in-flight-per-chat title generation dispatcher.
type Pipeline struct {
	st         *store.Store
	bus        eventbus.Bus
	vault      VaultView
	codexCLI   string
	httpClient *http.Client
	log        *logger.Logger

	mu           sync.Mutex
	inflight     map[string]bool
	pendingRerun map[string]bool
}

// New constructs a Pipeline. codexCLIPath names the account-bound Codex CLI
// binary invoked for the account auth path.
func New(st *store.Store, bus eventbus.Bus, vault VaultView, codexCLIPath string, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Default()
	}
	return &Pipeline{
		st:           st,
		bus:          bus,
		vault:        vault,
		codexCLI:     codexCLIPath,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		log:          log,
		inflight:     make(map[string]bool),
		pendingRerun: make(map[string]bool),
	}
}

// RecordPrompt appends a submitted prompt to chatID's title prompt history
// (a repeat of the last entry is not appended again) and, if the resulting fingerprint differs from the cached one, schedules
// generation (§4.F "a submission triggers the title pipeline", §4.H step 1-3).
func (p *Pipeline) RecordPrompt(chatID, prompt string) error {
	err := p.st.Mutate("title_prompt_recorded", func(doc *store.Document) error {
		c, ok := doc.Chats[chatID]
		if !ok {
			return nil
		}
		if n := len(c.TitlePromptHistory); n > 0 && c.TitlePromptHistory[n-1] == prompt {
			return nil
		}
		c.TitlePromptHistory = append(c.TitlePromptHistory, prompt)
		return nil
	})
	if err != nil {
		return err
	}
	p.maybeDispatch(chatID)
	return nil
}

// Regenerate forces a fresh generation bypassing the fingerprint check
// (supplemented op, POST /api/chats/{id}/title-prompt/regenerate).
func (p *Pipeline) Regenerate(chatID string) error {
	err := p.st.Mutate("title_regenerate_requested", func(doc *store.Document) error {
		c, ok := doc.Chats[chatID]
		if !ok {
			return nil
		}
		c.TitleFingerprint = ""
		return nil
	})
	if err != nil {
		return err
	}
	p.maybeDispatch(chatID)
	return nil
}

func (p *Pipeline) maybeDispatch(chatID string) {
	prompts, cachedFingerprint, ok := p.snapshotPrompts(chatID)
	if !ok || len(prompts) == 0 {
		return
	}
	fingerprint, err := Fingerprint(prompts)
	if err != nil {
		p.log.Warn("title fingerprint compute failed", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	if fingerprint == cachedFingerprint {
		return
	}

	_ = p.st.Mutate("title_generation_pending", func(doc *store.Document) error {
		c, ok := doc.Chats[chatID]
		if !ok {
			return nil
		}
		c.TitleStatus = store.TitlePending
		return nil
	})

	p.mu.Lock()
	if p.inflight[chatID] {
		p.pendingRerun[chatID] = true
		p.mu.Unlock()
		return
	}
	p.inflight[chatID] = true
	p.mu.Unlock()

	go p.worker(chatID)
}

func (p *Pipeline) snapshotPrompts(chatID string) (prompts []string, cachedFingerprint string, ok bool) {
	p.st.View(func(doc *store.Document) {
		c, found := doc.Chats[chatID]
		if !found {
			return
		}
		ok = true
		cachedFingerprint = c.TitleFingerprint
		prompts = store.TitleFingerprintPrompts(c)
	})
	return prompts, cachedFingerprint, ok
}

// worker runs generation attempts for chatID until no rerun was requested
// during the last attempt (§4.H step 3).
func (p *Pipeline) worker(chatID string) {
	for {
		p.attempt(chatID)

		p.mu.Lock()
		if p.pendingRerun[chatID] {
			delete(p.pendingRerun, chatID)
			p.mu.Unlock()
			continue
		}
		delete(p.inflight, chatID)
		p.mu.Unlock()
		return
	}
}

func (p *Pipeline) attempt(chatID string) {
	prompts, _, ok := p.snapshotPrompts(chatID)
	if !ok || len(prompts) == 0 {
		return
	}
	fingerprint, err := Fingerprint(prompts)
	if err != nil {
		p.markError(chatID, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var title string
	var source store.TitleSource
	switch {
	case p.vault != nil && p.vault.HasCodexAuth():
		title, err = p.generateViaAccount(ctx, prompts)
		source = store.TitleSourceAccount
	default:
		apiKey, hasKey := "", false
		if p.vault != nil {
			apiKey, hasKey = p.vault.OpenAIKeyValue()
		}
		if !hasKey {
			p.markError(chatID, NoCredentialsError)
			return
		}
		title, err = p.generateViaAPIKey(ctx, apiKey, prompts)
		source = store.TitleSourceAPIKey
	}
	if err != nil {
		p.markError(chatID, err.Error())
		return
	}

	title = Truncate(FirstNonEmptyLine(title))
	if title == "" {
		p.markError(chatID, "generator returned an empty title")
		return
	}

	now := time.Now().UTC()
	_ = p.st.Mutate("title_generation_ready", func(doc *store.Document) error {
		c, ok := doc.Chats[chatID]
		if !ok {
			return nil
		}
		c.TitleCached = title
		c.TitleFingerprint = fingerprint
		c.TitleSource = source
		c.TitleStatus = store.TitleReady
		c.TitleError = ""
		c.TitleUpdatedAt = now
		return nil
	})
}

func (p *Pipeline) markError(chatID, message string) {
	now := time.Now().UTC()
	_ = p.st.Mutate("title_generation_failed", func(doc *store.Document) error {
		c, ok := doc.Chats[chatID]
		if !ok {
			return nil
		}
		c.TitleStatus = store.TitleError
		c.TitleError = message
		c.TitleUpdatedAt = now
		return nil
	})
}

// generateViaAccount spawns the account-bound Codex CLI in single-shot mode
// and reads its last message from a temp file (§4.H step 4).
func (p *Pipeline) generateViaAccount(ctx context.Context, prompts []string) (string, error) {
	tmp, err := os.CreateTemp("", "agent-hub-title-*.txt")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	promptText := systemInstruction() + "\n\n" + joinPrompts(prompts)
	cmd := exec.CommandContext(ctx, p.codexCLI, "exec", "--sandbox", "read-only", "--output-last-message", tmpPath, promptText)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("codex exec failed: %w: %s", err, stderr.String())
	}

	out, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type chatCompletionRequest struct {
	Model    string                  `json:"model"`
	Messages []chatCompletionMessage `json:"messages"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
}

// generateViaAPIKey calls the chat-completions API with a concise system
// instruction and the recent prompts (§4.H step 4).
func (p *Pipeline) generateViaAPIKey(ctx context.Context, apiKey string, prompts []string) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model: CompletionModel,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: systemInstruction()},
			{Role: "user", Content: joinPrompts(prompts)},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion returned status %d", resp.StatusCode)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func systemInstruction() string {
	return "Write a short, plain-text title (no quotes) summarizing the following coding task in at most a few words."
}

func joinPrompts(prompts []string) string {
	out := ""
	for i, p := range prompts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}
