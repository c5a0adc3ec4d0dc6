// Package snapshot builds and caches per-project setup snapshot images
// (§4.D), the single-flight worker loop that clones a repo, runs its setup
// script inside a container via agent_cli, and commits the result to a
// content-addressed tag.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/agenthub/hub/internal/platform/canonjson"
	"github.com/agenthub/hub/internal/store"
)

// fingerprint is the exact shape hashed into a snapshot tag (§4.D): schema
// version, project id, setup script, base image, and default mounts/envs.
type fingerprint struct {
	SchemaVersion int             `json:"schema_version"`
	ProjectID     string          `json:"project_id"`
	SetupScript   string          `json:"setup_script"`
	BaseImage     store.BaseImageRef `json:"base_image"`
	ROMounts      []store.Mount   `json:"ro_mounts"`
	RWMounts      []store.Mount   `json:"rw_mounts"`
	EnvVars       []store.EnvVar  `json:"env_vars"`
}

// Tag computes the deterministic snapshot tag for p:
// setup-<project id prefix>-<sha256_16(canonical_json(fingerprint))>.
func Tag(p *store.Project) (string, error) {
	fp := fingerprint{
		SchemaVersion: store.SchemaVersion,
		ProjectID:     p.ID,
		SetupScript:   p.SetupScript,
		BaseImage:     p.BaseImage,
		ROMounts:      p.DefaultROMounts,
		RWMounts:      p.DefaultRWMounts,
		EnvVars:       p.DefaultEnvVars,
	}
	data, err := canonjson.Marshal(fp)
	if err != nil {
		return "", fmt.Errorf("canonicalize build fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	hash16 := hex.EncodeToString(sum[:])[:16]

	idPrefix := p.ID
	if len(idPrefix) > 8 {
		idPrefix = idPrefix[:8]
	}
	return fmt.Sprintf("setup-%s-%s", idPrefix, hash16), nil
}
