package agenttools

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agenthub/hub/internal/platform/apierr"
	"github.com/agenthub/hub/internal/store"
)

// MaxArtifactNameChars and MaxArtifactRelPathChars cap the display name and
// relative path accepted on publish (§4.G, §7 "oversize names and paths are
// truncated to their caps").
const (
	MaxArtifactNameChars    = 256
	MaxArtifactRelPathChars = 1024
)

// PublishArtifact writes data to relPath under workspace (containment
// checked), then records or overwrites the chat's artifact entry for that
// path (§4.G).
func PublishArtifact(st *store.Store, chatID, workspace, name, relPath string, data []byte) (*store.Artifact, error) {
	if relPath == "" {
		return nil, apierr.InvalidRequest("artifact path is required")
	}
	if len(name) > MaxArtifactNameChars {
		name = name[:MaxArtifactNameChars]
	}
	if len(relPath) > MaxArtifactRelPathChars {
		relPath = relPath[:MaxArtifactRelPathChars]
	}

	resolved, err := resolveUnderWorkspace(workspace, relPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, apierr.Internal("create artifact directory", err)
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return nil, apierr.Internal("write artifact file", err)
	}

	now := time.Now().UTC()
	var artifact store.Artifact
	err = st.Mutate("artifact_published", func(doc *store.Document) error {
		c, ok := doc.Chats[chatID]
		if !ok {
			return apierr.NotFound("chat %s not found", chatID)
		}

		idx := -1
		for i := range c.Artifacts {
			if c.Artifacts[i].RelPath == relPath {
				idx = i
				break
			}
		}

		if idx >= 0 {
			c.Artifacts[idx].Name = name
			c.Artifacts[idx].SizeBytes = int64(len(data))
			c.Artifacts[idx].CreatedAt = now
			artifact = c.Artifacts[idx]
		} else {
			artifact = store.Artifact{
				ID:        uuid.New().String(),
				Name:      name,
				RelPath:   relPath,
				SizeBytes: int64(len(data)),
				CreatedAt: now,
			}
			c.Artifacts = append(c.Artifacts, artifact)
			if len(c.Artifacts) > store.MaxArtifacts {
				c.Artifacts = c.Artifacts[len(c.Artifacts)-store.MaxArtifacts:]
			}
		}

		c.CurrentArtifactIDs = appendBounded(c.CurrentArtifactIDs, artifact.ID, store.MaxArtifacts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

func appendBounded(ids []string, id string, max int) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	ids = append(ids, id)
	if len(ids) > max {
		ids = ids[len(ids)-max:]
	}
	return ids
}

// resolveUnderWorkspace joins relPath onto workspace and rejects any result
// that escapes it (§4.G, §7 "base path invalid outside workspace", I8).
func resolveUnderWorkspace(workspace, relPath string) (string, error) {
	cleanWorkspace := filepath.Clean(workspace)
	joined := filepath.Join(cleanWorkspace, relPath)
	prefix := cleanWorkspace + string(os.PathSeparator)
	if joined != cleanWorkspace && !strings.HasPrefix(joined+string(os.PathSeparator), prefix) {
		return "", apierr.InvalidRequest("artifact path escapes the chat workspace")
	}
	return joined, nil
}

// ArchiveCurrentArtifacts pushes the chat's current-prompt artifact ids
// into its prompt-grouped history and clears the current list, called when
// a new prompt is submitted (§4.F "archives any current-prompt artifact
// group into the prompt history stack").
func ArchiveCurrentArtifacts(st *store.Store, chatID, prompt string) error {
	return st.Mutate("artifact_prompt_archived", func(doc *store.Document) error {
		c, ok := doc.Chats[chatID]
		if !ok {
			return nil
		}
		if len(c.CurrentArtifactIDs) == 0 {
			return nil
		}
		group := store.ArtifactPromptGroup{
			Prompt:      prompt,
			ArtifactIDs: c.CurrentArtifactIDs,
			ArchivedAt:  time.Now().UTC(),
		}
		c.ArtifactPromptHistory = append(c.ArtifactPromptHistory, group)
		if len(c.ArtifactPromptHistory) > store.MaxArtifactPromptGroups {
			c.ArtifactPromptHistory = c.ArtifactPromptHistory[len(c.ArtifactPromptHistory)-store.MaxArtifactPromptGroups:]
		}
		c.CurrentArtifactIDs = nil
		return nil
	})
}
