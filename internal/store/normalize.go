package store

import "github.com/agenthub/hub/internal/chat/pty"

// normalize brings a freshly loaded (possibly old or hand-edited) document
// into the shape every other package can rely on: non-nil collections,
// bounded lists clamped to their caps, and a current schema version. It is
// idempotent — running it twice on an already-normalized document is a
// no-op (§8 I1).
func normalize(doc *Document) {
	if doc.Projects == nil {
		doc.Projects = map[string]*Project{}
	}
	if doc.Chats == nil {
		doc.Chats = map[string]*Chat{}
	}

	for _, p := range doc.Projects {
		normalizeProject(p)
	}
	for _, c := range doc.Chats {
		normalizeChat(c)
	}

	doc.SchemaVersion = SchemaVersion
}

func normalizeProject(p *Project) {
	if p.DefaultROMounts == nil {
		p.DefaultROMounts = []Mount{}
	}
	if p.DefaultRWMounts == nil {
		p.DefaultRWMounts = []Mount{}
	}
	if p.DefaultEnvVars == nil {
		p.DefaultEnvVars = []EnvVar{}
	}
	p.DefaultEnvVars = stripReservedEnvKey(p.DefaultEnvVars)
	if p.CredentialIDs == nil {
		p.CredentialIDs = []string{}
	}
	if p.CredentialMode == "" {
		p.CredentialMode = CredentialAuto
	}
	if p.BuildStatus == "" {
		p.BuildStatus = BuildPending
	}
}

func normalizeChat(c *Chat) {
	if c.ROMounts == nil {
		c.ROMounts = []Mount{}
	}
	if c.RWMounts == nil {
		c.RWMounts = []Mount{}
	}
	if c.EnvVars == nil {
		c.EnvVars = []EnvVar{}
	}
	c.EnvVars = stripReservedEnvKey(c.EnvVars)
	if c.AgentArgs == nil {
		c.AgentArgs = []string{}
	}
	if c.Status == "" {
		c.Status = ChatStopped
	}

	if c.TitlePromptHistory == nil {
		c.TitlePromptHistory = []string{}
	}
	if len(c.TitlePromptHistory) > MaxTitlePromptHistory {
		c.TitlePromptHistory = c.TitlePromptHistory[len(c.TitlePromptHistory)-MaxTitlePromptHistory:]
	}
	if c.TitleStatus == "" {
		c.TitleStatus = TitleIdle
	}
	if c.TitleCached != "" && pty.LooksLikeTerminalControlPayload(c.TitleCached) {
		// A prompt line that was actually an unsolicited terminal response
		// (e.g. an OSC color query reply) must never surface as a title.
		c.TitleCached = ""
		c.TitleStatus = TitleIdle
	}

	if c.Artifacts == nil {
		c.Artifacts = []Artifact{}
	}
	if len(c.Artifacts) > MaxArtifacts {
		c.Artifacts = c.Artifacts[len(c.Artifacts)-MaxArtifacts:]
	}
	if c.CurrentArtifactIDs == nil {
		c.CurrentArtifactIDs = []string{}
	}
	if c.ArtifactPromptHistory == nil {
		c.ArtifactPromptHistory = []ArtifactPromptGroup{}
	}
	if len(c.ArtifactPromptHistory) > MaxArtifactPromptGroups {
		c.ArtifactPromptHistory = c.ArtifactPromptHistory[len(c.ArtifactPromptHistory)-MaxArtifactPromptGroups:]
	}

	// A chat loaded from disk never has a live process; a restart cannot
	// have a running PTY attached to it, so any non-terminal status left
	// over from an unclean shutdown is downgraded (the sweeper will also
	// re-check this once running, §4.E "clean_start").
	if c.Status == ChatStarting || c.Status == ChatRunning {
		c.Status = ChatFailed
		c.PID = 0
	}
}

// stripReservedEnvKey drops any entry naming ReservedEnvKey, which the hub
// always injects itself via the credential vault and never persists (§3).
func stripReservedEnvKey(vars []EnvVar) []EnvVar {
	out := vars[:0:0]
	for _, v := range vars {
		if v.Key == ReservedEnvKey {
			continue
		}
		out = append(out, v)
	}
	if out == nil {
		out = []EnvVar{}
	}
	return out
}

// TitleFingerprintPrompts returns at most MaxTitleFingerprintPrompts of the
// most recent prompt history entries, the window the Chat Title Pipeline
// fingerprints to decide whether a retitle is needed (§4.H).
func TitleFingerprintPrompts(c *Chat) []string {
	h := c.TitlePromptHistory
	if len(h) <= MaxTitleFingerprintPrompts {
		return h
	}
	return h[len(h)-MaxTitleFingerprintPrompts:]
}
