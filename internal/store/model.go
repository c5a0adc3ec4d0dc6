// Package store owns the hub's single JSON document of record (§3, §4.A):
// projects, chats, pending login sessions, and the normalization rules that
// keep old documents loadable after a schema change.
package store

import "time"

// SchemaVersion is bumped whenever normalize.go gains a migration step.
const SchemaVersion = 1

// BuildStatus enumerates a project's snapshot build lifecycle.
type BuildStatus string

const (
	BuildPending  BuildStatus = "pending"
	BuildBuilding BuildStatus = "building"
	BuildReady    BuildStatus = "ready"
	BuildFailed   BuildStatus = "failed"
)

// BaseImageMode selects how Project.BaseImage.Value is interpreted.
type BaseImageMode string

const (
	BaseImageTag      BaseImageMode = "tag"
	BaseImageRepoPath BaseImageMode = "repo_path"
)

// BaseImageRef identifies the image a project's snapshot is built from.
type BaseImageRef struct {
	Mode  BaseImageMode `json:"mode"`
	Value string        `json:"value"`
}

// EnvVar is a single KEY=VALUE entry. OPENAI_API_KEY is reserved (§3):
// normalization drops any entry with that key from every stored list, so it
// is never persisted; a request that carries it is not rejected.
type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ReservedEnvKey is the one env var name chats and projects may never set
// directly; the hub injects OpenAI credentials itself via the vault.
const ReservedEnvKey = "OPENAI_API_KEY"

// Mount is a single bind mount entry applied to a chat's container.
type Mount struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
}

// Project is the parent of many chats: a repo, a setup recipe, and the
// reproducibility metadata needed to build a cached snapshot image.
type Project struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	RepoURL          string        `json:"repo_url"`
	DefaultBranch    string        `json:"default_branch"`
	SetupScript      string        `json:"setup_script"`
	BaseImage        BaseImageRef  `json:"base_image"`
	DefaultROMounts  []Mount       `json:"default_ro_mounts"`
	DefaultRWMounts  []Mount       `json:"default_rw_mounts"`
	DefaultEnvVars   []EnvVar      `json:"default_env_vars"`
	SetupSnapshotImg string        `json:"setup_snapshot_image"`
	BuildStatus      BuildStatus   `json:"build_status"`
	BuildError       string        `json:"build_error"`
	BuildStartedAt   time.Time     `json:"build_started_at,omitempty"`
	BuildFinishedAt  time.Time     `json:"build_finished_at,omitempty"`
	CredentialMode   CredentialMode `json:"credential_mode"`
	CredentialIDs    []string      `json:"credential_ids"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// CredentialMode selects which credentials from the catalog a chat start
// picks up from its parent project (§3 "Credential Binding").
type CredentialMode string

const (
	CredentialAuto   CredentialMode = "auto"
	CredentialAll    CredentialMode = "all"
	CredentialSet    CredentialMode = "set"
	CredentialSingle CredentialMode = "single"
)

// AgentType enumerates the supported in-container agent CLIs.
type AgentType string

const (
	AgentCodex  AgentType = "codex"
	AgentClaude AgentType = "claude"
	AgentGemini AgentType = "gemini"
	AgentNone   AgentType = "none"
)

// ChatStatus is the Chat Lifecycle Supervisor's state machine (§3, §4.E).
type ChatStatus string

const (
	ChatStopped  ChatStatus = "stopped"
	ChatStarting ChatStatus = "starting"
	ChatRunning  ChatStatus = "running"
	ChatFailed   ChatStatus = "failed"
)

// TitleStatus tracks the Chat Title Pipeline's per-chat state (§4.H).
type TitleStatus string

const (
	TitleIdle    TitleStatus = "idle"
	TitlePending TitleStatus = "pending"
	TitleReady   TitleStatus = "ready"
	TitleError   TitleStatus = "error"
)

// TitleSource records which credential path produced the cached title.
type TitleSource string

const (
	TitleSourceAccount TitleSource = "account"
	TitleSourceAPIKey  TitleSource = "api_key"
)

// Artifact is an immutable-per-path file a chat's in-container agent has
// published through the Agent Tools Router (§3, §4.G).
type Artifact struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RelPath     string    `json:"rel_path"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactPromptGroup archives the artifact ids produced during one prompt
// turn, so the UI can show "what came out of this prompt".
type ArtifactPromptGroup struct {
	Prompt      string   `json:"prompt"`
	ArtifactIDs []string `json:"artifact_ids"`
	ArchivedAt  time.Time `json:"archived_at"`
}

// MaxArtifacts, MaxTitlePromptHistory and MaxArtifactPromptGroups are the
// bounded-list caps from §3/§4.F; MaxTitleFingerprintPrompts is how many of
// the latest prompts feed the title fingerprint.
const (
	MaxArtifacts           = 200
	MaxTitlePromptHistory  = 64
	MaxArtifactPromptGroups = 64
	MaxTitleFingerprintPrompts = 16
)

// Chat is one interactive agent session bound to a project, its own cloned
// workspace, and (while running) a child process attached to a PTY.
type Chat struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	Name            string     `json:"name"`
	AgentType       AgentType  `json:"agent_type"`
	SnapshotImage   string     `json:"snapshot_image"`
	Workspace       string     `json:"workspace"`
	ROMounts        []Mount    `json:"ro_mounts"`
	RWMounts        []Mount    `json:"rw_mounts"`
	EnvVars         []EnvVar   `json:"env_vars"`
	AgentArgs       []string   `json:"agent_args"`
	Status          ChatStatus `json:"status"`
	PID             int        `json:"pid,omitempty"`

	ArtifactTokenHash string    `json:"artifact_token_hash,omitempty"`
	ArtifactTokenAt   time.Time `json:"artifact_token_issued_at,omitempty"`

	ReadyACKGUID string    `json:"ready_ack_guid,omitempty"`
	ReadyStage   string    `json:"ready_stage,omitempty"`
	ReadyAt      time.Time `json:"ready_at,omitempty"`
	ReadyMeta    map[string]any `json:"ready_meta,omitempty"`

	TitlePromptHistory    []string    `json:"title_prompt_history"`
	TitleFingerprint      string      `json:"title_prompt_fingerprint"`
	TitleCached           string      `json:"title_cached"`
	TitleStatus           TitleStatus `json:"title_status"`
	TitleError            string      `json:"title_error"`
	TitleSource           TitleSource `json:"title_source"`
	TitleUpdatedAt        time.Time   `json:"title_updated_at,omitempty"`

	Artifacts             []Artifact             `json:"artifacts"`
	CurrentArtifactIDs    []string               `json:"current_artifact_ids"`
	ArtifactPromptHistory []ArtifactPromptGroup  `json:"artifact_prompt_history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoginMethod selects how the OpenAI account login flow authenticates.
type LoginMethod string

const (
	LoginBrowserCallback LoginMethod = "browser_callback"
	LoginDeviceAuth      LoginMethod = "device_auth"
)

// LoginStatus tracks the singleton OpenAI Account Login Session (§3).
type LoginStatus string

const (
	LoginStarting           LoginStatus = "starting"
	LoginRunning            LoginStatus = "running"
	LoginWaitingForBrowser  LoginStatus = "waiting_for_browser"
	LoginWaitingForDevice   LoginStatus = "waiting_for_device_code"
	LoginCallbackReceived   LoginStatus = "callback_received"
	LoginConnected          LoginStatus = "connected"
	LoginFailed             LoginStatus = "failed"
	LoginCancelled          LoginStatus = "cancelled"
)

// OpenAIAccountLoginSession is the at-most-one-active login attempt.
type OpenAIAccountLoginSession struct {
	ID                string      `json:"id"`
	Method            LoginMethod `json:"method"`
	Status            LoginStatus `json:"status"`
	StartedAt         time.Time   `json:"started_at"`
	CompletedAt       time.Time   `json:"completed_at,omitempty"`
	ExitCode          int         `json:"exit_code,omitempty"`
	LoginURL          string      `json:"login_url,omitempty"`
	DeviceCode        string      `json:"device_code,omitempty"`
	LocalCallbackURL  string      `json:"local_callback_url,omitempty"`
	LocalCallbackPort int         `json:"local_callback_port,omitempty"`
	LocalCallbackPath string      `json:"local_callback_path,omitempty"`
	LogTail           string      `json:"log_tail,omitempty"`
}

// Document is the single JSON file the hub persists at <data>/state.json.
type Document struct {
	SchemaVersion int                 `json:"schema_version"`
	Projects      map[string]*Project `json:"projects"`
	Chats         map[string]*Chat    `json:"chats"`
	LoginSession  *OpenAIAccountLoginSession `json:"login_session,omitempty"`
}

// NewDocument returns an empty, already-normalized document.
func NewDocument() *Document {
	return &Document{
		SchemaVersion: SchemaVersion,
		Projects:      map[string]*Project{},
		Chats:         map[string]*Chat{},
	}
}
