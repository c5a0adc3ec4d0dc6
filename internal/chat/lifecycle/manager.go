// Package lifecycle implements the Chat Lifecycle Supervisor (§4.E):
// create/start/close/shutdown/clean_start, PTY-attached child processes,
// and the runtime table tying a chat id to its OS resources.
//
// Grounded on kandev's internal/agent/lifecycle package shape (a manager
// owning a runtime table guarded by its own lock, separate from the
// persisted store) and internal/agentctl/server/process for process-group
// signal handling, adapted from long-lived agent sessions to the hub's
// per-chat PTY model.
package lifecycle

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agenthub/hub/internal/agent/registry"
	"github.com/agenthub/hub/internal/chat/pty"
	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/platform/apierr"
	"github.com/agenthub/hub/internal/platform/config"
	"github.com/agenthub/hub/internal/platform/logger"
	"github.com/agenthub/hub/internal/platform/metrics"
	"github.com/agenthub/hub/internal/project/snapshot"
	"github.com/agenthub/hub/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VaultView is the subset of secrets.Vault the supervisor needs to assemble
// a launcher command vector.
type VaultView interface {
	OpenAIKeyPath() string
	SSHKeyPath() string
	KnownHostsPath() string
}

// ImageInspector mirrors snapshot.ImageInspector so this package does not
// need to import containerrt directly.
type ImageInspector interface {
	Exists(ctx context.Context, tag string) (bool, error)
}

// GracefulStopDeadline bounds how long close/shutdown wait for SIGTERM
// before escalating to SIGKILL (§4.E, §8 I10).
const GracefulStopDeadline = 5 * time.Second

// Manager owns every running chat's PTY runtime and input normalizer. The
// Store remains the source of truth for chat records; Manager is the only
// writer of the OS-resource-derived fields (PID, status) on top of it.
type Manager struct {
	st        *store.Store
	bus       eventbus.Bus
	vault     VaultView
	inspector ImageInspector
	registry  *registry.Registry

	agentCLI    string
	hubBaseURL  string
	chatsDir    string
	logsDir     string
	defaultSize pty.Size
	log         *logger.Logger

	mu        sync.Mutex
	runtimes  map[string]*pty.Runtime
	inputs    map[string]*pty.InputNormalizer
}

// New constructs a Manager rooted at the configured data directory.
func New(st *store.Store, bus eventbus.Bus, vault VaultView, inspector ImageInspector, reg *registry.Registry, cfg *config.Config, hubBaseURL string, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		st:          st,
		bus:         bus,
		vault:       vault,
		inspector:   inspector,
		registry:    reg,
		agentCLI:    cfg.Agent.CLIPath,
		hubBaseURL:  strings.TrimSuffix(hubBaseURL, "/"),
		chatsDir:    filepath.Join(cfg.Data.Dir, "chats"),
		logsDir:     filepath.Join(cfg.Data.Dir, "logs"),
		defaultSize: pty.Size{Cols: uint16(cfg.Agent.DefaultCols), Rows: uint16(cfg.Agent.DefaultRows)},
		log:         log,
		runtimes:    make(map[string]*pty.Runtime),
		inputs:      make(map[string]*pty.InputNormalizer),
	}
}

// LogPath returns the terminal transcript log file for a chat, used by the
// facade to serve GET /api/chats/:id/logs.
func (m *Manager) LogPath(chatID string) string {
	return filepath.Join(m.logsDir, chatID+".log")
}

var nonAlnumRun = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func sanitizeComponent(s string) string {
	s = nonAlnumRun.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "project"
	}
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

// Create inserts a chat record inheriting defaults from its parent project.
// No OS resources are allocated (§4.E "create").
func (m *Manager) Create(projectID, name string, agentType store.AgentType, roMounts, rwMounts []store.Mount, envVars []store.EnvVar, agentArgs []string) (*store.Chat, error) {
	if m.registry != nil {
		if err := m.registry.Validate(string(agentType)); err != nil {
			return nil, apierr.InvalidRequest("unknown agent type %q", agentType)
		}
	}

	var chat *store.Chat
	err := m.st.Mutate("chat_created", func(doc *store.Document) error {
		project, ok := doc.Projects[projectID]
		if !ok {
			return apierr.NotFound("project %s not found", projectID)
		}

		id := uuid.New().String()
		workspace := filepath.Join(m.chatsDir, fmt.Sprintf("%s_%s", sanitizeComponent(project.Name), shortID(id)))

		if roMounts == nil {
			roMounts = append([]store.Mount{}, project.DefaultROMounts...)
		}
		if rwMounts == nil {
			rwMounts = append([]store.Mount{}, project.DefaultRWMounts...)
		}
		if envVars == nil {
			envVars = append([]store.EnvVar{}, project.DefaultEnvVars...)
		}

		now := time.Now().UTC()
		c := &store.Chat{
			ID:        id,
			ProjectID: projectID,
			Name:      fmt.Sprintf("chat-%s", shortID(id)),
			AgentType: agentType,
			Workspace: workspace,
			ROMounts:  roMounts,
			RWMounts:  rwMounts,
			EnvVars:   envVars,
			AgentArgs: agentArgs,
			Status:    store.ChatStopped,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if name != "" {
			c.Name = name
		}
		doc.Chats[id] = c
		chat = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Start brings up a stopped chat's container process attached to a PTY
// (§4.E "start").
func (m *Manager) Start(ctx context.Context, chatID string) error {
	chat, project, err := m.loadChatAndProject(chatID)
	if err != nil {
		return err
	}
	if chat.Status == store.ChatRunning || chat.Status == store.ChatStarting {
		return apierr.Conflict("chat %s is already running", chatID)
	}
	if project.BuildStatus != store.BuildReady {
		return apierr.Conflict("project %s is not ready", project.ID)
	}

	expectedTag, err := snapshot.Tag(project)
	if err != nil {
		return apierr.Internal("compute snapshot tag", err)
	}
	if project.SetupSnapshotImg != expectedTag {
		return apierr.Conflict("project %s snapshot tag is stale, rebuild required", project.ID)
	}
	if m.inspector != nil {
		exists, err := m.inspector.Exists(ctx, expectedTag)
		if err != nil {
			return apierr.Internal("check snapshot image", err)
		}
		if !exists {
			return apierr.Conflict("snapshot image %s is not present", expectedTag)
		}
	}

	if _, err := snapshot.EnsureClone(ctx, chat.Workspace, project.RepoURL, project.DefaultBranch); err != nil {
		return apierr.Internal("prepare chat workspace", err)
	}

	artifactToken, tokenHash, err := mintArtifactToken()
	if err != nil {
		return apierr.Internal("mint artifact token", err)
	}
	readyACKGUID := uuid.New().String()

	var credentialArgs, sshArgs []string
	if m.vault != nil {
		credentialArgs = credentialArgsFor(m.vault.OpenAIKeyPath())
		sshArgs = sshArgsFor(m.vault.SSHKeyPath(), m.vault.KnownHostsPath())
	}
	args := launchArgs(chat, chat.Workspace, expectedTag, m.agentCLI, credentialArgs, sshArgs, m.hubBaseURL, artifactToken, readyACKGUID)

	cmd := exec.CommandContext(context.Background(), m.agentCLI, args...)
	cmd.Dir = chat.Workspace
	pty.SetProcAttrNewGroup(cmd)

	size := m.defaultSize
	if size.Cols == 0 {
		size = pty.DefaultSize
	}
	logPath := filepath.Join(m.logsDir, chatID+".log")
	if err := os.MkdirAll(m.logsDir, 0o755); err != nil {
		return apierr.Internal("create logs dir", err)
	}

	runtime, err := pty.Start(cmd, size, logPath, m.log)
	if err != nil {
		metrics.ChatStartsTotal.WithLabelValues("failed").Inc()
		return apierr.Internal("start chat process", err)
	}

	m.mu.Lock()
	m.runtimes[chatID] = runtime
	m.inputs[chatID] = pty.NewInputNormalizer()
	m.mu.Unlock()

	now := time.Now().UTC()
	err = m.st.Mutate("chat_started", func(doc *store.Document) error {
		c, ok := doc.Chats[chatID]
		if !ok {
			return apierr.NotFound("chat %s not found", chatID)
		}
		c.Status = store.ChatRunning
		c.PID = cmd.Process.Pid
		c.SnapshotImage = expectedTag
		c.ArtifactTokenHash = tokenHash
		c.ArtifactTokenAt = now
		c.ReadyACKGUID = readyACKGUID
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		_ = runtime.Close()
		m.mu.Lock()
		delete(m.runtimes, chatID)
		delete(m.inputs, chatID)
		m.mu.Unlock()
		return err
	}

	metrics.ChatStartsTotal.WithLabelValues("ok").Inc()
	metrics.ChatsRunning.Inc()
	return nil
}

// Close stops a running chat's process and releases its PTY (§4.E "close").
func (m *Manager) Close(chatID string) error {
	m.mu.Lock()
	runtime, hasRuntime := m.runtimes[chatID]
	delete(m.runtimes, chatID)
	delete(m.inputs, chatID)
	m.mu.Unlock()

	var pid int
	m.st.View(func(doc *store.Document) {
		if c, ok := doc.Chats[chatID]; ok {
			pid = c.PID
		}
	})
	if pid > 0 {
		pty.StopProcessGroup(pid, GracefulStopDeadline)
	}
	if hasRuntime {
		_ = runtime.Close()
		metrics.ChatsRunning.Dec()
	}

	now := time.Now().UTC()
	return m.st.Mutate("chat_closed", func(doc *store.Document) error {
		c, ok := doc.Chats[chatID]
		if !ok {
			return apierr.NotFound("chat %s not found", chatID)
		}
		c.Status = store.ChatStopped
		c.PID = 0
		c.ArtifactTokenHash = ""
		c.UpdatedAt = now
		return nil
	})
}

// Shutdown stops every running chat in parallel (§4.E "shutdown").
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return m.Close(id)
		})
	}
	if err := g.Wait(); err != nil {
		m.log.Warn("shutdown encountered errors stopping chats", zap.Error(err))
	}

	if len(ids) == 0 {
		return nil
	}
	return m.st.Mutate("hub_shutdown", func(doc *store.Document) error {
		for _, id := range ids {
			delete(doc.Chats, id)
		}
		return nil
	})
}

// CleanStart wipes derived filesystems and resets every project's build
// status (§4.E "clean_start").
func (m *Manager) CleanStart(ctx context.Context) error {
	for _, dir := range []string{m.chatsDir, filepath.Join(filepath.Dir(m.chatsDir), "projects"), m.logsDir} {
		if err := os.RemoveAll(dir); err != nil {
			return apierr.Internal("wipe "+dir, err)
		}
	}

	var staleTags []string
	err := m.st.Mutate("clean_start", func(doc *store.Document) error {
		for _, p := range doc.Projects {
			if p.SetupSnapshotImg != "" {
				staleTags = append(staleTags, p.SetupSnapshotImg)
			}
			p.BuildStatus = store.BuildPending
			p.SetupSnapshotImg = ""
			p.BuildError = ""
		}
		return nil
	})
	if err != nil {
		return err
	}

	if remover, ok := m.inspector.(interface {
		RemoveByReference(ctx context.Context, tag string) error
	}); ok {
		for _, tag := range staleTags {
			_ = remover.RemoveByReference(ctx, tag)
		}
	}
	return nil
}

// Resize maps an incoming {cols, rows} to the PTY's window size and signals
// the process group with WINCH (§4.E "Resize").
func (m *Manager) Resize(chatID string, size pty.Size) error {
	m.mu.Lock()
	runtime, ok := m.runtimes[chatID]
	m.mu.Unlock()
	if !ok {
		return apierr.NotFound("chat %s has no running terminal", chatID)
	}
	return runtime.Resize(size)
}

// Attach returns a live output channel and replay backlog for chatID.
func (m *Manager) Attach(chatID string) (<-chan string, string, error) {
	m.mu.Lock()
	runtime, ok := m.runtimes[chatID]
	m.mu.Unlock()
	if !ok {
		return nil, "", apierr.NotFound("chat %s has no running terminal", chatID)
	}
	ch, backlog := runtime.Attach()
	return ch, backlog, nil
}

// Detach releases a previously attached output channel.
func (m *Manager) Detach(chatID string, ch <-chan string) {
	m.mu.Lock()
	runtime, ok := m.runtimes[chatID]
	m.mu.Unlock()
	if ok {
		runtime.DetachByChan(ch)
	}
}

// WriteInput sends raw bytes to chatID's PTY and runs them through the
// input normalizer, returning a submitted prompt if Enter was detected
// (§4.F).
func (m *Manager) WriteInput(chatID string, data []byte) (prompt string, submitted bool, err error) {
	m.mu.Lock()
	runtime, hasRuntime := m.runtimes[chatID]
	normalizer, hasNormalizer := m.inputs[chatID]
	m.mu.Unlock()
	if !hasRuntime {
		return "", false, apierr.NotFound("chat %s has no running terminal", chatID)
	}

	if _, werr := runtime.Write(data); werr != nil {
		return "", false, apierr.Internal("write chat input", werr)
	}
	if hasNormalizer {
		prompt, submitted = normalizer.Feed(data)
	}
	return prompt, submitted, nil
}

// IsRunning reports whether chatID currently has a live runtime.
func (m *Manager) IsRunning(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runtimes[chatID]
	return ok
}

func (m *Manager) loadChatAndProject(chatID string) (*store.Chat, *store.Project, error) {
	var chat store.Chat
	var project store.Project
	var chatOK, projectOK bool
	m.st.View(func(doc *store.Document) {
		if c, ok := doc.Chats[chatID]; ok {
			chat, chatOK = *c, true
			if p, ok := doc.Projects[c.ProjectID]; ok {
				project, projectOK = *p, true
			}
		}
	})
	if !chatOK {
		return nil, nil, apierr.NotFound("chat %s not found", chatID)
	}
	if !projectOK {
		return nil, nil, apierr.NotFound("project for chat %s not found", chatID)
	}
	return &chat, &project, nil
}

func mintArtifactToken() (token, sha256Hex string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	sum := sha256.Sum256([]byte(token))
	return token, hex.EncodeToString(sum[:]), nil
}
