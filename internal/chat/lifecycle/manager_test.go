package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/agent/registry"
	"github.com/agenthub/hub/internal/agenttools"
	"github.com/agenthub/hub/internal/chat/pty"
	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/platform/config"
	"github.com/agenthub/hub/internal/store"
)

type fakeVault struct{}

func (fakeVault) OpenAIKeyPath() string  { return "" }
func (fakeVault) SSHKeyPath() string     { return "" }
func (fakeVault) KnownHostsPath() string { return "" }

type fakeInspector struct {
	existing map[string]bool
}

func (f *fakeInspector) Exists(ctx context.Context, tag string) (bool, error) {
	return f.existing[tag], nil
}

func newTestManager(t *testing.T, inspector ImageInspector) (*Manager, *store.Store) {
	t.Helper()
	dataDir := t.TempDir()
	bus := eventbus.NewMemoryBus(nil)
	st, err := store.Open(dataDir, bus, nil)
	require.NoError(t, err)

	cfg := &config.Config{
		Data:  config.DataConfig{Dir: dataDir},
		Agent: config.AgentConfig{CLIPath: "agent_cli", DefaultCols: 80, DefaultRows: 24},
	}
	m := New(st, bus, fakeVault{}, inspector, registry.New(), cfg, "http://127.0.0.1:8080", nil)
	return m, st
}

func seedProject(t *testing.T, st *store.Store, id string, status store.BuildStatus, tag string) *store.Project {
	t.Helper()
	p := &store.Project{
		ID:               id,
		Name:             "demo project",
		RepoURL:          "https://example.invalid/repo.git",
		DefaultBranch:    "main",
		SetupScript:      "echo hi",
		BaseImage:        store.BaseImageRef{Mode: store.BaseImageTag, Value: "ubuntu:22.04"},
		BuildStatus:      status,
		SetupSnapshotImg: tag,
	}
	require.NoError(t, st.Mutate("seed_project", func(doc *store.Document) error {
		doc.Projects[id] = p
		return nil
	}))
	return p
}

func TestManager_CreateInheritsProjectDefaults(t *testing.T) {
	m, st := newTestManager(t, &fakeInspector{})
	seedProject(t, st, "proj-1", store.BuildPending, "")

	chat, err := m.Create("proj-1", "", store.AgentCodex, nil, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, store.ChatStopped, chat.Status)
	require.NotEmpty(t, chat.Workspace)
}

func TestManager_CreateRejectsUnknownAgentType(t *testing.T) {
	m, st := newTestManager(t, &fakeInspector{})
	seedProject(t, st, "proj-1", store.BuildPending, "")

	_, err := m.Create("proj-1", "", store.AgentType("not-real"), nil, nil, nil, nil)
	require.Error(t, err)
}

func TestManager_StartRefusesWhenProjectNotReady(t *testing.T) {
	m, st := newTestManager(t, &fakeInspector{})
	seedProject(t, st, "proj-1", store.BuildPending, "")
	chat, err := m.Create("proj-1", "", store.AgentNone, nil, nil, nil, nil)
	require.NoError(t, err)

	err = m.Start(context.Background(), chat.ID)
	require.Error(t, err)
}

func TestManager_StartRefusesWhenSnapshotTagStale(t *testing.T) {
	m, st := newTestManager(t, &fakeInspector{existing: map[string]bool{}})
	p := seedProject(t, st, "proj-1", store.BuildReady, "stale-tag")
	chat, err := m.Create(p.ID, "", store.AgentNone, nil, nil, nil, nil)
	require.NoError(t, err)

	err = m.Start(context.Background(), chat.ID)
	require.Error(t, err)
}

func TestManager_StartRefusesWhenAlreadyRunning(t *testing.T) {
	m, st := newTestManager(t, &fakeInspector{})
	seedProject(t, st, "proj-1", store.BuildPending, "")
	chat, err := m.Create("proj-1", "", store.AgentNone, nil, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, st.Mutate("force_running", func(doc *store.Document) error {
		doc.Chats[chat.ID].Status = store.ChatRunning
		return nil
	}))

	err = m.Start(context.Background(), chat.ID)
	require.Error(t, err)
}

func TestManager_CloseOnNeverStartedChatIsIdempotent(t *testing.T) {
	m, st := newTestManager(t, &fakeInspector{})
	seedProject(t, st, "proj-1", store.BuildPending, "")
	chat, err := m.Create("proj-1", "", store.AgentNone, nil, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.Close(chat.ID))

	var status store.ChatStatus
	st.View(func(doc *store.Document) {
		status = doc.Chats[chat.ID].Status
	})
	require.Equal(t, store.ChatStopped, status)
}

func TestSweeper_MarksDeadPIDChatsFailed(t *testing.T) {
	m, st := newTestManager(t, &fakeInspector{})
	seedProject(t, st, "proj-1", store.BuildPending, "")
	chat, err := m.Create("proj-1", "", store.AgentNone, nil, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, st.Mutate("force_running_dead_pid", func(doc *store.Document) error {
		c := doc.Chats[chat.ID]
		c.Status = store.ChatRunning
		c.PID = 999999999
		return nil
	}))

	s := NewSweeper(m)
	s.reconcileRuntimes()

	var status store.ChatStatus
	st.View(func(doc *store.Document) {
		status = doc.Chats[chat.ID].Status
	})
	require.Equal(t, store.ChatFailed, status)
}

func TestSweeper_FlagsDriftedSnapshotTagAsPending(t *testing.T) {
	m, st := newTestManager(t, &fakeInspector{})
	seedProject(t, st, "proj-1", store.BuildReady, "definitely-wrong-tag")

	s := NewSweeper(m)
	s.reconcileSnapshotTags()

	var status store.BuildStatus
	st.View(func(doc *store.Document) {
		status = doc.Projects["proj-1"].BuildStatus
	})
	require.Equal(t, store.BuildPending, status)
}

func TestMintArtifactToken_HashMatchesAgentToolsHashToken(t *testing.T) {
	token, hash, err := mintArtifactToken()
	require.NoError(t, err)
	require.Len(t, hash, 64)
	require.Equal(t, agenttools.HashToken(token), hash)
	require.True(t, agenttools.TokensMatch(token, hash))
}

func TestManager_ShutdownDeletesRunningChatsFromPersistedState(t *testing.T) {
	m, st := newTestManager(t, &fakeInspector{})
	seedProject(t, st, "proj-1", store.BuildReady, "")
	chat, err := m.Create("proj-1", "", store.AgentNone, nil, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, st.Mutate("force_running", func(doc *store.Document) error {
		doc.Chats[chat.ID].Status = store.ChatRunning
		return nil
	}))
	m.mu.Lock()
	m.runtimes[chat.ID] = &pty.Runtime{}
	m.mu.Unlock()

	require.NoError(t, m.Shutdown(context.Background()))

	var exists bool
	st.View(func(doc *store.Document) { _, exists = doc.Chats[chat.ID] })
	require.False(t, exists)
}
