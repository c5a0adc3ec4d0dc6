package facade

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/agent/registry"
	"github.com/agenthub/hub/internal/agenttools"
	"github.com/agenthub/hub/internal/chat/lifecycle"
	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/platform/config"
	"github.com/agenthub/hub/internal/project/snapshot"
	"github.com/agenthub/hub/internal/secrets"
	"github.com/agenthub/hub/internal/store"
	"github.com/agenthub/hub/internal/title"
)

type fakeInspector struct{}

func (fakeInspector) Exists(ctx context.Context, tag string) (bool, error) { return false, nil }

type fakeLoginSession struct{}

func (fakeLoginSession) Start(method store.LoginMethod) (*store.OpenAIAccountLoginSession, error) {
	return &store.OpenAIAccountLoginSession{Method: method, Status: store.LoginStarting}, nil
}
func (fakeLoginSession) Cancel() error { return nil }
func (fakeLoginSession) HandleCallback(query map[string]string) error { return nil }
func (fakeLoginSession) Current() (*store.OpenAIAccountLoginSession, bool) { return nil, false }

func newTestFacade(t *testing.T) (*Facade, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dataDir := t.TempDir()
	bus := eventbus.NewMemoryBus(nil)
	st, err := store.Open(dataDir, bus, nil)
	require.NoError(t, err)

	vault, err := secrets.New(dataDir, bus, nil)
	require.NoError(t, err)

	cfg := &config.Config{
		Data:  config.DataConfig{Dir: dataDir},
		Agent: config.AgentConfig{CLIPath: "agent_cli", DefaultCols: 80, DefaultRows: 24},
	}

	builder := snapshot.New(st, bus, fakeInspector{}, cfg, nil)
	lifecyc := lifecycle.New(st, bus, vault, fakeInspector{}, registry.New(), cfg, "http://127.0.0.1:8080", nil)
	titles := title.New(st, bus, vault, cfg.Agent.CLIPath, nil)
	sessions := agenttools.NewSessionRegistry()
	tools := agenttools.New(st, vault, sessions, nil)

	fc := New(st, bus, vault, builder, lifecyc, titles, tools, sessions, fakeLoginSession{}, nil, nil)
	return fc, st
}

func TestFacade_Healthz(t *testing.T) {
	fc, _ := newTestFacade(t)
	router := fc.Router(false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFacade_CreateAndGetProjectRoundTrips(t *testing.T) {
	fc, _ := newTestFacade(t)
	router := fc.Router(false)

	body := `{"name":"demo","repo_url":"https://example.invalid/repo.git"}`
	req := httptest.NewRequest(http.MethodPost, "/api/projects", jsonBody(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Project struct {
			ID string `json:"id"`
		} `json:"project"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Project.ID)

	getReq := httptest.NewRequest(http.MethodGet, "/api/projects/"+created.Project.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestFacade_GetUnknownProjectReturnsNotFound(t *testing.T) {
	fc, _ := newTestFacade(t)
	router := fc.Router(false)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFacade_ListChatsEmptyByDefault(t *testing.T) {
	fc, _ := newTestFacade(t)
	router := fc.Router(false)

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"chats":[]}`, rec.Body.String())
}

func TestFacade_AuthStatusListsVaultState(t *testing.T) {
	fc, _ := newTestFacade(t)
	router := fc.Router(false)

	req := httptest.NewRequest(http.MethodGet, "/api/settings/auth", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFacade_StartAccountLoginDelegatesToLoginSession(t *testing.T) {
	fc, _ := newTestFacade(t)
	router := fc.Router(false)

	body := `{"method":"browser_callback"}`
	req := httptest.NewRequest(http.MethodPost, "/api/settings/auth/openai/account/start", jsonBody(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
