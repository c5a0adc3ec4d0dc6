package agenttools

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/store"
)

type fakeResolver struct {
	openAIKey  string
	hasOpenAI  bool
	sshKey     string
	hasSSH     bool
	knownHosts string
	hasHosts   bool
}

func (f fakeResolver) OpenAIKeyValue() (string, bool)  { return f.openAIKey, f.hasOpenAI }
func (f fakeResolver) SSHKeyValue() (string, bool)     { return f.sshKey, f.hasSSH }
func (f fakeResolver) KnownHostsValue() (string, bool) { return f.knownHosts, f.hasHosts }

func newTestRouter(t *testing.T, resolver CredentialResolver) (*Router, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dataDir := t.TempDir()
	bus := eventbus.NewMemoryBus(nil)
	st, err := store.Open(dataDir, bus, nil)
	require.NoError(t, err)
	return New(st, resolver, NewSessionRegistry(), nil), st
}

func seedChatWithToken(t *testing.T, st *store.Store, id, workspace, rawToken string) {
	t.Helper()
	require.NoError(t, st.Mutate("seed_chat", func(doc *store.Document) error {
		doc.Chats[id] = &store.Chat{
			ID:                id,
			ProjectID:         "p1",
			Workspace:         workspace,
			ArtifactTokenHash: HashToken(rawToken),
			ReadyACKGUID:      "guid-1",
		}
		return nil
	}))
}

func TestRouter_RejectsMissingToken(t *testing.T) {
	r, st := newTestRouter(t, fakeResolver{})
	ws := t.TempDir()
	seedChatWithToken(t, st, "c1", ws, "correct-token")

	engine := gin.New()
	r.Register(engine.Group("/api"))

	req := httptest.NewRequest(http.MethodGet, "/api/chats/c1/credentials", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_RejectsWrongToken(t *testing.T) {
	r, st := newTestRouter(t, fakeResolver{})
	ws := t.TempDir()
	seedChatWithToken(t, st, "c1", ws, "correct-token")

	engine := gin.New()
	r.Register(engine.Group("/api"))

	req := httptest.NewRequest(http.MethodGet, "/api/chats/c1/credentials", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_PublishArtifactWritesUnderWorkspace(t *testing.T) {
	r, st := newTestRouter(t, fakeResolver{})
	ws := t.TempDir()
	seedChatWithToken(t, st, "c1", ws, "tok")

	engine := gin.New()
	r.Register(engine.Group("/api"))

	body := bytes.NewBufferString("hello world")
	req := httptest.NewRequest(http.MethodPost, "/api/chats/c1/artifacts/submit?path=reports/out.txt", body)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set(headerArtifactName, "out.txt")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Artifact store.Artifact `json:"artifact"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "reports/out.txt", resp.Artifact.RelPath)

	var got []store.Artifact
	st.View(func(doc *store.Document) { got = doc.Chats["c1"].Artifacts })
	require.Len(t, got, 1)
}

func TestRouter_PublishArtifactRejectsPathEscape(t *testing.T) {
	r, st := newTestRouter(t, fakeResolver{})
	ws := filepath.Join(t.TempDir(), "workspace")
	seedChatWithToken(t, st, "c1", ws, "tok")

	engine := gin.New()
	r.Register(engine.Group("/api"))

	body := bytes.NewBufferString("escape attempt")
	req := httptest.NewRequest(http.MethodPost, "/api/chats/c1/artifacts/submit?path=../../etc/passwd", body)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set(headerArtifactName, "passwd")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ResolveCredentialReturnsValueWhenConnected(t *testing.T) {
	r, st := newTestRouter(t, fakeResolver{openAIKey: "sk-test", hasOpenAI: true})
	ws := t.TempDir()
	seedChatWithToken(t, st, "c1", ws, "tok")

	engine := gin.New()
	r.Register(engine.Group("/api"))

	reqBody, _ := json.Marshal(map[string]string{"category": "openai"})
	req := httptest.NewRequest(http.MethodPost, "/api/chats/c1/credentials/resolve", bytes.NewReader(reqBody))
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "sk-test")
}

func TestRouter_AckRequiresMatchingGUID(t *testing.T) {
	r, st := newTestRouter(t, fakeResolver{})
	ws := t.TempDir()
	seedChatWithToken(t, st, "c1", ws, "tok")

	engine := gin.New()
	r.Register(engine.Group("/api"))

	reqBody, _ := json.Marshal(map[string]string{"guid": "wrong-guid", "stage": "ready"})
	req := httptest.NewRequest(http.MethodPost, "/api/chats/c1/ack", bytes.NewReader(reqBody))
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	reqBody, _ = json.Marshal(map[string]string{"guid": "guid-1", "stage": "ready"})
	req = httptest.NewRequest(http.MethodPost, "/api/chats/c1/ack", bytes.NewReader(reqBody))
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stage string
	st.View(func(doc *store.Document) { stage = doc.Chats["c1"].ReadyStage })
	require.Equal(t, "ready", stage)
}
