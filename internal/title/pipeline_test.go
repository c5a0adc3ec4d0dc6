package title

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/store"
)

type fakeVault struct {
	hasCodex bool
	apiKey   string
	hasKey   bool
}

func (f fakeVault) HasCodexAuth() bool               { return f.hasCodex }
func (f fakeVault) OpenAIKeyValue() (string, bool) { return f.apiKey, f.hasKey }

func newTestPipeline(t *testing.T, vault VaultView) (*Pipeline, *store.Store) {
	t.Helper()
	dataDir := t.TempDir()
	bus := eventbus.NewMemoryBus(nil)
	st, err := store.Open(dataDir, bus, nil)
	require.NoError(t, err)
	return New(st, bus, vault, "codex", nil), st
}

func seedChat(t *testing.T, st *store.Store, id string) {
	t.Helper()
	require.NoError(t, st.Mutate("seed_chat", func(doc *store.Document) error {
		doc.Chats[id] = &store.Chat{ID: id, ProjectID: "p1"}
		return nil
	}))
}

func TestPipeline_RecordPromptWithNoCredentialsSetsError(t *testing.T) {
	p, st := newTestPipeline(t, fakeVault{})
	seedChat(t, st, "c1")

	require.NoError(t, p.RecordPrompt("c1", "refactor login"))

	require.Eventually(t, func() bool {
		var status store.TitleStatus
		var errMsg string
		st.View(func(doc *store.Document) {
			status = doc.Chats["c1"].TitleStatus
			errMsg = doc.Chats["c1"].TitleError
		})
		return status == store.TitleError && errMsg == NoCredentialsError
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipeline_RecordPromptIsNoOpWhenFingerprintUnchanged(t *testing.T) {
	p, st := newTestPipeline(t, fakeVault{})
	seedChat(t, st, "c1")

	require.NoError(t, p.RecordPrompt("c1", "refactor login"))
	require.Eventually(t, func() bool {
		var status store.TitleStatus
		st.View(func(doc *store.Document) { status = doc.Chats["c1"].TitleStatus })
		return status == store.TitleError
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, st.Mutate("force_fingerprint", func(doc *store.Document) error {
		fp, err := Fingerprint(store.TitleFingerprintPrompts(doc.Chats["c1"]))
		if err != nil {
			return err
		}
		doc.Chats["c1"].TitleFingerprint = fp
		doc.Chats["c1"].TitleStatus = store.TitleReady
		doc.Chats["c1"].TitleError = ""
		return nil
	}))

	p.maybeDispatch("c1")

	time.Sleep(50 * time.Millisecond)
	var status store.TitleStatus
	st.View(func(doc *store.Document) { status = doc.Chats["c1"].TitleStatus })
	require.Equal(t, store.TitleReady, status)
}

func TestFingerprint_ChangesWithPrompts(t *testing.T) {
	a, err := Fingerprint([]string{"one"})
	require.NoError(t, err)
	b, err := Fingerprint([]string{"one", "two"})
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestFingerprint_StableForSameInput(t *testing.T) {
	a, err := Fingerprint([]string{"one", "two"})
	require.NoError(t, err)
	b, err := Fingerprint([]string{"one", "two"})
	require.NoError(t, err)
	require.Equal(t, a, b)
}
