package accountlogin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/store"
)

func newTestSession(t *testing.T, agentCLI string) (*Session, *store.Store) {
	t.Helper()
	bus := eventbus.NewMemoryBus(nil)
	st, err := store.Open(t.TempDir(), bus, nil)
	require.NoError(t, err)
	return New(st, bus, agentCLI, nil), st
}

func TestSession_StartRecordsStartingSession(t *testing.T) {
	s, st := newTestSession(t, "/bin/nonexistent-agent-cli")

	session, err := s.Start(store.LoginBrowserCallback)
	require.NoError(t, err)
	require.Equal(t, store.LoginStarting, session.Status)

	var stored *store.OpenAIAccountLoginSession
	st.View(func(doc *store.Document) { stored = doc.LoginSession })
	require.NotNil(t, stored)
	require.Equal(t, session.ID, stored.ID)
	require.Equal(t, store.LoginBrowserCallback, stored.Method)
}

func TestSession_StartingNewSessionCancelsPrevious(t *testing.T) {
	s, st := newTestSession(t, "/bin/nonexistent-agent-cli")

	first, err := s.Start(store.LoginBrowserCallback)
	require.NoError(t, err)

	second, err := s.Start(store.LoginDeviceAuth)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	var stored *store.OpenAIAccountLoginSession
	st.View(func(doc *store.Document) { stored = doc.LoginSession })
	require.Equal(t, second.ID, stored.ID)
}

func TestSession_CancelMarksCancelled(t *testing.T) {
	s, st := newTestSession(t, "/bin/nonexistent-agent-cli")

	_, err := s.Start(store.LoginBrowserCallback)
	require.NoError(t, err)

	require.NoError(t, s.Cancel())

	var stored *store.OpenAIAccountLoginSession
	st.View(func(doc *store.Document) { stored = doc.LoginSession })
	require.Equal(t, store.LoginCancelled, stored.Status)
}

func TestSession_HandleCallbackFailsWithNoLocalCallbackURL(t *testing.T) {
	s, _ := newTestSession(t, "/bin/nonexistent-agent-cli")

	_, err := s.Start(store.LoginBrowserCallback)
	require.NoError(t, err)

	err = s.HandleCallback(map[string]string{"code": "abc"})
	require.Error(t, err)
}

func TestSession_CurrentReturnsFalseWhenNoSessionStarted(t *testing.T) {
	s, _ := newTestSession(t, "/bin/nonexistent-agent-cli")

	_, ok := s.Current()
	require.False(t, ok)
}

func TestSession_ApplyStatusLineUpdatesFields(t *testing.T) {
	s, st := newTestSession(t, "/bin/nonexistent-agent-cli")

	session, err := s.Start(store.LoginDeviceAuth)
	require.NoError(t, err)

	s.applyStatusLine(session.ID, `{"status":"waiting_for_device_code","device_code":"ABCD-1234","message":"waiting for device code"}`)

	var stored *store.OpenAIAccountLoginSession
	st.View(func(doc *store.Document) { stored = doc.LoginSession })
	require.Equal(t, store.LoginWaitingForDevice, stored.Status)
	require.Equal(t, "ABCD-1234", stored.DeviceCode)
	require.Contains(t, stored.LogTail, "waiting for device code")
}

func TestSession_ApplyStatusLineIgnoresStaleSession(t *testing.T) {
	s, st := newTestSession(t, "/bin/nonexistent-agent-cli")

	_, err := s.Start(store.LoginDeviceAuth)
	require.NoError(t, err)

	s.applyStatusLine("stale-session-id", `{"status":"connected"}`)

	var stored *store.OpenAIAccountLoginSession
	st.View(func(doc *store.Document) { stored = doc.LoginSession })
	require.NotEqual(t, store.LoginConnected, stored.Status)
}

func TestSession_ApplyStatusLineFallsBackToLogTailOnParseFailure(t *testing.T) {
	s, st := newTestSession(t, "/bin/nonexistent-agent-cli")

	session, err := s.Start(store.LoginDeviceAuth)
	require.NoError(t, err)

	s.applyStatusLine(session.ID, "not valid json")

	var stored *store.OpenAIAccountLoginSession
	st.View(func(doc *store.Document) { stored = doc.LoginSession })
	require.Contains(t, stored.LogTail, "not valid json")
}

func TestAppendTail_BoundsToMaxLogTailChars(t *testing.T) {
	long := make([]byte, MaxLogTailChars+100)
	for i := range long {
		long[i] = 'x'
	}
	result := appendTail("", string(long))
	require.LessOrEqual(t, len(result), MaxLogTailChars)
}
