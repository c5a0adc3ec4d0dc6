package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/stretchr/testify/require"
)

var errFake = errors.New("fake mutate failure")

func marshalForTest(doc *Document) ([]byte, error) {
	return json.Marshal(doc)
}

func TestStore_OpenCreatesEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil, nil)
	require.NoError(t, err)

	var projectCount int
	s.View(func(doc *Document) {
		projectCount = len(doc.Projects)
	})
	require.Equal(t, 0, projectCount)
}

func TestStore_MutateRoundTripsThroughDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil, nil)
	require.NoError(t, err)

	err = s.Mutate("create_project", func(doc *Document) error {
		doc.Projects["p1"] = &Project{
			ID:        "p1",
			Name:      "demo",
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		return nil
	})
	require.NoError(t, err)

	reopened, err := Open(dir, nil, nil)
	require.NoError(t, err)

	var name string
	reopened.View(func(doc *Document) {
		name = doc.Projects["p1"].Name
	})
	require.Equal(t, "demo", name)
}

func TestStore_MutateIsIdempotentUnderReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Mutate("seed", func(doc *Document) error {
		doc.Chats["c1"] = &Chat{ID: "c1", ProjectID: "p1"}
		return nil
	}))

	first, err := Open(dir, nil, nil)
	require.NoError(t, err)

	var firstSnapshot []byte
	first.View(func(doc *Document) {
		firstSnapshot, _ = marshalForTest(doc)
	})

	second, err := Open(dir, nil, nil)
	require.NoError(t, err)
	var secondSnapshot []byte
	second.View(func(doc *Document) {
		secondSnapshot, _ = marshalForTest(doc)
	})

	require.Equal(t, string(firstSnapshot), string(secondSnapshot))
}

func TestStore_MutatePublishesStateChanged(t *testing.T) {
	dir := t.TempDir()
	bus := eventbus.NewMemoryBus(nil)
	sub := bus.Subscribe()
	defer sub.Close()

	s, err := Open(dir, bus, nil)
	require.NoError(t, err)

	require.NoError(t, s.Mutate("create_project", func(doc *Document) error {
		doc.Projects["p1"] = &Project{ID: "p1", Name: "demo"}
		return nil
	}))

	select {
	case evt := <-sub.Events():
		require.Equal(t, eventbus.TypeStateChanged, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a state_changed event")
	}
}

func TestStore_MutateFailureDoesNotPersist(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil, nil)
	require.NoError(t, err)

	err = s.Mutate("noop", func(doc *Document) error {
		return errFake
	})
	require.ErrorIs(t, err, errFake)

	_, statErr := os.Stat(filepath.Join(dir, StateFileName))
	require.Error(t, statErr)
}

func TestNormalize_StripsReservedEnvKeyAndClampsArtifacts(t *testing.T) {
	c := &Chat{
		ID: "c1",
		EnvVars: []EnvVar{
			{Key: "OPENAI_API_KEY", Value: "leaked"},
			{Key: "FOO", Value: "bar"},
		},
	}
	for i := 0; i < MaxArtifacts+5; i++ {
		c.Artifacts = append(c.Artifacts, Artifact{ID: "a"})
	}

	normalizeChat(c)

	require.Len(t, c.EnvVars, 1)
	require.Equal(t, "FOO", c.EnvVars[0].Key)
	require.Len(t, c.Artifacts, MaxArtifacts)
}

func TestNormalize_DiscardsTerminalControlTitleCache(t *testing.T) {
	c := &Chat{
		ID:          "c1",
		TitleCached: "]11;rgb:ffff/ffff/ffff",
		TitleStatus: TitleReady,
	}

	normalizeChat(c)

	require.Empty(t, c.TitleCached)
	require.Equal(t, TitleIdle, c.TitleStatus)
}

func TestNormalize_DowngradesUncleanRunningStatus(t *testing.T) {
	c := &Chat{ID: "c1", Status: ChatRunning, PID: 1234}
	normalizeChat(c)
	require.Equal(t, ChatFailed, c.Status)
	require.Zero(t, c.PID)
}
