package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/platform/config"
	"github.com/agenthub/hub/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	existingTags map[string]bool
}

func (f *fakeInspector) Exists(ctx context.Context, tag string) (bool, error) {
	return f.existingTags[tag], nil
}

func newTestBuilder(t *testing.T, inspector ImageInspector) (*Builder, *store.Store, eventbus.Bus) {
	t.Helper()
	dataDir := t.TempDir()
	bus := eventbus.NewMemoryBus(nil)
	st, err := store.Open(dataDir, bus, nil)
	require.NoError(t, err)

	cfg := &config.Config{
		Data:  config.DataConfig{Dir: dataDir},
		Agent: config.AgentConfig{CLIPath: "agent_cli"},
	}
	return New(st, bus, inspector, cfg, nil), st, bus
}

func TestBuilder_CacheHitSkipsAgentCLIInvocation(t *testing.T) {
	project := &store.Project{
		ID:          "p1",
		RepoURL:     "https://example.invalid/repo.git",
		SetupScript: "echo hi",
		BaseImage:   store.BaseImageRef{Mode: store.BaseImageTag, Value: "ubuntu:22.04"},
		BuildStatus: store.BuildPending,
	}
	tag, err := Tag(project)
	require.NoError(t, err)

	inspector := &fakeInspector{existingTags: map[string]bool{tag: true}}
	b, st, bus := newTestBuilder(t, inspector)

	sub := bus.Subscribe()
	defer sub.Close()

	require.NoError(t, st.Mutate("seed", func(doc *store.Document) error {
		doc.Projects[project.ID] = project
		return nil
	}))

	b.attempt(project.ID)

	var finalStatus store.BuildStatus
	var finalTag string
	st.View(func(doc *store.Document) {
		finalStatus = doc.Projects[project.ID].BuildStatus
		finalTag = doc.Projects[project.ID].SetupSnapshotImg
	})
	require.Equal(t, store.BuildReady, finalStatus)
	require.Equal(t, tag, finalTag)

	drained := drainEvents(sub, 10, 500*time.Millisecond)
	require.NotEmpty(t, drained)
}

func drainEvents(sub eventbus.Subscription, max int, timeout time.Duration) []*eventbus.Event {
	var out []*eventbus.Event
	deadline := time.After(timeout)
	for len(out) < max {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, evt)
		case <-deadline:
			return out
		}
	}
	return out
}
