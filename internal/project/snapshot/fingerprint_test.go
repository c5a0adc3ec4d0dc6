package snapshot

import (
	"testing"

	"github.com/agenthub/hub/internal/store"
	"github.com/stretchr/testify/require"
)

func sampleProject() *store.Project {
	return &store.Project{
		ID:            "proj-12345678",
		SetupScript:   "echo hello",
		BaseImage:     store.BaseImageRef{Mode: store.BaseImageTag, Value: "ubuntu:22.04"},
		DefaultROMounts: []store.Mount{{HostPath: "/host/ro", ContainerPath: "/ro"}},
		DefaultRWMounts: []store.Mount{{HostPath: "/host/rw", ContainerPath: "/rw"}},
		DefaultEnvVars:  []store.EnvVar{{Key: "FOO", Value: "bar"}},
	}
}

func TestTag_IsDeterministicForIdenticalInput(t *testing.T) {
	p1 := sampleProject()
	p2 := sampleProject()

	tag1, err := Tag(p1)
	require.NoError(t, err)
	tag2, err := Tag(p2)
	require.NoError(t, err)

	require.Equal(t, tag1, tag2)
	require.Contains(t, tag1, "setup-proj-123")
}

func TestTag_ChangesWhenSetupScriptChanges(t *testing.T) {
	p1 := sampleProject()
	p2 := sampleProject()
	p2.SetupScript = "echo goodbye"

	tag1, err := Tag(p1)
	require.NoError(t, err)
	tag2, err := Tag(p2)
	require.NoError(t, err)

	require.NotEqual(t, tag1, tag2)
}

func TestTag_ChangesWhenBaseImageChanges(t *testing.T) {
	p1 := sampleProject()
	p2 := sampleProject()
	p2.BaseImage.Value = "ubuntu:24.04"

	tag1, err := Tag(p1)
	require.NoError(t, err)
	tag2, err := Tag(p2)
	require.NoError(t, err)

	require.NotEqual(t, tag1, tag2)
}

func TestTag_StableAcrossMountOrderingOfSameSlice(t *testing.T) {
	p := sampleProject()
	tagA, err := Tag(p)
	require.NoError(t, err)
	tagB, err := Tag(p)
	require.NoError(t, err)
	require.Equal(t, tagA, tagB)
}
