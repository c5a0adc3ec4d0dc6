package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_GetKnownType(t *testing.T) {
	r := New()
	c, ok := r.Get("codex")
	require.True(t, ok)
	require.Equal(t, "codex", c.Type)
	require.True(t, c.SupportsAccount)
}

func TestRegistry_ValidateRejectsUnknownType(t *testing.T) {
	r := New()
	require.Error(t, r.Validate("not-a-real-agent"))
	require.NoError(t, r.Validate("none"))
}

func TestRegistry_TypesIncludesAllDefaults(t *testing.T) {
	r := New()
	require.ElementsMatch(t, []string{"codex", "claude", "gemini", "none"}, r.Types())
}
