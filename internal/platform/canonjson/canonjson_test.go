package canonjson

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsObjectKeysRegardlessOfInputOrder(t *testing.T) {
	a, err := Marshal(map[string]any{"b": 1, "a": 2, "c": 3})
	require.NoError(t, err)

	b, err := Marshal(map[string]any{"c": 3, "a": 2, "b": 1})
	require.NoError(t, err)

	require.Equal(t, string(a), string(b))
	require.JSONEq(t, `{"a":2,"b":1,"c":3}`, string(a))
}

func TestMarshal_NestedObjectsSortedRecursively(t *testing.T) {
	v := map[string]any{
		"outer": map[string]any{"z": 1, "y": 2},
		"list":  []any{map[string]any{"b": 1, "a": 2}},
	}
	out, err := Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"list":[{"a":2,"b":1}],"outer":{"y":2,"z":1}}`, string(out))
}
