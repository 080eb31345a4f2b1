package json

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	writer := NewWriter()
	require.NoError(t, writer.WriteJSON(path, map[string]int{"steps": 3}))

	reader := NewReader()
	exists, err := reader.Exists(path)
	require.NoError(t, err)
	require.True(t, exists)

	var got map[string]int
	require.NoError(t, reader.ReadJSON(path, &got))
	require.Equal(t, map[string]int{"steps": 3}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestExistsMissing(t *testing.T) {
	exists, err := NewReader().Exists(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.False(t, exists)
}
