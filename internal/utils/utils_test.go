package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-ticket-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestToStringSlice(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, utils.ToStringSlice([]any{"a", 1, "b", nil}))
	require.Empty(t, utils.ToStringSlice(nil))
}

func TestPointerHelpers(t *testing.T) {
	require.Equal(t, "", utils.Value[string](nil))
	require.Equal(t, 3, utils.Value(utils.Ptr(3)))
	require.Nil(t, utils.PtrIfSet(""))
	require.Equal(t, "x", *utils.PtrIfSet("x"))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, utils.WriteFileAtomic(path, []byte(`{"a":1}`)))
	require.NoError(t, utils.WriteFileAtomic(path, []byte(`{"a":2}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"a":2}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
