package cryptox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestLoadPepperGeneratesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "pepper")

	first, err := cryptox.LoadPepper(path)
	require.NoError(t, err)
	require.Len(t, first, 43)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := cryptox.LoadPepper(path)
	require.NoError(t, err)
	require.Equal(t, first, second, "pepper must be stable across loads")
}

func TestLoadPepperReadsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pepper")
	require.NoError(t, os.WriteFile(path, []byte("  existing-pepper\n"), 0600))

	pepper, err := cryptox.LoadPepper(path)
	require.NoError(t, err)
	require.Equal(t, "existing-pepper", pepper)
}

func TestLoadPepperRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pepper")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0600))

	_, err := cryptox.LoadPepper(path)
	require.ErrorContains(t, err, "empty")
}
