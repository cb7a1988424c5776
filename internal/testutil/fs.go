package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(t *testing.T, path string, data []byte) {
	t.Helper()
	dir := filepath.Dir(path)
	require.NoError(t, os.MkdirAll(dir, 0o755), "failed to create directory: %s", dir)
	require.NoError(t, os.WriteFile(path, data, 0o644), "failed to write file: %s", path)
}
