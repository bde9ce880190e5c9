package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateDummyFile writes content to path, creating parent directories.
func CreateDummyFile(t *testing.T, path string, content string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	dir := filepath.Dir(fullPath)
	require.NoError(t, os.MkdirAll(dir, 0o755), "Failed to create directory %s for dummy file", dir)
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644), "Failed to write dummy file %s", fullPath)
}

// CreateDummyDir ensures a directory exists at path.
func CreateDummyDir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Clean(path), 0o755), "Failed to create dummy directory %s", path)
}

// CreateTree writes every relative path → content pair under root.
func CreateTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		CreateDummyFile(t, filepath.Join(root, filepath.FromSlash(rel)), content)
	}
}

// ReadFile returns the content of path as a string.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "Failed to read %s", path)
	return string(data)
}
