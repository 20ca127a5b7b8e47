package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebug_WritesToConfiguredDir(t *testing.T) {
	dir := t.TempDir()
	ConfigureDebug(dir, 2)
	defer CloseDebug()

	Debug("hello %s", "world")

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
	assert.True(t, strings.HasPrefix(string(data), "["), "line should start with a timestamp")
}

func TestDebug_DisabledWithoutDir(t *testing.T) {
	CloseDebug()
	// Must not panic or create files
	Debug("dropped %d", 1)
}

func TestEnsureAbsPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := EnsureAbsPath("~/files")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "files"), got)

	got, err = EnsureAbsPath("relative")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}
