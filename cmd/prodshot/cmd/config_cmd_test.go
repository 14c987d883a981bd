package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prodshot.yaml")

	stdout, _, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote "+path)
	assert.FileExists(t, path)

	_, _, err = execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = execute(t, "config", "init", path, "--force")
	require.NoError(t, err)

	stdout, _, err = execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "# from "+path)
	assert.Contains(t, stdout, "canvas:")
	assert.Contains(t, stdout, "size: 1000")
}

func TestConfigShow_EnvironmentOverride(t *testing.T) {
	t.Setenv("PRODSHOT_CANVAS_SIZE", "512")

	stdout, _, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "size: 512")
}

func TestConfigPaths(t *testing.T) {
	stdout, _, err := execute(t, "config", "paths")
	require.NoError(t, err)
	assert.Contains(t, stdout, ".\n")
	assert.Contains(t, stdout, "/etc/prodshot")
}
