package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchCommand(t *testing.T) {
	in := sessionDir(t)

	stdout, stderr, err := execute(t, "bench", in, "--limit", "2", "--iterations", "1", "--segmenter", "keyer")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Timing 2 photo(s)")
	assert.Contains(t, stdout, "tilt/combined")
	assert.Contains(t, stdout, "segment/keyer")
	assert.Contains(t, stdout, "canvas/compose")
	assert.NotContains(t, stdout, "ERROR")
}

func TestBenchCommand_Errors(t *testing.T) {
	_, _, err := execute(t, "bench", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported images")

	_, _, err = execute(t, "bench", sessionDir(t), "--iterations", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterations must be positive")
}
