package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCommand_Flags(t *testing.T) {
	cmd := newServeCmd(&app{})
	for _, name := range []string{"host", "port", "cors-origin", "timeout", "shutdown-timeout", "max-runs", "root", "requests-per-minute"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestServeCommand_ShutsDownWithContext(t *testing.T) {
	t.Chdir(t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"serve", "--host", "127.0.0.1", "--port", "0", "--shutdown-timeout", "1"})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after the context was cancelled")
	}
	assert.Contains(t, out.String(), "Graceful shutdown completed")
}
