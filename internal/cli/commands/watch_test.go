package commands

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchCommand_Creation(t *testing.T) {
	cmd := NewWatchCommand()

	if cmd.Use != "watch" {
		t.Errorf("Expected Use to be 'watch', got %q", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("Expected descriptions to be set")
	}

	portFlag := cmd.Flags().Lookup("port")
	if portFlag == nil || portFlag.DefValue != "3000" {
		t.Errorf("Expected --port flag defaulting to 3000, got %v", portFlag)
	}
	if cmd.Flags().Lookup("host") == nil {
		t.Error("Expected --host flag to exist")
	}
}

func TestWatchCommand_RunsUntilCancelled(t *testing.T) {
	configPath := initProject(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--no-color", "--config", configPath, "watch", "--host", "127.0.0.1", "--port", "0"})

	require.NoError(t, cmd.ExecuteContext(ctx))

	out := stdout.String()
	assert.Contains(t, out, "HMR Development Server")
	assert.Contains(t, out, "http://127.0.0.1:")
	assert.Contains(t, out, "/__hmr/client.js")
	assert.Contains(t, out, "Shutting down...")
}
