package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hmr/internal/hmr"
)

func TestResolveCommand_AcceptedChange(t *testing.T) {
	configPath := initProject(t)

	stdout, stderr, err := execute(t, "--config", configPath, "resolve", "--changed", "app/view")
	require.NoError(t, err)

	assert.Contains(t, stderr, "Building")
	assert.Contains(t, stdout, "Changed: app/view")
	assert.Contains(t, stdout, "app/view  accepted  app/main")
	assert.Contains(t, stdout, "✓ Hot update possible: 1 module(s) re-run")
}

func TestResolveCommand_ReloadRequired(t *testing.T) {
	configPath := initProject(t)

	stdout, _, err := execute(t, "--config", configPath, "resolve", "--changed", "app/main")
	require.NoError(t, err)
	assert.Contains(t, stdout, "can't accept changes for: app/main")

	_, _, err = execute(t, "--config", configPath, "resolve", "--changed", "app/main,app/view", "--strict")
	var reload *hmr.ReloadRequiredError
	require.True(t, errors.As(err, &reload), "expected a reload error, got %v", err)
	assert.Equal(t, []hmr.ModuleID{"app/main"}, reload.IDs)
}

func TestResolveCommand_UnknownModule(t *testing.T) {
	configPath := initProject(t)

	_, stderr, err := execute(t, "--config", configPath, "resolve", "--changed", "app/veiw")
	assert.ErrorIs(t, err, hmr.ErrModuleNotFound)
	assert.Contains(t, stderr, "MODULE NOT FOUND")
	assert.Contains(t, stderr, "Did you mean: app/view?")
}

func TestResolveCommand_RequiresChanged(t *testing.T) {
	_, _, err := execute(t, "resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--changed")
}

func TestResolveCommand_BrokenManifest(t *testing.T) {
	configPath := initProject(t)
	writeManifest(t, configPath, "modules: [broken")

	_, stderr, err := execute(t, "--config", configPath, "resolve", "--changed", "app/view")
	require.Error(t, err)
	assert.Contains(t, stderr, "MANIFEST ERROR")
}
