package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/conduit-lang/hmr/internal/hmr"
)

func TestFormatError(t *testing.T) {
	// Disable color for testing
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
	}{
		{
			name: "basic error",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "MODULE NOT FOUND",
				Problem: "Cannot find module 'app/view'.",
			},
			contains: []string{
				"❌",
				"MODULE NOT FOUND",
				"Cannot find module 'app/view'.",
			},
		},
		{
			name: "error with suggestions",
			opts: ErrorOptions{
				Level:       ErrorLevelError,
				Context:     "MODULE NOT FOUND",
				Problem:     "Cannot find module 'app/veiw'.",
				Suggestions: []string{"app/view", "app/views"},
			},
			contains: []string{
				"Did you mean: app/view, app/views?",
			},
		},
		{
			name: "error with help commands",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "MANIFEST ERROR",
				Problem: "yaml: line 3: did not find expected key",
				HelpCommands: []string{
					"Create one: hmr init",
					"Get help: hmr --help",
				},
			},
			contains: []string{
				"→ Create one: hmr init",
				"→ Get help: hmr --help",
			},
		},
		{
			name: "warning message",
			opts: ErrorOptions{
				Level:   ErrorLevelWarning,
				Problem: "Stylesheet changed outside the manifest",
			},
			contains: []string{
				"⚠️",
				"Stylesheet changed outside the manifest",
			},
		},
		{
			name: "info message",
			opts: ErrorOptions{
				Level:   ErrorLevelInfo,
				Problem: "Nothing changed",
			},
			contains: []string{
				"ℹ️",
				"Nothing changed",
			},
		},
		{
			name: "error with consequence",
			opts: ErrorOptions{
				Level:       ErrorLevelError,
				Context:     "FULL RELOAD",
				Problem:     "can't accept changes for: app/main",
				Consequence: "The running program keeps its current modules",
			},
			contains: []string{
				"can't accept changes for: app/main",
				"The running program keeps its current modules",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatError(tt.opts)

			for _, expected := range tt.contains {
				if !strings.Contains(result, expected) {
					t.Errorf("FormatError() output missing expected string:\nExpected to contain: %q\nGot: %q", expected, result)
				}
			}
		})
	}
}

func TestModuleNotFoundError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := ModuleNotFoundError("app/veiw", []string{"app/view", "app/main", "lib/util"}, true)

	expected := []string{
		"MODULE NOT FOUND",
		"Cannot find module 'app/veiw'.",
		"Did you mean: app/view?",
		"See all modules: hmr graph --format json",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("ModuleNotFoundError() missing expected string: %q", exp)
		}
	}
}

func TestModuleNotFoundError_NoSuggestions(t *testing.T) {
	result := ModuleNotFoundError("zzzzzzzz", []string{"app/view"}, true)
	if strings.Contains(result, "Did you mean") {
		t.Errorf("expected no suggestions, got %q", result)
	}
}

func TestManifestError(t *testing.T) {
	result := ManifestError("modules.yaml", errors.New("manifest has no modules"), true)

	expected := []string{
		"MANIFEST ERROR",
		"modules.yaml: manifest has no modules",
		"Create one: hmr init",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("ManifestError() missing expected string: %q", exp)
		}
	}
}

func TestReloadRequired(t *testing.T) {
	err := &hmr.ReloadRequiredError{IDs: []hmr.ModuleID{"app/main", "lib/a"}}
	result := ReloadRequired(err, true)

	expected := []string{
		"⚠️",
		"FULL RELOAD",
		"can't accept changes for: app/main, lib/a",
		"a full reload is required",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("ReloadRequired() missing expected string: %q", exp)
		}
	}
}

func TestWriteError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	opts := ErrorOptions{
		Level:   ErrorLevelError,
		Context: "TEST ERROR",
		Problem: "This is a test",
	}

	WriteError(&buf, opts)

	output := buf.String()
	if !strings.Contains(output, "TEST ERROR") {
		t.Errorf("WriteError() did not write to buffer correctly")
	}
}

func TestFormatSuccess(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := FormatSuccess("All modules updated", true)

	if !strings.Contains(result, "✓") {
		t.Errorf("FormatSuccess() missing checkmark")
	}
	if !strings.Contains(result, "All modules updated") {
		t.Errorf("FormatSuccess() missing message")
	}
}

func TestWriteSuccess(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	WriteSuccess(&buf, "Test success", true)

	output := buf.String()
	if !strings.Contains(output, "✓") {
		t.Errorf("WriteSuccess() missing checkmark")
	}
	if !strings.Contains(output, "Test success") {
		t.Errorf("WriteSuccess() missing message")
	}
}

func TestWarning(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := Warning("app/theme.css is not in the manifest", []string{"app/theme"}, true)

	expected := []string{
		"⚠️",
		"app/theme.css is not in the manifest",
		"Did you mean: app/theme?",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("Warning() missing expected string: %q", exp)
		}
	}
}

func TestInfo(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := Info("Watching for changes", true)

	expected := []string{
		"ℹ️",
		"Watching for changes",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("Info() missing expected string: %q", exp)
		}
	}
}

func TestConfigError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := ConfigError("server.port must be between 1 and 65535", []string{"server.port: 3000"}, true)

	expected := []string{
		"CONFIGURATION ERROR",
		"server.port must be between 1 and 65535",
		"Did you mean: server.port: 3000?",
		"View config: cat hmr.yaml",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("ConfigError() missing expected string: %q", exp)
		}
	}
}
