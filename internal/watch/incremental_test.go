package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conduit-lang/hmr/internal/hmr"
	"github.com/conduit-lang/hmr/internal/loader"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
}

func TestIncrementalBuilder_FullBuild(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"modules.yaml": `
entries: [app/main]
aliases:
  app/old: app/view
modules:
  app/main:
    source: src/main.js
    deps: [./view]
  app/view:
    source: src/view.js
`,
		"src/main.js": "main",
		"src/view.js": "view",
	})

	builder := NewIncrementalBuilder(filepath.Join(tmpDir, "modules.yaml"), loader.PathResolver{}, nil)
	if !builder.LastBuild().IsZero() {
		t.Error("Expected no build yet")
	}

	result, err := builder.FullBuild()
	if err != nil {
		t.Fatalf("FullBuild failed: %v", err)
	}

	if len(result.Update.Definitions) != 2 {
		t.Errorf("Expected 2 definitions, got %d", len(result.Update.Definitions))
	}
	deps := result.Update.Graph["app/main"]
	if len(deps) != 1 || deps[0] != "app/view" {
		t.Errorf("Expected app/main -> app/view, got %v", deps)
	}
	if result.Update.Aliases["app/old"] != "app/view" {
		t.Errorf("Expected alias app/old -> app/view, got %v", result.Update.Aliases)
	}
	if len(result.Entries) != 1 || result.Entries[0] != hmr.ModuleID("app/main") {
		t.Errorf("Expected entries [app/main], got %v", result.Entries)
	}
	if builder.LastBuild().IsZero() {
		t.Error("Expected LastBuild to be set")
	}

	if !builder.IsSource(filepath.Join(tmpDir, "src", "view.js")) {
		t.Error("Expected src/view.js to be a source")
	}
	if builder.IsSource(filepath.Join(tmpDir, "src", "other.js")) {
		t.Error("Expected src/other.js not to be a source")
	}
	if !builder.IsManifest(filepath.Join(tmpDir, ".", "modules.yaml")) {
		t.Error("Expected manifest path to be recognized")
	}
}

func TestIncrementalBuilder_UnchangedSourcesStayEquivalent(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"modules.yaml": "modules:\n  a:\n    source: a.js\n  b:\n    source: b.js\n",
		"a.js":         "a v1",
		"b.js":         "b v1",
	})
	builder := NewIncrementalBuilder(filepath.Join(tmpDir, "modules.yaml"), loader.PathResolver{}, nil)

	first, err := builder.FullBuild()
	if err != nil {
		t.Fatalf("FullBuild failed: %v", err)
	}

	writeFiles(t, tmpDir, map[string]string{"b.js": "b v2"})
	second, err := builder.IncrementalBuild([]string{filepath.Join(tmpDir, "b.js")})
	if err != nil {
		t.Fatalf("IncrementalBuild failed: %v", err)
	}

	changes := hmr.Classify(first.Update.Definitions, second.Update.Definitions, nil)
	if len(changes.Changed) != 1 || changes.Changed[0] != "b" {
		t.Errorf("Expected only b to change, got %v", changes.Changed)
	}
	if len(second.ChangedFiles) != 1 {
		t.Errorf("Expected changed files to be carried, got %v", second.ChangedFiles)
	}
}

func TestIncrementalBuilder_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	builder := NewIncrementalBuilder(filepath.Join(tmpDir, "modules.yaml"), loader.PathResolver{}, nil)

	if _, err := builder.FullBuild(); err == nil {
		t.Error("Expected error for missing manifest")
	}

	writeFiles(t, tmpDir, map[string]string{
		"modules.yaml": "modules:\n  a:\n    source: missing.js\n",
	})
	if _, err := builder.FullBuild(); err == nil {
		t.Error("Expected error for missing source")
	}
	if !builder.LastBuild().IsZero() {
		t.Error("Expected failed builds not to count")
	}
}
