// Package manifest reads the module manifest used by the development server in
// place of a real recompilation step.
//
// A manifest lists every module with its dependencies, an optional source file
// whose content versions the module, and the hot-update policy the module
// registers when it executes:
//
//	entries: [app/main]
//	aliases:
//	  app/theme: app/theme-dark
//	modules:
//	  app/main:
//	    source: src/main.js
//	    deps: [./view, ./theme]
//	    hot:
//	      accept: [./view]
//	  app/view:
//	    source: src/view.js
//	  app/theme:
//	    hot:
//	      acceptSelf: true
package manifest

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/hmr/internal/hmr"
)

// Manifest is the parsed module manifest.
type Manifest struct {
	Entries []string              `yaml:"entries"`
	Aliases map[string]string     `yaml:"aliases,omitempty"`
	Modules map[string]ModuleSpec `yaml:"modules"`

	// dir is the directory source paths are relative to.
	dir string
}

// ModuleSpec declares one module.
type ModuleSpec struct {
	Source string   `yaml:"source,omitempty"`
	Deps   []string `yaml:"deps,omitempty"`
	Hot    HotSpec  `yaml:"hot,omitempty"`
}

// HotSpec is the policy a module registers through its Hot handle.
type HotSpec struct {
	AcceptSelf  bool     `yaml:"acceptSelf,omitempty"`
	Accept      []string `yaml:"accept,omitempty"`
	DeclineSelf bool     `yaml:"declineSelf,omitempty"`
	Decline     []string `yaml:"decline,omitempty"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse parses manifest data. Source paths are resolved against dir.
func Parse(data []byte, dir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Modules) == 0 {
		return nil, fmt.Errorf("manifest declares no modules")
	}
	for _, entry := range m.Entries {
		if _, ok := m.Modules[entry]; !ok {
			return nil, fmt.Errorf("entry %q is not a declared module", entry)
		}
	}
	m.dir = dir
	return &m, nil
}

// Marshal encodes the manifest as YAML.
func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// IDs returns the declared module ids, sorted.
func (m *Manifest) IDs() []hmr.ModuleID {
	ids := make([]hmr.ModuleID, 0, len(m.Modules))
	for id := range m.Modules {
		ids = append(ids, hmr.ModuleID(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// EntryIDs returns the entry modules.
func (m *Manifest) EntryIDs() []hmr.ModuleID {
	out := make([]hmr.ModuleID, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = hmr.ModuleID(e)
	}
	return out
}

// Graph returns the dependency adjacency with specifiers resolved.
func (m *Manifest) Graph(r hmr.Resolver) hmr.RawGraph {
	raw := make(hmr.RawGraph, len(m.Modules))
	for name, spec := range m.Modules {
		id := hmr.ModuleID(name)
		deps := make([]hmr.ModuleID, 0, len(spec.Deps))
		for _, dep := range spec.Deps {
			deps = append(deps, r.Resolve(id, dep))
		}
		raw[id] = deps
	}
	return raw
}

// AliasMap returns the alias remappings.
func (m *Manifest) AliasMap() map[hmr.ModuleID]hmr.ModuleID {
	out := make(map[hmr.ModuleID]hmr.ModuleID, len(m.Aliases))
	for from, to := range m.Aliases {
		out[hmr.ModuleID(from)] = hmr.ModuleID(to)
	}
	return out
}

// SourcePaths returns the absolute paths of every module source file.
func (m *Manifest) SourcePaths() []string {
	var out []string
	for _, id := range m.IDs() {
		if src := m.Modules[string(id)].Source; src != "" {
			out = append(out, m.sourcePath(src))
		}
	}
	return out
}

// Definitions builds the definition table. A module's version covers its source
// content and its declaration, so editing either counts as a change.
func (m *Manifest) Definitions(logger *zap.Logger) (hmr.Definitions, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defs := make(hmr.Definitions, len(m.Modules))
	for _, id := range m.IDs() {
		spec := m.Modules[string(id)]
		version, err := m.version(spec)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", id, err)
		}
		defs[id] = hmr.Definition{
			Version: version,
			Exec:    execFor(id, spec, version, logger),
		}
	}
	return defs, nil
}

func (m *Manifest) sourcePath(src string) string {
	if filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(m.dir, src)
}

func (m *Manifest) version(spec ModuleSpec) (string, error) {
	h := sha256.New()
	if spec.Source != "" {
		f, err := os.Open(m.sourcePath(spec.Source))
		if err != nil {
			return "", fmt.Errorf("failed to open source: %w", err)
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("failed to hash source: %w", err)
		}
	}

	decl, err := yaml.Marshal(spec)
	if err != nil {
		return "", err
	}
	h.Write(decl)

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// execFor returns the module body: require the dependencies, register the declared
// policy and carry a generation counter across instances.
func execFor(id hmr.ModuleID, spec ModuleSpec, version string, logger *zap.Logger) hmr.ExecFunc {
	return func(mod *hmr.Module) error {
		for _, dep := range spec.Deps {
			if _, err := mod.Require(dep); err != nil {
				return fmt.Errorf("require %s: %w", dep, err)
			}
		}

		generation := 1
		if mod.Hot != nil {
			if prev, ok := mod.Hot.Data()["generation"].(int); ok {
				generation = prev + 1
			}
			register(mod.Hot, spec.Hot, logger)
			mod.Hot.Dispose(func(data hmr.State) {
				data["generation"] = generation
			})
		}

		mod.Exports = map[string]any{
			"id":         string(id),
			"version":    version,
			"generation": generation,
		}
		logger.Debug("module executed",
			zap.String("module", string(id)),
			zap.Int("generation", generation),
		)
		return nil
	}
}

func register(hot *hmr.Hot, spec HotSpec, logger *zap.Logger) {
	if spec.AcceptSelf {
		hot.Accept(nil)
	}
	if len(spec.Accept) > 0 {
		owner := hot.ID()
		hot.Accept(func(changed []hmr.ModuleID) {
			logger.Info("[HMR] Accepted dependency update",
				zap.String("module", string(owner)),
				zap.String("deps", strings.Join(hmr.Strings(changed), ",")),
			)
		}, spec.Accept...)
	}
	if spec.DeclineSelf {
		hot.Decline()
	}
	if len(spec.Decline) > 0 {
		hot.Decline(spec.Decline...)
	}
}
