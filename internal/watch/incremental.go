package watch

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/hmr/internal/hmr"
	"github.com/conduit-lang/hmr/internal/manifest"
)

// IncrementalBuilder turns the module manifest into update inputs. It stands in
// for the recompilation step: every build re-reads the manifest and re-hashes
// the module sources.
type IncrementalBuilder struct {
	manifestPath string
	resolver     hmr.Resolver
	logger       *zap.Logger

	// Sources of the last successful build, absolute
	sources   map[string]struct{}
	lastBuild time.Time
}

// BuildResult holds the result of a build
type BuildResult struct {
	Update       hmr.Update
	Entries      []hmr.ModuleID
	ChangedFiles []string
	Duration     time.Duration
}

// NewIncrementalBuilder creates a builder for the manifest at manifestPath
func NewIncrementalBuilder(manifestPath string, resolver hmr.Resolver, logger *zap.Logger) *IncrementalBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncrementalBuilder{
		manifestPath: manifestPath,
		resolver:     resolver,
		logger:       logger,
		sources:      make(map[string]struct{}),
	}
}

// FullBuild builds the manifest from scratch
func (b *IncrementalBuilder) FullBuild() (*BuildResult, error) {
	return b.IncrementalBuild(nil)
}

// IncrementalBuild rebuilds after changedFiles. Versions are content hashes, so
// modules whose sources did not change come out equivalent and the engine skips
// them.
func (b *IncrementalBuilder) IncrementalBuild(changedFiles []string) (*BuildResult, error) {
	start := time.Now()

	m, err := manifest.Load(b.manifestPath)
	if err != nil {
		return nil, err
	}
	defs, err := m.Definitions(b.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build definitions: %w", err)
	}

	sources := make(map[string]struct{})
	for _, src := range m.SourcePaths() {
		sources[absPath(src)] = struct{}{}
	}
	b.sources = sources
	b.lastBuild = time.Now()

	result := &BuildResult{
		Update: hmr.Update{
			Graph:       m.Graph(b.resolver),
			Definitions: defs,
			Aliases:     m.AliasMap(),
		},
		Entries:      m.EntryIDs(),
		ChangedFiles: changedFiles,
		Duration:     time.Since(start),
	}

	b.logger.Debug("manifest built",
		zap.Int("modules", len(defs)),
		zap.Int("sources", len(sources)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// IsSource reports whether path is a module source of the last build
func (b *IncrementalBuilder) IsSource(path string) bool {
	_, ok := b.sources[absPath(path)]
	return ok
}

// IsManifest reports whether path is the manifest file
func (b *IncrementalBuilder) IsManifest(path string) bool {
	return absPath(path) == absPath(b.manifestPath)
}

// ManifestPath returns the manifest location
func (b *IncrementalBuilder) ManifestPath() string {
	return b.manifestPath
}

// LastBuild returns the time of the last successful build
func (b *IncrementalBuilder) LastBuild() time.Time {
	return b.lastBuild
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
