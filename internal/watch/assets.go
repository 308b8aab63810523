package watch

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// AssetWatcher handles changes to static files that are not modules
type AssetWatcher struct {
	reloadServer *ReloadServer
	logger       *zap.Logger
}

// NewAssetWatcher creates a new asset watcher
func NewAssetWatcher(reloadServer *ReloadServer, logger *zap.Logger) *AssetWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetWatcher{
		reloadServer: reloadServer,
		logger:       logger.Named("assets"),
	}
}

// HandleAssetChange swaps stylesheets in place and reloads the page for
// anything else
func (aw *AssetWatcher) HandleAssetChange(files []string) {
	var stylesheets, other []string
	for _, file := range files {
		if IsStylesheet(file) {
			stylesheets = append(stylesheets, file)
		} else {
			other = append(other, file)
		}
	}

	if len(other) > 0 {
		aw.logger.Info("assets changed", zap.Strings("files", other))
		aw.reloadServer.NotifyReload("asset changed: " + strings.Join(other, ", "))
		return
	}
	if len(stylesheets) > 0 {
		aw.logger.Info("stylesheets changed", zap.Strings("files", stylesheets))
		aw.reloadServer.NotifyCSS(stylesheets)
	}
}

// IsStylesheet reports whether a file can be swapped without a reload
func IsStylesheet(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".css", ".scss", ".sass", ".less":
		return true
	}
	return false
}

// IsAssetFile checks if a file is a static asset
func IsAssetFile(path string) bool {
	if strings.Contains(path, "public/") || strings.Contains(path, "assets/") {
		return true
	}

	ext := strings.ToLower(filepath.Ext(path))
	assetExtensions := []string{
		".css", ".scss", ".sass", ".less",
		".html",
		".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
		".woff", ".woff2", ".ttf", ".eot",
	}

	for _, assetExt := range assetExtensions {
		if ext == assetExt {
			return true
		}
	}

	return false
}

// ChangeImpact represents the impact of a batch of file changes
type ChangeImpact struct {
	Scope   ImpactScope
	Modules []string // module sources and the manifest
	Assets  []string
}

// ImpactScope defines the scope of changes
type ImpactScope int

const (
	ScopeNone   ImpactScope = iota // Nothing the browser cares about
	ScopeAsset                     // Stylesheet swap or page reload
	ScopeModule                    // Update cycle
)

func (s ImpactScope) String() string {
	switch s {
	case ScopeAsset:
		return "asset"
	case ScopeModule:
		return "module"
	default:
		return "none"
	}
}

// SourceSet tells module files apart from everything else
type SourceSet interface {
	IsSource(path string) bool
	IsManifest(path string) bool
}

// AnalyzeImpact sorts changed files into module changes and asset changes.
// Module sources are checked first, so a stylesheet listed in the manifest
// goes through an update cycle.
func AnalyzeImpact(files []string, sources SourceSet) *ChangeImpact {
	impact := &ChangeImpact{}

	for _, file := range files {
		switch {
		case sources.IsManifest(file) || sources.IsSource(file):
			impact.Modules = append(impact.Modules, file)
			impact.Scope = ScopeModule

		case IsAssetFile(file):
			impact.Assets = append(impact.Assets, file)
			if impact.Scope < ScopeAsset {
				impact.Scope = ScopeAsset
			}
		}
	}

	return impact
}
