// Package loader is an in-memory module registry: definitions are registered by
// id, instantiated once on first require and cached until removed.
package loader

import (
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/hmr/internal/hmr"
)

// maxAliasHops bounds alias chains so a cyclic remapping cannot hang a require.
const maxAliasHops = 32

// Registry implements hmr.Loader.
type Registry struct {
	defs     map[hmr.ModuleID]hmr.Definition
	cache    map[hmr.ModuleID]*hmr.Module
	aliases  map[hmr.ModuleID]hmr.ModuleID
	resolver hmr.Resolver
	hot      func(id hmr.ModuleID) *hmr.Hot
	logger   *zap.Logger
}

// NewRegistry creates an empty registry. A nil resolver defaults to PathResolver.
func NewRegistry(resolver hmr.Resolver, logger *zap.Logger) *Registry {
	if resolver == nil {
		resolver = PathResolver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		defs:     make(map[hmr.ModuleID]hmr.Definition),
		cache:    make(map[hmr.ModuleID]*hmr.Module),
		aliases:  make(map[hmr.ModuleID]hmr.ModuleID),
		resolver: resolver,
		logger:   logger,
	}
}

// BindHot implements hmr.HotBinder.
func (r *Registry) BindHot(hot func(id hmr.ModuleID) *hmr.Hot) {
	r.hot = hot
}

// Register stores a definition. A cached instance of the same id is kept until
// Remove is called.
func (r *Registry) Register(id hmr.ModuleID, def hmr.Definition) {
	r.defs[id] = def
}

// Remove drops the definition and the cached instance.
func (r *Registry) Remove(id hmr.ModuleID) {
	delete(r.defs, id)
	delete(r.cache, id)
}

// Alias makes requires of from resolve to to.
func (r *Registry) Alias(from, to hmr.ModuleID) {
	if from == to {
		delete(r.aliases, from)
		return
	}
	r.aliases[from] = to
}

// Has reports whether id (after aliasing) has a definition.
func (r *Registry) Has(id hmr.ModuleID) bool {
	_, ok := r.defs[r.target(id)]
	return ok
}

// Cached returns the live instance of id, if any.
func (r *Registry) Cached(id hmr.ModuleID) (*hmr.Module, bool) {
	m, ok := r.cache[r.target(id)]
	return m, ok
}

// Require returns the cached instance of id, executing its definition first if
// needed. The instance is cached before its body runs so dependency cycles see
// the partially initialized module.
func (r *Registry) Require(id hmr.ModuleID) (*hmr.Module, error) {
	id = r.target(id)
	if m, ok := r.cache[id]; ok {
		return m, nil
	}
	def, ok := r.defs[id]
	if !ok {
		return nil, fmt.Errorf("require %s: %w", id, hmr.ErrModuleNotFound)
	}

	m := &hmr.Module{ID: id}
	if r.hot != nil {
		m.Hot = r.hot(id)
	}
	m.Require = func(spec string) (any, error) {
		dep, err := r.Require(r.resolver.Resolve(id, spec))
		if err != nil {
			return nil, err
		}
		return dep.Exports, nil
	}
	r.cache[id] = m

	done := false
	defer func() {
		if !done {
			delete(r.cache, id)
		}
	}()
	if def.Exec != nil {
		if err := def.Exec(m); err != nil {
			return nil, fmt.Errorf("execute %s: %w", id, err)
		}
	}
	done = true
	r.logger.Debug("module executed", zap.String("module", string(id)))
	return m, nil
}

func (r *Registry) target(id hmr.ModuleID) hmr.ModuleID {
	for i := 0; i < maxAliasHops; i++ {
		next, ok := r.aliases[id]
		if !ok {
			return id
		}
		id = next
	}
	r.logger.Warn("alias chain too long", zap.String("module", string(id)))
	return id
}

// PathResolver resolves "./" and "../" specifiers against the requiring module's
// directory; anything else is taken as an absolute id.
type PathResolver struct{}

func (PathResolver) Resolve(from hmr.ModuleID, spec string) hmr.ModuleID {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		return hmr.ModuleID(path.Join(path.Dir(string(from)), spec))
	}
	return hmr.ModuleID(spec)
}
