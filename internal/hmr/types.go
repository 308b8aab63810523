package hmr

import "sort"

// ModuleID identifies a module in the loader (a path-like key).
type ModuleID string

// RawGraph maps a module to the modules it depends on, as produced by a recompilation.
type RawGraph map[ModuleID][]ModuleID

// ExecFunc is a module body. It runs every time the module is (re)instantiated.
type ExecFunc func(m *Module) error

// Definition is one compiled version of a module.
//
// Version is the content hash or version token supplied by the build step; the
// default equivalence compares it to detect changes.
type Definition struct {
	Version string
	Exec    ExecFunc
}

// Definitions is a module definition table.
type Definitions map[ModuleID]Definition

// Module is the execution context handed to a module body.
type Module struct {
	ID      ModuleID
	Hot     *Hot
	Exports any

	// Require loads another module by specifier, relative to this module.
	Require func(spec string) (any, error)
}

// State is the payload written by dispose handlers and read back by the next
// instance of the same module.
type State map[string]any

// Resolver turns a dependency specifier used inside a module into an absolute id.
type Resolver interface {
	Resolve(from ModuleID, spec string) ModuleID
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(from ModuleID, spec string) ModuleID

func (f ResolverFunc) Resolve(from ModuleID, spec string) ModuleID {
	return f(from, spec)
}

// IdentityResolver treats every specifier as an absolute id.
var IdentityResolver = ResolverFunc(func(_ ModuleID, spec string) ModuleID {
	return ModuleID(spec)
})

// Loader is the module registry the engine drives during an update.
type Loader interface {
	Register(id ModuleID, def Definition)
	// Remove drops both the definition and any cached instance.
	Remove(id ModuleID)
	Alias(from, to ModuleID)
	Require(id ModuleID) (*Module, error)
}

// HotBinder is implemented by loaders that need the engine's Hot factory to build
// module contexts.
type HotBinder interface {
	BindHot(hot func(id ModuleID) *Hot)
}

// IDs returns the sorted keys of a definition table.
func (d Definitions) IDs() []ModuleID {
	ids := make([]ModuleID, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Clone returns a shallow copy of the table.
func (d Definitions) Clone() Definitions {
	out := make(Definitions, len(d))
	for id, def := range d {
		out[id] = def
	}
	return out
}

func sortIDs(ids []ModuleID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Strings converts ids for logging and wire formats.
func Strings(ids []ModuleID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
