// Package hmr decides which modules of a running program can be hot-replaced after
// a partial rebuild, and drives the replacement through a Loader.
//
// An Engine owns the persistent dependency graph. Modules declare their update
// policy through a Hot handle while they execute; every Update classifies the new
// definitions, merges the new adjacency, propagates the changes up the graph and,
// only when every changed module ends up accepted, disposes, replaces and re-runs
// the affected modules. Anything less is reported as a required full reload and
// leaves the loader untouched.
package hmr

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome classifies the result of one update cycle.
type Outcome int

const (
	OutcomeNoop    Outcome = iota // nothing changed
	OutcomeReload                 // changes could not be accepted
	OutcomeApplied                // changes were hot-applied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "noop"
	case OutcomeReload:
		return "reload"
	case OutcomeApplied:
		return "applied"
	}
	return "unknown"
}

// Update is the input of one cycle, produced by a recompilation.
type Update struct {
	Graph       RawGraph
	Definitions Definitions
	Aliases     map[ModuleID]ModuleID
}

// Result describes one update cycle.
type Result struct {
	Cycle      string
	Outcome    Outcome
	Changes    Changes
	Updated    []ModuleID
	Unresolved []ModuleID
	Failed     []*ExecError
	Passes     int
	Duration   time.Duration
}

// Err returns a *ReloadRequiredError when the cycle requires a full reload.
func (r *Result) Err() error {
	if r.Outcome != OutcomeReload {
		return nil
	}
	return &ReloadRequiredError{IDs: r.Unresolved}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithResolver sets how Hot resolves dependency specifiers.
func WithResolver(r Resolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithEquivalence sets how definitions are compared. Defaults to SameVersion.
func WithEquivalence(eq Equivalence) Option {
	return func(e *Engine) {
		e.equal = eq
	}
}

// Engine holds the graph, the current definition table and the states carried
// between module instances. It is not safe for concurrent use; cycles must be
// run one after another.
type Engine struct {
	graph    *Graph
	loader   Loader
	resolver Resolver
	equal    Equivalence
	logger   *zap.Logger

	defs   Definitions
	states map[ModuleID]State
	loaded bool
}

// NewEngine creates an engine driving loader.
func NewEngine(loader Loader, opts ...Option) *Engine {
	e := &Engine{
		graph:    NewGraph(),
		loader:   loader,
		resolver: IdentityResolver,
		equal:    SameVersion,
		logger:   zap.NewNop(),
		defs:     make(Definitions),
		states:   make(map[ModuleID]State),
	}
	for _, opt := range opts {
		opt(e)
	}
	if b, ok := loader.(HotBinder); ok {
		b.BindHot(e.Hot)
	}
	return e
}

// Graph exposes the persistent graph for inspection.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Definitions returns a copy of the current definition table.
func (e *Engine) Definitions() Definitions {
	return e.defs.Clone()
}

// Hot returns the policy handle of module id.
func (e *Engine) Hot(id ModuleID) *Hot {
	return &Hot{id: id, engine: e}
}

// Load seeds the graph and the loader on first start and executes the entry
// modules. Without entries every root module (one without parents) is executed.
func (e *Engine) Load(raw RawGraph, defs Definitions, entries ...ModuleID) error {
	e.graph.Merge(raw)
	e.defs = defs.Clone()
	for _, id := range e.defs.IDs() {
		e.loader.Register(id, e.defs[id])
	}
	e.loaded = true

	if len(entries) == 0 {
		for _, node := range e.graph.Nodes() {
			if _, ok := e.defs[node.ID]; ok && len(node.Parents) == 0 {
				entries = append(entries, node.ID)
			}
		}
	}
	for _, id := range entries {
		if err := e.execute(id); err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}
	}

	e.logger.Info("[HMR] Loaded",
		zap.Int("modules", len(e.defs)),
		zap.Int("nodes", e.graph.Len()),
	)
	return nil
}

// Update runs one cycle. The returned error is only set for misuse; a change that
// cannot be hot-applied is reported through Result.Outcome.
func (e *Engine) Update(u Update) (*Result, error) {
	if !e.loaded {
		return nil, ErrNotLoaded
	}

	start := time.Now()
	res := &Result{Cycle: uuid.NewString()}
	log := e.logger.With(zap.String("cycle", res.Cycle))

	res.Changes = Classify(e.defs, u.Definitions, e.equal)
	if res.Changes.Empty() {
		// New aliases can show up even if no module changed.
		e.applyAliases(u.Aliases)
		res.Outcome = OutcomeNoop
		res.Duration = time.Since(start)
		log.Info("[HMR] Nothing changed")
		return res, nil
	}

	e.graph.Merge(u.Graph)

	resolution := Propagate(e.graph, res.Changes.Changed)
	res.Passes = resolution.Passes
	if !resolution.AllOK {
		res.Outcome = OutcomeReload
		res.Unresolved = resolution.Bad
		res.Duration = time.Since(start)
		log.Warn("[HMR] Can't accept changes, reloading",
			zap.Strings("modules", Strings(resolution.Bad)),
			zap.Int("passes", resolution.Passes),
		)
		return res, nil
	}

	// A removed module can still be marked by propagation through its old edges.
	res.Updated = without(resolution.Updated, res.Changes.Removed)
	res.Failed = e.apply(u, res.Changes, res.Updated, log)
	res.Outcome = OutcomeApplied
	res.Duration = time.Since(start)

	log.Info("[HMR] All updated",
		zap.Strings("updated", Strings(res.Updated)),
		zap.Strings("added", Strings(res.Changes.Added)),
		zap.Strings("removed", Strings(res.Changes.Removed)),
		zap.Int("failed", len(res.Failed)),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// apply commits a resolved cycle. Execution failures are collected, never
// aborting the rest of the cycle.
func (e *Engine) apply(u Update, changes Changes, updated []ModuleID, log *zap.Logger) []*ExecError {
	for _, id := range changes.Removed {
		e.dispose(id)
		delete(e.states, id)
		e.loader.Remove(id)
		e.graph.Remove(id)
		delete(e.defs, id)
	}

	for _, id := range changes.Added {
		def := u.Definitions[id]
		e.loader.Register(id, def)
		e.defs[id] = def
	}

	for _, id := range updated {
		e.states[id] = e.dispose(id)
		if node, ok := e.graph.Node(id); ok {
			node.resetPolicy()
		}
		def, ok := u.Definitions[id]
		if !ok {
			def = e.defs[id]
		}
		e.loader.Remove(id)
		e.loader.Register(id, def)
		e.defs[id] = def
	}

	// Before re-execution, so updated modules see the new targets.
	e.applyAliases(u.Aliases)

	var failed []*ExecError
	for _, id := range updated {
		if err := e.execute(id); err != nil {
			log.Error("[HMR] Module failed to execute", zap.String("module", string(id)), zap.Error(err))
			failed = append(failed, &ExecError{ID: id, Phase: "execute", Err: err})
		}
	}

	return append(failed, e.dispatch(updated, log)...)
}

// dispose runs the module's dispose handlers and returns what they stored.
func (e *Engine) dispose(id ModuleID) State {
	data := State{}
	node, ok := e.graph.Node(id)
	if !ok {
		return data
	}
	for _, h := range node.disposeHandlers {
		h.fn(data)
	}
	return data
}

// dispatch calls the accept callbacks of every parent that accepted one of the
// updated modules.
func (e *Engine) dispatch(updated []ModuleID, log *zap.Logger) []*ExecError {
	accepted := make(map[ModuleID][]ModuleID)
	var parents []ModuleID
	for _, id := range updated {
		node, ok := e.graph.Node(id)
		if !ok {
			continue
		}
		for _, parentID := range node.Parents {
			parent, ok := e.graph.Node(parentID)
			if !ok || !parent.Accepts(id) {
				continue
			}
			if _, seen := accepted[parentID]; !seen {
				parents = append(parents, parentID)
			}
			accepted[parentID] = append(accepted[parentID], id)
		}
	}

	var failed []*ExecError
	for _, parentID := range parents {
		parent, _ := e.graph.Node(parentID)
		for _, cb := range parent.acceptorCallbacks {
			changed := intersect(accepted[parentID], cb.deps)
			if len(changed) == 0 || cb.fn == nil {
				continue
			}
			var arg []ModuleID
			if len(cb.deps) > 1 {
				arg = changed
			}
			if err := invoke(func() { cb.fn(arg) }); err != nil {
				log.Error("[HMR] Accept callback failed", zap.String("module", string(parentID)), zap.Error(err))
				failed = append(failed, &ExecError{ID: parentID, Phase: "accept", Err: err})
			}
		}
	}
	return failed
}

func (e *Engine) applyAliases(aliases map[ModuleID]ModuleID) {
	from := make([]ModuleID, 0, len(aliases))
	for id := range aliases {
		from = append(from, id)
	}
	sort.Slice(from, func(i, j int) bool { return from[i] < from[j] })
	for _, id := range from {
		e.loader.Alias(id, aliases[id])
	}
}

func (e *Engine) execute(id ModuleID) error {
	var err error
	if perr := invoke(func() { _, err = e.loader.Require(id) }); perr != nil {
		return perr
	}
	return err
}

// invoke runs fn and turns a panic into an error.
func invoke(fn func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = recovered(v)
		}
	}()
	fn()
	return nil
}

// intersect returns the elements of a that also appear in b, without duplicates,
// in the order of a.
func without(a, b []ModuleID) []ModuleID {
	var out []ModuleID
	for _, id := range a {
		if !containsID(b, id) {
			out = append(out, id)
		}
	}
	return out
}

func intersect(a, b []ModuleID) []ModuleID {
	var out []ModuleID
	for _, id := range a {
		if containsID(b, id) && !containsID(out, id) {
			out = append(out, id)
		}
	}
	return out
}
