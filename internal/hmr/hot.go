package hmr

// AcceptFunc is called after accepted dependencies were re-executed. Callbacks
// registered for a single dependency receive nil; callbacks registered for several
// receive the subset of those dependencies that changed.
type AcceptFunc func(changed []ModuleID)

// DisposeFunc runs before a module instance is discarded and stores whatever the
// next instance needs in data.
type DisposeFunc func(data State)

// DisposeHandler is a registered dispose callback. The pointer identifies it for
// RemoveDisposeHandler.
type DisposeHandler struct {
	fn DisposeFunc
}

// Hot is the per-module handle a module body uses to declare its update policy.
type Hot struct {
	id     ModuleID
	engine *Engine
}

// ID returns the module the handle belongs to.
func (h *Hot) ID() ModuleID {
	return h.id
}

// Accept with no deps marks the module as self-accepting. With deps, the module
// takes over updates of those dependencies and cb is called once they re-executed.
func (h *Hot) Accept(cb AcceptFunc, deps ...string) {
	node := h.engine.graph.ensure(h.id)
	if len(deps) == 0 {
		node.AcceptSelf = true
		return
	}
	resolved := h.resolve(deps)
	for _, id := range resolved {
		node.acceptors[id] = struct{}{}
	}
	node.acceptorCallbacks = append(node.acceptorCallbacks, acceptorCallback{deps: resolved, fn: cb})
}

// Decline with no deps refuses any hot update of the module; with deps it refuses
// updates coming from those dependencies.
func (h *Hot) Decline(deps ...string) {
	node := h.engine.graph.ensure(h.id)
	if len(deps) == 0 {
		node.DeclineSelf = true
		return
	}
	for _, id := range h.resolve(deps) {
		node.declining[id] = struct{}{}
	}
}

// Dispose registers fn to run before the current instance is replaced or removed.
func (h *Hot) Dispose(fn DisposeFunc) *DisposeHandler {
	node := h.engine.graph.ensure(h.id)
	handler := &DisposeHandler{fn: fn}
	node.disposeHandlers = append(node.disposeHandlers, handler)
	return handler
}

// RemoveDisposeHandler unregisters a handler returned by Dispose.
func (h *Hot) RemoveDisposeHandler(handler *DisposeHandler) {
	node, ok := h.engine.graph.Node(h.id)
	if !ok {
		return
	}
	for i, registered := range node.disposeHandlers {
		if registered == handler {
			node.disposeHandlers = append(node.disposeHandlers[:i:i], node.disposeHandlers[i+1:]...)
			return
		}
	}
}

// Data returns the state left by the previous instance's dispose handlers, or an
// empty State on first load.
func (h *Hot) Data() State {
	if data, ok := h.engine.states[h.id]; ok {
		return data
	}
	return State{}
}

func (h *Hot) resolve(deps []string) []ModuleID {
	out := make([]ModuleID, len(deps))
	for i, dep := range deps {
		out[i] = h.engine.resolver.Resolve(h.id, dep)
	}
	return out
}
