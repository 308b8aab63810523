package hmr

// acceptorCallback is one accept(deps, fn) registration.
type acceptorCallback struct {
	deps []ModuleID
	fn   AcceptFunc
}

// Node is the persistent record of one module: its links and the update policy the
// module registered while executing.
type Node struct {
	ID       ModuleID
	Children []ModuleID
	Parents  []ModuleID

	AcceptSelf  bool
	DeclineSelf bool

	acceptors         map[ModuleID]struct{}
	acceptorCallbacks []acceptorCallback
	declining         map[ModuleID]struct{}
	disposeHandlers   []*DisposeHandler
}

func newNode(id ModuleID) *Node {
	return &Node{
		ID:        id,
		acceptors: make(map[ModuleID]struct{}),
		declining: make(map[ModuleID]struct{}),
	}
}

// Accepts reports whether the module handles updates of dep itself.
func (n *Node) Accepts(dep ModuleID) bool {
	_, ok := n.acceptors[dep]
	return ok
}

// Declines reports whether the module refuses hot updates of dep.
func (n *Node) Declines(dep ModuleID) bool {
	_, ok := n.declining[dep]
	return ok
}

// Acceptors returns the accepted dependencies, sorted.
func (n *Node) Acceptors() []ModuleID {
	return setIDs(n.acceptors)
}

// Declining returns the declined dependencies, sorted.
func (n *Node) Declining() []ModuleID {
	return setIDs(n.declining)
}

// DisposeHandlerCount returns the number of registered dispose handlers.
func (n *Node) DisposeHandlerCount() int {
	return len(n.disposeHandlers)
}

// resetPolicy forgets everything the previous instance registered. It runs right
// before the module is executed again, which registers its policy anew.
func (n *Node) resetPolicy() {
	n.AcceptSelf = false
	n.DeclineSelf = false
	n.acceptors = make(map[ModuleID]struct{})
	n.acceptorCallbacks = nil
	n.declining = make(map[ModuleID]struct{})
	n.disposeHandlers = nil
}

func setIDs(set map[ModuleID]struct{}) []ModuleID {
	ids := make([]ModuleID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Graph is the persistent dependency graph. Nodes keep the order in which they were
// first seen; propagation sweeps them in that order.
type Graph struct {
	nodes map[ModuleID]*Node
	order []ModuleID
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[ModuleID]*Node),
	}
}

// Merge folds a (possibly partial) raw adjacency into the graph.
//
// Every key gets exactly the declared children, duplicates included. A key's
// children are replaced, not appended to, so a dependency dropped by a rebuild
// also leaves the child's parents and repeated merges stay idempotent. Parents are
// deduplicated and kept symmetric with children. Policy and dispose handlers of
// existing nodes are left untouched.
func (g *Graph) Merge(raw RawGraph) {
	keys := make([]ModuleID, 0, len(raw))
	for id := range raw {
		keys = append(keys, id)
	}
	sortIDs(keys)

	for _, id := range keys {
		node := g.ensure(id)
		declared := raw[id]

		for _, old := range node.Children {
			if containsID(declared, old) {
				continue
			}
			if child, ok := g.nodes[old]; ok {
				child.Parents = removeID(child.Parents, id)
			}
		}

		node.Children = append([]ModuleID(nil), declared...)
		for _, childID := range declared {
			child := g.ensure(childID)
			if !containsID(child.Parents, id) {
				child.Parents = append(child.Parents, id)
			}
		}
	}
}

// Node returns the node for id.
func (g *Graph) Node(id ModuleID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in first-seen order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Remove deletes a node and every link pointing at it.
func (g *Graph) Remove(id ModuleID) {
	node, ok := g.nodes[id]
	if !ok {
		return
	}
	for _, childID := range node.Children {
		if child, ok := g.nodes[childID]; ok {
			child.Parents = removeID(child.Parents, id)
		}
	}
	for _, parentID := range node.Parents {
		if parent, ok := g.nodes[parentID]; ok {
			parent.Children = removeAllID(parent.Children, id)
		}
	}
	delete(g.nodes, id)
	g.order = removeID(g.order, id)
}

func (g *Graph) ensure(id ModuleID) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := newNode(id)
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n
}

func containsID(ids []ModuleID, id ModuleID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// removeID drops the first occurrence of id.
func removeID(ids []ModuleID, id ModuleID) []ModuleID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func removeAllID(ids []ModuleID, id ModuleID) []ModuleID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
