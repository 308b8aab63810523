package hmr

// markNode is the per-cycle overlay of one graph node. Policy is read from the
// persistent node; only the fields below are written during the search.
type markNode struct {
	node *Node

	updated         bool
	acceptChildren  bool
	declineChildren bool
	acceptedBy      []ModuleID
	declinedBy      []ModuleID
}

// markGraph is the throwaway state of one propagation cycle.
type markGraph struct {
	nodes map[ModuleID]*markNode
	order []*markNode
	dirty bool
}

// Resolution is the outcome of propagating a set of changes through the graph.
type Resolution struct {
	AllOK   bool
	Updated []ModuleID // every module that has to be re-instantiated
	Bad     []ModuleID // updated modules nobody accepted
	Passes  int
}

// Propagate decides whether the changed modules can be hot-updated. The graph is
// only read.
func Propagate(g *Graph, changed []ModuleID) Resolution {
	m := newMarkGraph(g, changed)

	var res Resolution
	for {
		m.dirty = false
		m.pass()
		res.Passes++

		res.Bad = m.bad()
		if len(res.Bad) == 0 || m.rejected() || !m.dirty {
			break
		}
	}

	res.AllOK = len(res.Bad) == 0
	for _, n := range m.order {
		if n.updated {
			res.Updated = append(res.Updated, n.node.ID)
		}
	}
	return res
}

func newMarkGraph(g *Graph, changed []ModuleID) *markGraph {
	m := &markGraph{
		nodes: make(map[ModuleID]*markNode, g.Len()),
		order: make([]*markNode, 0, g.Len()),
	}
	for _, node := range g.Nodes() {
		m.add(node)
	}
	for _, id := range changed {
		n, ok := m.nodes[id]
		if !ok {
			// Not in the graph: no parents and no policy.
			n = m.add(newNode(id))
		}
		n.updated = true
	}
	return m
}

func (m *markGraph) add(node *Node) *markNode {
	n := &markNode{node: node}
	m.nodes[node.ID] = n
	m.order = append(m.order, n)
	return n
}

func (m *markGraph) parents(n *markNode) []*markNode {
	out := make([]*markNode, 0, len(n.node.Parents))
	for _, id := range n.node.Parents {
		if p, ok := m.nodes[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *markGraph) accepted(n *markNode) bool {
	if n.declineChildren {
		return false
	}
	if n.acceptChildren {
		return true
	}
	if len(n.declinedBy) > 0 {
		return false
	}
	// Negotiated acceptance needs at least one parent: a root nobody imports has
	// no one to accept it.
	parents := m.parents(n)
	if len(parents) == 0 || len(parents) != len(n.acceptedBy) {
		return false
	}
	for _, p := range parents {
		if !containsID(n.acceptedBy, p.node.ID) {
			return false
		}
	}
	return true
}

// pass sweeps every node once. Writes land in the shared state immediately, so a
// node later in the sweep sees what earlier nodes did.
func (m *markGraph) pass() {
	for _, n := range m.order {
		if !n.updated {
			continue
		}
		if n.node.DeclineSelf {
			m.setDeclineChildren(n)
			continue
		}
		if m.accepted(n) {
			continue
		}

		parents := m.parents(n)
		if len(parents) > 0 && !n.declineChildren && m.allAccept(n, parents) {
			m.setAcceptChildren(n)
			continue
		}
		if n.node.AcceptSelf {
			m.setAcceptChildren(n)
			continue
		}

		for _, p := range parents {
			switch {
			case p.node.Declines(n.node.ID):
				m.setUpdated(p)
				m.addDeclinedBy(n, p.node.ID)
			case p.node.Accepts(n.node.ID):
				m.addAcceptedBy(n, p.node.ID)
			default:
				m.setUpdated(p)
				if p.node.AcceptSelf {
					m.setAcceptChildren(p)
				}
			}
		}
	}
}

// allAccept reports whether every parent either takes n over (updated and
// accepted itself, so it re-requires n) or already accepted n by negotiation, and
// none declines n. An untouched parent does not count.
func (m *markGraph) allAccept(n *markNode, parents []*markNode) bool {
	for _, p := range parents {
		if p.node.Declines(n.node.ID) {
			return false
		}
		if containsID(n.acceptedBy, p.node.ID) {
			continue
		}
		if !p.updated || !m.accepted(p) {
			return false
		}
	}
	return true
}

func (m *markGraph) bad() []ModuleID {
	var out []ModuleID
	for _, n := range m.order {
		if n.updated && !m.accepted(n) {
			out = append(out, n.node.ID)
		}
	}
	return out
}

// rejected reports a decline anywhere in the cycle. Both flags are permanent, so
// the cycle can no longer succeed.
func (m *markGraph) rejected() bool {
	for _, n := range m.order {
		if n.declineChildren || len(n.declinedBy) > 0 {
			return true
		}
	}
	return false
}

func (m *markGraph) setUpdated(n *markNode) {
	if !n.updated {
		n.updated = true
		m.dirty = true
	}
}

func (m *markGraph) setAcceptChildren(n *markNode) {
	if !n.acceptChildren {
		n.acceptChildren = true
		m.dirty = true
	}
}

func (m *markGraph) setDeclineChildren(n *markNode) {
	if !n.declineChildren {
		n.declineChildren = true
		m.dirty = true
	}
}

func (m *markGraph) addAcceptedBy(n *markNode, id ModuleID) {
	if !containsID(n.acceptedBy, id) {
		n.acceptedBy = append(n.acceptedBy, id)
		m.dirty = true
	}
}

func (m *markGraph) addDeclinedBy(n *markNode, id ModuleID) {
	if !containsID(n.declinedBy, id) {
		n.declinedBy = append(n.declinedBy, id)
		m.dirty = true
	}
}
