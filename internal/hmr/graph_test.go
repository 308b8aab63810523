package hmr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphMerge_CreatesNodesForKeysAndDependencies(t *testing.T) {
	g := NewGraph()
	g.Merge(RawGraph{
		"main": {"a", "b"},
		"a":    {"b"},
	})

	require.Equal(t, 3, g.Len())

	main, ok := g.Node("main")
	require.True(t, ok)
	assert.Equal(t, []ModuleID{"a", "b"}, main.Children)
	assert.Empty(t, main.Parents)

	b, ok := g.Node("b")
	require.True(t, ok)
	assert.Empty(t, b.Children)
	assert.Equal(t, []ModuleID{"a", "main"}, b.Parents)
}

func TestGraphMerge_Idempotent(t *testing.T) {
	raw := RawGraph{
		"main": {"a", "b", "a"},
		"a":    {"c"},
		"b":    {"c"},
	}
	g := NewGraph()
	g.Merge(raw)
	first := g.Snapshot()

	g.Merge(raw)
	assert.Equal(t, first, g.Snapshot())
}

func TestGraphMerge_KeepsDuplicateChildrenAndDedupsParents(t *testing.T) {
	g := NewGraph()
	g.Merge(RawGraph{"main": {"a", "a"}})

	main, _ := g.Node("main")
	a, _ := g.Node("a")
	assert.Equal(t, []ModuleID{"a", "a"}, main.Children)
	assert.Equal(t, []ModuleID{"main"}, a.Parents)
}

func TestGraphMerge_PreservesPolicy(t *testing.T) {
	e := NewEngine(nil)
	g := e.Graph()
	g.Merge(RawGraph{"main": {"a"}})

	hot := e.Hot("main")
	hot.Accept(func([]ModuleID) {}, "a")
	hot.Decline("b")
	hot.Dispose(func(State) {})
	e.Hot("a").Accept(nil)

	g.Merge(RawGraph{"main": {"a", "b"}, "a": {}})

	main, _ := g.Node("main")
	assert.True(t, main.Accepts("a"))
	assert.True(t, main.Declines("b"))
	assert.Equal(t, 1, main.DisposeHandlerCount())

	a, _ := g.Node("a")
	assert.True(t, a.AcceptSelf)
}

func TestGraphMerge_UnlinksDroppedDependency(t *testing.T) {
	g := NewGraph()
	g.Merge(RawGraph{"main": {"a", "b"}})
	g.Merge(RawGraph{"main": {"b"}})

	a, _ := g.Node("a")
	assert.Empty(t, a.Parents)

	main, _ := g.Node("main")
	assert.Equal(t, []ModuleID{"b"}, main.Children)
}

func TestGraphMerge_PartialAdjacencyLeavesOtherKeys(t *testing.T) {
	g := NewGraph()
	g.Merge(RawGraph{"main": {"a"}, "a": {"b"}})
	g.Merge(RawGraph{"main": {"a", "c"}})

	a, _ := g.Node("a")
	assert.Equal(t, []ModuleID{"b"}, a.Children)
	c, ok := g.Node("c")
	require.True(t, ok)
	assert.Equal(t, []ModuleID{"main"}, c.Parents)
}

func TestGraphRemove(t *testing.T) {
	g := NewGraph()
	g.Merge(RawGraph{"main": {"a", "b"}, "a": {"b"}})

	g.Remove("a")

	_, ok := g.Node("a")
	assert.False(t, ok)
	main, _ := g.Node("main")
	assert.Equal(t, []ModuleID{"b"}, main.Children)
	b, _ := g.Node("b")
	assert.Equal(t, []ModuleID{"main"}, b.Parents)
	assert.Equal(t, 2, g.Len())

	g.Remove("missing")
	assert.Equal(t, 2, g.Len())
}

func TestGraphNodes_FirstSeenOrder(t *testing.T) {
	g := NewGraph()
	g.Merge(RawGraph{"b": {"z"}})
	g.Merge(RawGraph{"a": {"b"}})

	var ids []ModuleID
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []ModuleID{"b", "z", "a"}, ids)
}

func TestGraphExport(t *testing.T) {
	e := NewEngine(nil)
	e.Graph().Merge(RawGraph{"main": {"a", "b"}})
	e.Hot("main").Accept(nil, "a")
	e.Hot("main").Decline("b")

	dot := e.Graph().DOT()
	assert.Contains(t, dot, "digraph hmr")
	assert.Contains(t, dot, "n0 -> n1 [color=green];")
	assert.Contains(t, dot, "n0 -> n2 [color=red];")

	mermaid := e.Graph().Mermaid()
	assert.Contains(t, mermaid, "graph TD")
	assert.Contains(t, mermaid, "n0 -- accepts --> n1")
	assert.Contains(t, mermaid, "n0 -- declines --> n2")
}
