package hmr

import (
	"fmt"
	"strings"
)

// NodeInfo is the serializable view of a node.
type NodeInfo struct {
	ID              ModuleID   `json:"id"`
	Children        []ModuleID `json:"children"`
	Parents         []ModuleID `json:"parents"`
	AcceptSelf      bool       `json:"acceptSelf"`
	Acceptors       []ModuleID `json:"acceptors,omitempty"`
	DeclineSelf     bool       `json:"declineSelf"`
	Declining       []ModuleID `json:"declining,omitempty"`
	DisposeHandlers int        `json:"disposeHandlers"`
}

// Snapshot returns every node in first-seen order.
func (g *Graph) Snapshot() []NodeInfo {
	out := make([]NodeInfo, 0, g.Len())
	for _, n := range g.Nodes() {
		out = append(out, NodeInfo{
			ID:              n.ID,
			Children:        append([]ModuleID{}, n.Children...),
			Parents:         append([]ModuleID{}, n.Parents...),
			AcceptSelf:      n.AcceptSelf,
			Acceptors:       n.Acceptors(),
			DeclineSelf:     n.DeclineSelf,
			Declining:       n.Declining(),
			DisposeHandlers: len(n.disposeHandlers),
		})
	}
	return out
}

// DOT exports Graphviz DOT text. Edges point from a module to its dependency;
// accepted dependencies are drawn green, declined ones red.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph hmr {\n")
	b.WriteString("  rankdir=LR;\n")

	aliases := g.aliases()
	for _, n := range g.Nodes() {
		attrs := fmt.Sprintf("label=\"%s\"", escapeLabel(string(n.ID)))
		switch {
		case n.DeclineSelf:
			attrs += ", color=red"
		case n.AcceptSelf:
			attrs += ", color=green"
		}
		b.WriteString(fmt.Sprintf("  %s [%s];\n", aliases[n.ID], attrs))
	}
	for _, n := range g.Nodes() {
		for _, child := range uniqueIDs(n.Children) {
			edge := fmt.Sprintf("  %s -> %s", aliases[n.ID], aliases[child])
			switch {
			case n.Declines(child):
				edge += " [color=red]"
			case n.Accepts(child):
				edge += " [color=green]"
			}
			b.WriteString(edge + ";\n")
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid graph text.
func (g *Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	aliases := g.aliases()
	for _, n := range g.Nodes() {
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", aliases[n.ID], escapeLabel(string(n.ID))))
	}
	for _, n := range g.Nodes() {
		for _, child := range uniqueIDs(n.Children) {
			arrow := "-->"
			if n.Accepts(child) {
				arrow = "-- accepts -->"
			} else if n.Declines(child) {
				arrow = "-- declines -->"
			}
			b.WriteString(fmt.Sprintf("    %s %s %s\n", aliases[n.ID], arrow, aliases[child]))
		}
	}
	return b.String()
}

func (g *Graph) aliases() map[ModuleID]string {
	out := make(map[ModuleID]string, g.Len())
	for i, id := range g.order {
		out[id] = fmt.Sprintf("n%d", i)
	}
	return out
}

func uniqueIDs(ids []ModuleID) []ModuleID {
	var out []ModuleID
	for _, id := range ids {
		if !containsID(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
