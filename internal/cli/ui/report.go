package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/conduit-lang/hmr/internal/hmr"
)

// RenderGraph writes one row per module with its dependencies and update policy.
func RenderGraph(w io.Writer, g *hmr.Graph, noColor bool) {
	table := NewTable(w, []string{"MODULE", "DEPENDENCIES", "ACCEPTS", "DECLINES"}, &TableOptions{NoColor: noColor})
	for _, n := range g.Nodes() {
		table.AddRow(
			string(n.ID),
			joinIDs(n.Children),
			policy(n.AcceptSelf, n.Acceptors()),
			policy(n.DeclineSelf, n.Declining()),
		)
	}
	table.Render()
}

// RenderResolution writes what a change to the given modules would do.
func RenderResolution(w io.Writer, g *hmr.Graph, changed []hmr.ModuleID, res hmr.Resolution, noColor bool) {
	Header(w, "Resolution", noColor)

	kv := NewKeyValueTable(w, noColor)
	kv.AddRow("Changed", joinIDs(changed))
	kv.AddRow("Passes", strconv.Itoa(res.Passes))
	kv.AddRow("Updated", strconv.Itoa(len(res.Updated)))
	kv.Render()
	fmt.Fprintln(w)

	if len(res.Updated) > 0 {
		bad := make(map[hmr.ModuleID]bool, len(res.Bad))
		for _, id := range res.Bad {
			bad[id] = true
		}

		table := NewTable(w, []string{"MODULE", "STATUS", "IMPORTED BY"}, &TableOptions{NoColor: noColor})
		for _, id := range res.Updated {
			status := "accepted"
			if bad[id] {
				status = "unaccepted"
			}
			var parents []hmr.ModuleID
			if n, ok := g.Node(id); ok {
				parents = n.Parents
			}
			table.AddRow(string(id), status, joinIDs(parents))
		}
		table.Render()
		fmt.Fprintln(w)
	}

	if res.AllOK {
		WriteSuccess(w, fmt.Sprintf("Hot update possible: %d module(s) re-run", len(res.Updated)), noColor)
		return
	}
	fmt.Fprint(w, ReloadRequired(&hmr.ReloadRequiredError{IDs: res.Bad}, noColor))
}

func joinIDs(ids []hmr.ModuleID) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(hmr.Strings(ids), ", ")
}

func policy(self bool, deps []hmr.ModuleID) string {
	var parts []string
	if self {
		parts = append(parts, "self")
	}
	parts = append(parts, hmr.Strings(deps)...)
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
