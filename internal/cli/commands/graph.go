package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/hmr/internal/cli/ui"
)

// NewGraphCommand creates the graph command
func NewGraphCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the module graph",
		Long: `Load the manifest, run every entry module and print the resulting dependency
graph together with the update policy each module registered.

Formats:
  text     aligned table (default)
  dot      Graphviz, e.g. hmr graph --format dot | dot -Tsvg > graph.svg
  mermaid  Mermaid flowchart
  json     node snapshot
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "text", "dot", "mermaid", "json":
			default:
				return fmt.Errorf("unknown format %q (want text, dot, mermaid or json)", format)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := commandLogger(cmd, cfg)
			if err != nil {
				return err
			}
			engine, _, err := loadEngine(cmd, cfg, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			g := engine.Graph()
			switch format {
			case "dot":
				fmt.Fprint(out, g.DOT())
			case "mermaid":
				fmt.Fprint(out, g.Mermaid())
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(g.Snapshot())
			default:
				ui.RenderGraph(out, g, noColor(cmd))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, dot, mermaid, json")

	return cmd
}
