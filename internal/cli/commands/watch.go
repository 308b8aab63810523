package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/hmr/internal/watch"
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Start the development server with hot module replacement",
		Long: `Start the development server. It watches the manifest and every module
source and, after each change:
  • rebuilds the manifest and classifies the modules
  • propagates the changes up the dependency graph
  • re-runs accepted modules in place, or asks browsers to reload

Browsers connect by loading /__hmr/client.js. The graph, the status of the last
cycle and Prometheus metrics are served under /__hmr/graph, /__hmr/status and
/metrics.

Examples:
  # Start with hmr.yaml from the working directory
  hmr watch

  # Use a custom port
  hmr watch --port 8080
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}

			logger, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			devServer, err := watch.NewDevServer(&watch.DevServerConfig{
				Address:        cfg.Address(),
				ManifestPath:   cfg.Manifest,
				WatchPatterns:  cfg.Watch.Patterns,
				IgnorePatterns: cfg.Watch.Ignore,
				Debounce:       cfg.Watch.Debounce,
				Metrics:        cfg.Metrics.Enabled,
				Logger:         logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create dev server: %w", err)
			}

			if err := devServer.Start(); err != nil {
				return fmt.Errorf("failed to start dev server: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			banner := color.New(color.FgCyan, color.Bold)
			info := color.New(color.FgWhite)
			if noColor(cmd) {
				banner.DisableColor()
				info.DisableColor()
			}

			fmt.Fprintln(out)
			banner.Fprintln(out, "🔥 HMR Development Server")
			info.Fprintf(out, "   Server:   http://%s\n", devServer.Addr())
			info.Fprintf(out, "   Client:   http://%s%s\n", devServer.Addr(), watch.RouteClient)
			info.Fprintf(out, "   Manifest: %s\n", cfg.Manifest)
			fmt.Fprintln(out)

			<-ctx.Done()

			fmt.Fprintln(out, "Shutting down...")
			if err := devServer.Stop(); err != nil {
				logger.Error("failed to stop dev server", zap.Error(err))
				return fmt.Errorf("error stopping dev server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 3000, "Development server port (overrides server.port)")
	cmd.Flags().StringVar(&host, "host", "localhost", "Development server host (overrides server.host)")

	return cmd
}
