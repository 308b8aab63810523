package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/hmr/internal/cli/config"
	"github.com/conduit-lang/hmr/internal/cli/ui"
	"github.com/conduit-lang/hmr/internal/loader"
	"github.com/conduit-lang/hmr/internal/watch"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hmr",
		Short: "Hot module replacement for module graphs",
		Long: color.CyanString(`hmr - hot module replacement engine

hmr watches a module manifest and its sources, decides after every change which
modules can be replaced in place and pushes the result to connected browsers.
Changes nobody accepts fall back to a full reload.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./hmr.yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log engine activity")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewWatchCommand())
	rootCmd.AddCommand(NewResolveCommand())
	rootCmd.AddCommand(NewGraphCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the hmr version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), noColor(cmd))
			kv.AddRow("hmr version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func noColor(cmd *cobra.Command) bool {
	return color.NoColor || flagValue(cmd, "no-color") == "true"
}

// loadConfig loads --config, or hmr.yaml from the working directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagValue(cmd, "config"))
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), nil, noColor(cmd)))
		return nil, err
	}
	return cfg, nil
}

// commandLogger returns the configured logger with --verbose and a no-op one
// otherwise, so one-shot commands keep their output clean.
func commandLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	if flagValue(cmd, "verbose") != "true" {
		return zap.NewNop(), nil
	}
	return cfg.Logger()
}

// buildManifest builds the manifest named by cfg without starting a server.
func buildManifest(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*watch.BuildResult, error) {
	builder := watch.NewIncrementalBuilder(cfg.Manifest, loader.PathResolver{}, logger)

	var build *watch.BuildResult
	err := ui.WithSpinner(cmd.ErrOrStderr(), "Building "+cfg.Manifest, noColor(cmd), func() error {
		var err error
		build, err = builder.FullBuild()
		return err
	})
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ManifestError(cfg.Manifest, err, noColor(cmd)))
		return nil, err
	}
	return build, nil
}
