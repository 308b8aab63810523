package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/hmr/internal/cli/config"
	"github.com/conduit-lang/hmr/internal/cli/ui"
	"github.com/conduit-lang/hmr/internal/hmr"
	"github.com/conduit-lang/hmr/internal/loader"
	"github.com/conduit-lang/hmr/internal/watch"
)

// NewResolveCommand creates the resolve command
func NewResolveCommand() *cobra.Command {
	var (
		changed []string
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Check whether changed modules can be hot-applied",
		Long: `Load the manifest, run every entry module and propagate the given changes
through the dependency graph without touching a running program.

The report lists every module that would be re-run and whether somebody accepts
it. Modules nobody accepts force a full reload.

Examples:
  # What happens when app/view changes?
  hmr resolve --changed app/view

  # Fail in CI when a change would require a full reload
  hmr resolve --changed app/view,lib/util --strict
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(changed) == 0 {
				return fmt.Errorf("--changed requires at least one module id")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := commandLogger(cmd, cfg)
			if err != nil {
				return err
			}

			engine, build, err := loadEngine(cmd, cfg, logger)
			if err != nil {
				return err
			}

			ids := make([]hmr.ModuleID, 0, len(changed))
			for _, c := range changed {
				id := hmr.ModuleID(c)
				if _, ok := build.Update.Definitions[id]; !ok {
					known := hmr.Strings(build.Update.Definitions.IDs())
					fmt.Fprint(cmd.ErrOrStderr(), ui.ModuleNotFoundError(c, known, noColor(cmd)))
					return fmt.Errorf("%w: %s", hmr.ErrModuleNotFound, c)
				}
				ids = append(ids, id)
			}

			res := hmr.Propagate(engine.Graph(), ids)
			ui.RenderResolution(cmd.OutOrStdout(), engine.Graph(), ids, res, noColor(cmd))

			if strict && !res.AllOK {
				return &hmr.ReloadRequiredError{IDs: res.Bad}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&changed, "changed", nil, "Module ids to treat as changed (comma separated)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when a full reload would be required")
	_ = cmd.RegisterFlagCompletionFunc("changed", completeModuleIDs)

	return cmd
}

// loadEngine builds the manifest and runs its entries in a fresh engine.
func loadEngine(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*hmr.Engine, *watch.BuildResult, error) {
	build, err := buildManifest(cmd, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	resolver := loader.PathResolver{}
	registry := loader.NewRegistry(resolver, logger)
	for from, to := range build.Update.Aliases {
		registry.Alias(from, to)
	}

	engine := hmr.NewEngine(registry, hmr.WithLogger(logger), hmr.WithResolver(resolver))
	if err := engine.Load(build.Update.Graph, build.Update.Definitions, build.Entries...); err != nil {
		return nil, nil, fmt.Errorf("failed to load modules: %w", err)
	}
	return engine, build, nil
}
