package commands

import (
	"github.com/spf13/cobra"

	"github.com/conduit-lang/hmr/internal/cli/config"
	"github.com/conduit-lang/hmr/internal/hmr"
	"github.com/conduit-lang/hmr/internal/manifest"
)

// NewCompletionCommand creates the completion command for shell completions
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate a shell completion script for hmr. Module ids for
"hmr resolve --changed" are completed from the manifest.

Bash:

  $ source <(hmr completion bash)

Zsh:

  $ hmr completion zsh > "${fpath[1]}/_hmr"

Fish:

  $ hmr completion fish | source

PowerShell:

  PS> hmr completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			root := cmd.Root()

			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			default:
				return root.GenPowerShellCompletionWithDesc(out)
			}
		},
	}

	return cmd
}

// completeModuleIDs offers the manifest's module ids. Errors yield no
// suggestions rather than noise in the shell.
func completeModuleIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := config.Load(flagValue(cmd, "config"))
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	m, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return hmr.Strings(m.IDs()), cobra.ShellCompDirectiveNoFileComp
}
