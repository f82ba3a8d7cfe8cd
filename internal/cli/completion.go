package cli

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate a completion script covering the check commands (http, generic),
their thresholds and flags, and the history, report, relay and validate
subcommands.

Completion is for writing command definitions by hand. Monitoring engines
invoke nagcheck directly and never need it.

Bash:
  $ source <(nagcheck completion bash)

Zsh:
  $ nagcheck completion zsh > "${fpath[1]}/_nagcheck"

Fish:
  $ nagcheck completion fish > ~/.config/fish/completions/nagcheck.fish

PowerShell:
  PS> nagcheck completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:                  runCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
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
}
