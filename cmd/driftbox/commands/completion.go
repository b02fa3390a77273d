package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for driftbox.

To load completions:

Bash:
  # Linux:
  $ driftbox completion bash > /etc/bash_completion.d/driftbox
  # macOS:
  $ driftbox completion bash > $(brew --prefix)/etc/bash_completion.d/driftbox

Zsh:
  # To load completions for each session, execute once:
  # Linux:
  $ driftbox completion zsh > "${fpath[1]}/_driftbox"
  # macOS:
  $ driftbox completion zsh > $(brew --prefix)/share/zsh/site-functions/_driftbox

Fish:
  $ driftbox completion fish > ~/.config/fish/completions/driftbox.fish

PowerShell:
  PS> driftbox completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}
