package main

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(sdlcjournal completion bash)

  # To load for each session (Linux):
  $ sdlcjournal completion bash > ~/.local/share/bash-completion/completions/sdlcjournal

  # To load for each session (macOS with Homebrew):
  $ sdlcjournal completion bash > $(brew --prefix)/etc/bash_completion.d/sdlcjournal

Zsh:
  # Ensure completion is enabled:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # Generate completion:
  $ sdlcjournal completion zsh > ~/.zsh/completions/_sdlcjournal
  # (create ~/.zsh/completions if needed, add to fpath in .zshrc)

Fish:
  $ sdlcjournal completion fish > ~/.config/fish/completions/sdlcjournal.fish

PowerShell:
  PS> sdlcjournal completion powershell >> $PROFILE

Period types and the most recent period keys always complete.

Dynamic completion (entry dates and periods with entries):
  Set SDLCJOURNAL_COMPLETION_ENABLED=1 and SDLCJOURNAL_PASSPHRASE to let
  completion open the journal. Without both, no journal data is read.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
