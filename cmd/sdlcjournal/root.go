package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/peoplesafe/sdlcjournal/internal/config"
	"github.com/peoplesafe/sdlcjournal/internal/logger"
	"github.com/peoplesafe/sdlcjournal/pkg/audit"
	"github.com/peoplesafe/sdlcjournal/pkg/journal"
	"github.com/peoplesafe/sdlcjournal/pkg/keyring"
)

// passphraseEnv supplies the passphrase non-interactively.
const passphraseEnv = "SDLCJOURNAL_PASSPHRASE"

var (
	cfg *config.Config
	log zerolog.Logger
	j   *journal.Journal
)

// Global flags
var (
	flagConfig   string
	flagDataDir  string
	flagLogLevel string
)

// stdin is shared by prompts so buffered input is not lost between them.
var stdin = bufio.NewReader(os.Stdin)

var rootCmd = &cobra.Command{
	Use:   "sdlcjournal",
	Short: "sdlcjournal is an encrypted daily journal",
	Long: `An encrypted personal journal with weekly, monthly, quarterly and yearly rollups.

Each day answers four prompts: a success, a delight, something learned and a
compliment received. Entries are encrypted with a key derived from your
passphrase and never leave this machine unencrypted.`,
	SilenceUsage: true,
	// PersistentPreRunE loads configuration and opens the journal for every
	// subcommand that needs it.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipJournal(cmd) {
			return nil
		}

		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagDataDir != "" {
			cfg.DataDir = flagDataDir
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		log = logger.New(cfg.LogLevel, os.Stderr)

		// The MCP server opens its own journal.
		if cmd == mcpServerCmd {
			return nil
		}

		opts := []journal.Option{
			journal.WithLogger(log),
			journal.WithAutosaveDelay(cfg.AutosaveDelay),
			journal.WithAuditSource(audit.SourceCLI),
		}
		if !cfg.Audit {
			opts = append(opts, journal.WithoutAudit())
		}
		j, err = journal.Open(cmd.Context(), cfg.DataDir, opts...)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if j == nil {
			return nil
		}
		err := j.Close()
		j = nil
		return err
	},
}

func skipJournal(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == completionCmd {
			return true
		}
	}
	return cmd.Name() == cobra.ShellCompRequestCmd || cmd.Name() == cobra.ShellCompNoDescRequestCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Journal directory (default: ~/.sdlcjournal)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "Skip confirmation prompt")

	// Runs after the other files' init, once every flag is defined.
	registerCompletionFunctions()
}

// initCmd sets up a new journal
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up a new journal with a passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		first, err := j.IsFirstTime(ctx)
		if err != nil {
			return err
		}
		if !first {
			return fmt.Errorf("journal already initialized at %s", j.Dir())
		}

		fmt.Fprintf(out, "Initializing new journal in %s...\n", j.Dir())

		passphrase, err := readNewPassphrase(out)
		if err != nil {
			return err
		}

		// Hard failures come back from Setup; warnings are advisory.
		result := keyring.ValidatePassphrase(passphrase)
		if result.Valid {
			fmt.Fprintf(out, "Passphrase strength: %s\n", result.Strength)
			for _, warning := range result.Warnings {
				fmt.Fprintf(out, "Warning: %s\n", warning)
			}
		}

		if err := j.Setup(ctx, passphrase); err != nil {
			return fmt.Errorf("failed to set up journal: %w", err)
		}

		fmt.Fprintln(out, "Journal initialized. Keep your passphrase safe: it cannot be recovered.")
		return nil
	},
}

// unlockCmd verifies the passphrase
var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Verify the passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd.Context(), cmd.OutOrStdout()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Passphrase OK")
		return nil
	},
}

// statusCmd reports journal state without unlocking
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show journal location, size and disk usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := j.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), j.Dir(), stats, j.RemainingCooldown())
		return nil
	},
}

var clearForce bool

// clearCmd deletes all journal data
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every entry, reflection and the passphrase",
	Long: `Delete every entry and reflection and forget the passphrase.

This cannot be undone. Export a backup first if you may need the data.
It does not require the passphrase, so it is also the way to start over
after forgetting it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !clearForce {
			ok, err := confirm(out, "This will permanently delete all journal data. Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Clear cancelled.")
				return nil
			}
		}
		if err := j.ClearAll(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear journal: %w", err)
		}
		fmt.Fprintln(out, "Journal cleared.")
		return nil
	},
}

// ensureUnlocked prompts for the passphrase (or reads SDLCJOURNAL_PASSPHRASE)
// and unlocks the journal.
func ensureUnlocked(ctx context.Context, out io.Writer) error {
	if !j.IsLocked() {
		return nil
	}

	first, err := j.IsFirstTime(ctx)
	if err != nil {
		return err
	}
	if first {
		return errors.New("journal not initialized: run 'sdlcjournal init' first")
	}

	passphrase, err := readPassphrase(out, "Enter passphrase: ")
	if err != nil {
		return err
	}
	if err := j.Unlock(ctx, passphrase); err != nil {
		return fmt.Errorf("failed to unlock journal: %w", err)
	}
	return nil
}

// readPassphrase returns SDLCJOURNAL_PASSPHRASE when set, otherwise prompts
// on the terminal without echo.
func readPassphrase(out io.Writer, prompt string) (string, error) {
	if p, ok := os.LookupEnv(passphraseEnv); ok && p != "" {
		return p, nil
	}

	if !term.IsTerminal(int(syscall.Stdin)) { // #nosec G115 -- fd fits in int
		return "", fmt.Errorf("no terminal for passphrase prompt: set %s", passphraseEnv)
	}

	fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) // #nosec G115 -- fd fits in int
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(b), nil
}

func readNewPassphrase(out io.Writer) (string, error) {
	if p, ok := os.LookupEnv(passphraseEnv); ok && p != "" {
		return p, nil
	}

	p1, err := readPassphrase(out, "Enter passphrase: ")
	if err != nil {
		return "", err
	}
	p2, err := readPassphrase(out, "Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if p1 != p2 {
		return "", errors.New("passphrases do not match")
	}
	return p1, nil
}

// confirm asks a yes/no question; only "y" or "yes" confirms.
func confirm(out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return isYes(answer), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// parseDuration parses durations like "24h", "7d", "2w", "3m" (months) and
// "1y", falling back to time.ParseDuration.
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", valueStr)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative duration: %s", s)
	}

	switch unit {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(value) * 30 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		return time.ParseDuration(s)
	}
}
