package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/peoplesafe/sdlcjournal/internal/config"
	"github.com/peoplesafe/sdlcjournal/pkg/journal"
	"github.com/peoplesafe/sdlcjournal/pkg/period"
)

var errNoCompletionPassphrase = errors.New("completion: " + passphraseEnv + " not set")

// recentPeriodCount is how many period keys are suggested without opening the journal.
const recentPeriodCount = 4

// isDynamicCompletionEnabled checks if dynamic completion is opt-in enabled.
// Dynamic completion is disabled by default so tab completion never touches
// journal data.
func isDynamicCompletionEnabled() bool {
	return os.Getenv("SDLCJOURNAL_COMPLETION_ENABLED") == "1"
}

// completePeriodArgs completes "<type> <period>" argument pairs.
func completePeriodArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completePeriodTypes(cmd, args, toComplete)
	case 1:
		t, err := period.ParseType(args[0])
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		keys := periodKeysForCompletion(cmd.Context(), t)
		return filterPrefix(keys, toComplete), cobra.ShellCompDirectiveNoFileComp
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

// completePeriodTypes completes the four period type names.
func completePeriodTypes(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	names := make([]string, 0, len(period.Types))
	for _, t := range period.Types {
		names = append(names, t.String())
	}
	return filterPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeEntryDates provides entry date completion (opt-in only).
func completeEntryDates(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !isDynamicCompletionEnabled() {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var dates []string
	err := withCompletionJournal(cmd.Context(), func(cj *journal.Journal) error {
		metas, err := cj.ListEntries(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range metas {
			dates = append(dates, m.Date)
		}
		return nil
	})
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return filterPrefix(dates, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// periodKeysForCompletion returns periods with entries when dynamic
// completion can open the journal, and otherwise the most recent keys
// computed from today's date.
func periodKeysForCompletion(ctx context.Context, t period.Type) []string {
	if isDynamicCompletionEnabled() {
		var keys []string
		err := withCompletionJournal(ctx, func(cj *journal.Journal) error {
			p, err := cj.AvailablePeriods(ctx)
			if err != nil {
				return err
			}
			keys = p.For(t)
			return nil
		})
		if err == nil {
			return keys
		}
	}
	return recentPeriodKeys(t, time.Now(), recentPeriodCount)
}

// withCompletionJournal opens and unlocks the journal for the duration of fn.
// It never prompts: the passphrase must come from SDLCJOURNAL_PASSPHRASE.
func withCompletionJournal(ctx context.Context, fn func(*journal.Journal) error) error {
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		return errNoCompletionPassphrase
	}

	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagDataDir != "" {
		c.DataDir = flagDataDir
	}

	cj, err := journal.Open(ctx, c.DataDir, journal.WithoutAudit())
	if err != nil {
		return err
	}
	defer cj.Close()

	if err := cj.Unlock(ctx, passphrase); err != nil {
		return err
	}
	return fn(cj)
}

// recentPeriodKeys returns the keys of the n periods of type t ending with
// the one containing now, newest first.
func recentPeriodKeys(t period.Type, now time.Time, n int) []string {
	now = now.Local()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var d time.Time
		switch t {
		case period.Weekly:
			d = today.AddDate(0, 0, -7*i)
		case period.Monthly:
			d = firstOfMonth.AddDate(0, -i, 0)
		case period.Quarterly:
			d = firstOfMonth.AddDate(0, -3*i, 0)
		case period.Yearly:
			d = firstOfMonth.AddDate(-i, 0, 0)
		default:
			return nil
		}
		key, err := t.Key(period.FormatDate(d))
		if err != nil {
			return nil
		}
		keys = append(keys, key)
	}
	return keys
}

func filterPrefix(values []string, prefix string) []string {
	var filtered []string
	lowerPrefix := strings.ToLower(prefix)
	for _, v := range values {
		if strings.HasPrefix(strings.ToLower(v), lowerPrefix) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// registerCompletionFunctions registers ValidArgsFunction for commands that support
// dynamic completion.
func registerCompletionFunctions() {
	rollupCmd.ValidArgsFunction = completePeriodArgs
	reflectCmd.ValidArgsFunction = completePeriodArgs

	showCmd.ValidArgsFunction = completeEntryDates
	deleteCmd.ValidArgsFunction = completeEntryDates

	_ = periodsCmd.RegisterFlagCompletionFunc("type", completePeriodTypes)
	_ = listCmd.RegisterFlagCompletionFunc("type", completePeriodTypes)
}
