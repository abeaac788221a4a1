package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/peoplesafe/sdlcjournal/internal/cli"
	"github.com/peoplesafe/sdlcjournal/pkg/journal"
	"github.com/peoplesafe/sdlcjournal/pkg/period"
	"github.com/peoplesafe/sdlcjournal/pkg/rollup"
	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

// Prompts shown for each answer, in display order.
var prompts = map[rollup.Category]string{
	rollup.Success:    "Success: what went well today?",
	rollup.Delight:    "Delight: what made you smile?",
	rollup.Learning:   "Learning: what did you learn?",
	rollup.Compliment: "Compliment: what kind words did you receive?",
}

// Flags for write
var (
	writeDate       string
	writeSuccess    string
	writeDelight    string
	writeLearning   string
	writeCompliment string
)

// Flags for show, delete, recent and search
var (
	showDate     string
	deleteForce  bool
	recentLimit  int
	searchLimit  int
	listPeriod   string
	listPeriodOf string
)

func init() {
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(searchCmd)

	writeCmd.Flags().StringVarP(&writeDate, "date", "d", "", "Entry date YYYY-MM-DD (default: today)")
	writeCmd.Flags().StringVar(&writeSuccess, "success", "", "Answer to the success prompt")
	writeCmd.Flags().StringVar(&writeDelight, "delight", "", "Answer to the delight prompt")
	writeCmd.Flags().StringVar(&writeLearning, "learning", "", "Answer to the learning prompt")
	writeCmd.Flags().StringVar(&writeCompliment, "compliment", "", "Answer to the compliment prompt")

	showCmd.Flags().StringVarP(&showDate, "date", "d", "", "Entry date YYYY-MM-DD (default: today)")

	listCmd.Flags().StringVarP(&listPeriod, "type", "t", "", "Restrict to one period type: weekly, monthly, quarterly, yearly")
	listCmd.Flags().StringVarP(&listPeriodOf, "period", "p", "", "Period key for --type (e.g. 2026-W07, 2026-02, 2026-Q1, 2026)")

	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 0, "Number of entries to show (default from config)")

	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of results")
}

// writeCmd creates or replaces the entry for a day
var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write the entry for a day",
	Long: `Write the entry for a day.

Answers may be given as flags. Any prompt without a flag is asked
interactively; leave it blank to skip it. Writing a day that already has
an entry replaces it. At least one answer must be non-blank.`,
	Example: `  sdlcjournal write --success "Shipped the release" --learning "Rollbacks need a dry run"
  sdlcjournal write --date 2026-02-14`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		date := writeDate
		if date == "" {
			date = j.Today()
		}
		if _, err := period.ParseDate(date); err != nil {
			return err
		}

		if err := ensureUnlocked(ctx, out); err != nil {
			return err
		}

		c := journal.Content{
			Success:    writeSuccess,
			Delight:    writeDelight,
			Learning:   writeLearning,
			Compliment: writeCompliment,
		}
		if !anyAnswerFlag(cmd) {
			var err error
			c, err = promptContent(out, c)
			if err != nil {
				return err
			}
		}

		entry, err := j.SaveEntry(ctx, date, c)
		if errors.Is(err, journal.ErrEmptyEntry) {
			return errors.New("nothing to save: every answer is blank")
		}
		if err != nil {
			return fmt.Errorf("failed to save entry: %w", err)
		}

		label, _ := period.DateLabel(entry.Date)
		fmt.Fprintf(out, "Saved entry for %s\n", label)
		return nil
	},
}

func anyAnswerFlag(cmd *cobra.Command) bool {
	for _, name := range []string{"success", "delight", "learning", "compliment"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// promptContent asks each prompt in turn, one line per answer.
func promptContent(out io.Writer, c journal.Content) (journal.Content, error) {
	answers := map[rollup.Category]*string{
		rollup.Success:    &c.Success,
		rollup.Delight:    &c.Delight,
		rollup.Learning:   &c.Learning,
		rollup.Compliment: &c.Compliment,
	}
	for _, cat := range rollup.Categories {
		fmt.Fprintf(out, "%s\n> ", prompts[cat])
		line, err := stdin.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return c, err
		}
		*answers[cat] = strings.TrimSpace(line)
		if errors.Is(err, io.EOF) {
			break
		}
	}
	return c, nil
}

// showCmd prints entries
var showCmd = &cobra.Command{
	Use:   "show [date|pattern...]",
	Short: "Show the entry for a day, or every entry matching a pattern",
	Long: `Show the entry for a day, or every entry matching a pattern.

Dates are YYYY-MM-DD. Glob patterns match entry dates, oldest first:
  sdlcjournal show 2026-01-*      # every entry of January 2026
  sdlcjournal show 2026-0[12]-??  # January and February`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			args = []string{showDate}
			if showDate == "" {
				args[0] = j.Today()
			}
		}

		if err := ensureUnlocked(ctx, out); err != nil {
			return err
		}

		dates, err := resolveDates(cmd, args)
		if err != nil {
			return err
		}

		for i, date := range dates {
			entry, err := j.GetEntry(ctx, date)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no entry for %s", date)
			}
			if err != nil {
				return err
			}
			if i > 0 {
				fmt.Fprintln(out)
			}
			printEntry(out, entry)
		}
		return nil
	},
}

// resolveDates expands glob patterns in args against the stored entry dates.
// Plain dates are returned as given.
func resolveDates(cmd *cobra.Command, args []string) ([]string, error) {
	hasPattern := false
	for _, a := range args {
		if cli.IsPattern(a) {
			hasPattern = true
			break
		}
	}
	if !hasPattern {
		return args, nil
	}

	metas, err := j.ListEntries(cmd.Context())
	if err != nil {
		return nil, err
	}
	available := make([]string, 0, len(metas))
	for _, m := range metas {
		available = append(available, m.Date)
	}
	return cli.ExpandPatterns(args, available)
}

// listCmd lists entry dates without decrypting
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List entry dates, newest first",
	Long: `List entry dates, newest first.

Listing reads only dates and timestamps; nothing is decrypted.
With --type and --period, only entries inside that period are listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := ensureUnlocked(ctx, cmd.OutOrStdout()); err != nil {
			return err
		}

		metas, err := j.ListEntries(ctx)
		if err != nil {
			return err
		}

		if listPeriod != "" || listPeriodOf != "" {
			if listPeriod == "" || listPeriodOf == "" {
				return errors.New("--type and --period must be used together")
			}
			t, err := period.ParseType(listPeriod)
			if err != nil {
				return err
			}
			if err := period.ValidateKey(t, listPeriodOf); err != nil {
				return err
			}
			metas, err = filterByPeriod(metas, t, listPeriodOf)
			if err != nil {
				return err
			}
		}

		printEntryList(cmd.OutOrStdout(), metas)
		return nil
	},
}

func filterByPeriod(metas []store.EntryMeta, t period.Type, key string) ([]store.EntryMeta, error) {
	span, err := period.Bounds(t, key)
	if err != nil {
		return nil, err
	}
	var out []store.EntryMeta
	for _, m := range metas {
		if m.Date >= span.Start && m.Date <= span.End {
			out = append(out, m)
		}
	}
	return out, nil
}

// recentCmd prints the latest entries
var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent entries before today",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		limit := recentLimit
		if limit <= 0 {
			limit = cfg.RecentLimit
		}

		if err := ensureUnlocked(ctx, out); err != nil {
			return err
		}

		entries, err := j.RecentEntries(ctx, j.Today(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No entries yet")
			return nil
		}
		for i, e := range entries {
			if i > 0 {
				fmt.Fprintln(out)
			}
			printEntry(out, e)
		}
		return nil
	},
}

// deleteCmd removes entries
var deleteCmd = &cobra.Command{
	Use:   "delete <date|pattern...>",
	Short: "Delete the entry for a day, or every entry matching a pattern",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if err := ensureUnlocked(ctx, out); err != nil {
			return err
		}

		dates, err := resolveDates(cmd, args)
		if err != nil {
			return err
		}
		for _, date := range dates {
			exists, err := j.HasEntry(ctx, date)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("no entry for %s", date)
			}
		}

		if !deleteForce {
			question := fmt.Sprintf("Delete the entry for %s?", dates[0])
			if len(dates) > 1 {
				question = fmt.Sprintf("Delete %d entries (%s to %s)?", len(dates), dates[0], dates[len(dates)-1])
			}
			ok, err := confirm(out, question)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Delete cancelled.")
				return nil
			}
		}

		for _, date := range dates {
			if err := j.DeleteEntry(ctx, date); err != nil {
				return fmt.Errorf("failed to delete entry %s: %w", date, err)
			}
			fmt.Fprintf(out, "Deleted entry for %s\n", date)
		}
		return nil
	},
}

// searchCmd finds entries containing a phrase
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find entries containing a phrase",
	Long: `Find entries containing a phrase.

Matching ignores case and Unicode normalization differences.
Every entry is decrypted in memory to search it; nothing is indexed on disk.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return errors.New("query is required")
		}

		if err := ensureUnlocked(ctx, out); err != nil {
			return err
		}

		results, err := j.Search(ctx, query)
		if err != nil {
			return err
		}
		printSearchResults(out, results, searchLimit)
		return nil
	},
}

func printEntry(w io.Writer, e *journal.Entry) {
	label, err := period.DateLabel(e.Date)
	if err != nil {
		label = e.Date
	}
	fmt.Fprintln(w, label)
	fmt.Fprintln(w, strings.Repeat("=", len([]rune(label))))
	for _, cat := range rollup.Categories {
		text := strings.TrimSpace(e.Content.Field(cat))
		if text == "" {
			continue
		}
		fmt.Fprintf(w, "%-11s %s\n", titleCase(string(cat))+":", text)
	}
	fmt.Fprintf(w, "(updated %s)\n", e.UpdatedAt)
}

func printEntryList(w io.Writer, metas []store.EntryMeta) {
	if len(metas) == 0 {
		fmt.Fprintln(w, "No entries found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tDAY\tUPDATED")
	for _, m := range metas {
		day, err := period.ShortDateLabel(m.Date)
		if err != nil {
			day = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Date, day, m.UpdatedAt)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d entries\n", len(metas))
}

func printSearchResults(w io.Writer, results []journal.SearchResult, limit int) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching entries")
		return
	}
	shown := results
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, r := range shown {
		fmt.Fprintf(w, "%s  %s\n    %s\n", r.Date, r.Label, r.Preview)
	}
	if len(shown) < len(results) {
		fmt.Fprintf(w, "\n%d of %d matches shown (use --limit to see more)\n", len(shown), len(results))
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
