package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peoplesafe/sdlcjournal/pkg/period"
	"github.com/peoplesafe/sdlcjournal/pkg/rollup"
)

var (
	periodsType        string
	reflectText        string
	reflectShow        bool
	reflectClear       bool
	reflectInteractive bool
)

func init() {
	rootCmd.AddCommand(periodsCmd)
	rootCmd.AddCommand(rollupCmd)
	rootCmd.AddCommand(reflectCmd)

	periodsCmd.Flags().StringVarP(&periodsType, "type", "t", "", "Only list one period type: weekly, monthly, quarterly, yearly")

	reflectCmd.Flags().StringVar(&reflectText, "text", "", "Reflection text")
	reflectCmd.Flags().BoolVar(&reflectShow, "show", false, "Print the current reflection")
	reflectCmd.Flags().BoolVar(&reflectClear, "clear", false, "Remove the reflection")
	reflectCmd.Flags().BoolVarP(&reflectInteractive, "interactive", "i", false, "Write the reflection line by line; each line is autosaved")
	reflectCmd.MarkFlagsMutuallyExclusive("text", "show", "clear", "interactive")
}

// periodsCmd lists periods with entries
var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "List weeks, months, quarters and years that have entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		types := period.Types
		if periodsType != "" {
			t, err := period.ParseType(periodsType)
			if err != nil {
				return err
			}
			types = []period.Type{t}
		}

		if err := ensureUnlocked(ctx, out); err != nil {
			return err
		}

		p, err := j.AvailablePeriods(ctx)
		if err != nil {
			return err
		}
		printPeriods(out, p, types)
		return nil
	},
}

// rollupCmd prints a period summary
var rollupCmd = &cobra.Command{
	Use:   "rollup <type> <period>",
	Short: "Show the summary of a week, month, quarter or year",
	Long: `Show the summary of a week, month, quarter or year.

The summary lists every non-blank answer of the period grouped by prompt,
followed by the period's reflection and the reflections of the periods it
contains (weeks in a month, months in a quarter, quarters in a year).`,
	Example: `  sdlcjournal rollup weekly 2026-W07
  sdlcjournal rollup monthly 2026-02
  sdlcjournal rollup quarterly 2026-Q1
  sdlcjournal rollup yearly 2026`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		t, key, err := parsePeriodArgs(args)
		if err != nil {
			return err
		}

		if err := ensureUnlocked(ctx, out); err != nil {
			return err
		}

		view, err := j.Rollup(ctx, t, key)
		if err != nil {
			return err
		}
		printRollup(out, view)
		return nil
	},
}

// reflectCmd reads or writes the reflection of a period
var reflectCmd = &cobra.Command{
	Use:   "reflect <type> <period>",
	Short: "Write or show the reflection of a period",
	Long: `Write or show the reflection of a period.

With --text the reflection is replaced immediately. With --interactive each
line typed is appended and autosaved after a short pause; an empty line or
end of input finishes and writes whatever is still pending.`,
	Example: `  sdlcjournal reflect weekly 2026-W07 --text "A calm, focused week"
  sdlcjournal reflect monthly 2026-02 --show
  sdlcjournal reflect yearly 2026 --interactive`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		t, key, err := parsePeriodArgs(args)
		if err != nil {
			return err
		}
		if !reflectShow && !reflectClear && !reflectInteractive && !cmd.Flags().Changed("text") {
			return errors.New("one of --text, --show, --clear or --interactive is required")
		}

		if err := ensureUnlocked(ctx, out); err != nil {
			return err
		}

		label, _ := period.Label(t, key)

		switch {
		case reflectShow:
			text, err := j.Reflection(ctx, t, key)
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Fprintf(out, "No reflection for %s\n", label)
				return nil
			}
			fmt.Fprintln(out, text)
			return nil

		case reflectClear:
			if err := j.SaveReflection(ctx, t, key, ""); err != nil {
				return err
			}
			fmt.Fprintf(out, "Cleared reflection for %s\n", label)
			return nil

		case reflectInteractive:
			existing, err := j.Reflection(ctx, t, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Reflection for %s (empty line to finish)\n", label)
			if existing != "" {
				fmt.Fprintln(out, existing)
			}
			if err := composeReflection(stdin, func(text string) error {
				return j.ScheduleReflection(t, key, text)
			}, existing); err != nil {
				return err
			}
			j.FlushReflections()
			fmt.Fprintf(out, "Saved reflection for %s\n", label)
			return nil

		default:
			if err := j.SaveReflection(ctx, t, key, reflectText); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved reflection for %s\n", label)
			return nil
		}
	},
}

// lineReader is the part of bufio.Reader composeReflection uses.
type lineReader interface {
	ReadString(delim byte) (string, error)
}

// composeReflection appends lines from r to text and hands the whole text to
// save after every line. It stops at an empty line or end of input.
func composeReflection(r lineReader, save func(string) error, text string) error {
	for {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			if text != "" {
				text += "\n"
			}
			text += line
			if serr := save(text); serr != nil {
				return serr
			}
		}
		if line == "" || errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func parsePeriodArgs(args []string) (period.Type, string, error) {
	t, err := period.ParseType(args[0])
	if err != nil {
		return 0, "", err
	}
	if err := period.ValidateKey(t, args[1]); err != nil {
		return 0, "", err
	}
	return t, args[1], nil
}

func printPeriods(w io.Writer, p *rollup.Periods, types []period.Type) {
	for i, t := range types {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s:\n", titleCase(t.String()))
		keys := p.For(t)
		if len(keys) == 0 {
			fmt.Fprintln(w, "  (none)")
			continue
		}
		for _, key := range keys {
			label, err := period.Label(t, key)
			if err != nil {
				label = key
			}
			fmt.Fprintf(w, "  %-10s %s\n", key, label)
		}
	}
}

func printRollup(w io.Writer, v *rollup.View) {
	fmt.Fprintln(w, v.Label)
	fmt.Fprintln(w, strings.Repeat("=", len([]rune(v.Label))))
	fmt.Fprintf(w, "%d %s\n", v.EntryCount, plural(v.EntryCount, "entry", "entries"))

	for _, cat := range rollup.Categories {
		items := v.Items(cat)
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", titleCase(string(cat)))
		for _, it := range items {
			date := it.DateLabel
			if date == "" {
				date = it.Date
			}
			fmt.Fprintf(w, "  - %s (%s)\n", it.Text, date)
		}
	}

	if len(v.SubReflections) > 0 {
		fmt.Fprintln(w, "\nReflections of sub-periods")
		for _, sub := range v.SubReflections {
			fmt.Fprintf(w, "  %s: %s\n", sub.Label, sub.Reflection)
		}
	}

	fmt.Fprintln(w, "\nReflection")
	if v.Reflection == "" {
		fmt.Fprintln(w, "  (none)")
	} else {
		for _, line := range strings.Split(v.Reflection, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}

	if v.Skipped > 0 {
		fmt.Fprintf(w, "\nWarning: %d %s could not be decrypted and %s omitted\n",
			v.Skipped, plural(v.Skipped, "record", "records"), plural(v.Skipped, "was", "were"))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
