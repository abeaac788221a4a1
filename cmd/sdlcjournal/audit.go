package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/peoplesafe/sdlcjournal/pkg/audit"
)

var (
	auditLimit int
	auditSince string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the tamper-evident audit log",
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h, 7d)")
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !cfg.Audit {
			return fmt.Errorf("audit logging is disabled in the configuration")
		}

		// Unlock to derive the HMAC key
		if err := ensureUnlocked(cmd.Context(), out); err != nil {
			return err
		}

		var since time.Time
		if auditSince != "" {
			duration, err := parseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = time.Now().Add(-duration)
		}

		events, err := j.AuditLogger().ListEvents(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}
		printAuditEvents(out, events)
		return nil
	},
}

// auditVerifyCmd verifies audit log integrity
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !cfg.Audit {
			return fmt.Errorf("audit logging is disabled in the configuration")
		}

		if err := ensureUnlocked(cmd.Context(), out); err != nil {
			return err
		}

		fmt.Fprintln(out, "Verifying audit log integrity...")

		result, err := j.AuditLogger().Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}
		printVerifyResult(out, result)
		if !result.Valid {
			return fmt.Errorf("audit log verification failed")
		}
		return nil
	},
}

func printAuditEvents(w io.Writer, events []audit.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No audit events found")
		return
	}

	for _, event := range events {
		// Format: TIMESTAMP OPERATION RESULT SOURCE [record] [error] [ctx]
		line := fmt.Sprintf("%s %s %s %s", event.Timestamp, event.Operation, event.Result, event.Source)
		if event.Record != "" {
			rec := event.Record
			if len(rec) > 16 {
				rec = rec[:16] + "..."
			}
			line += fmt.Sprintf(" record:%s", rec)
		}
		if event.Error != nil {
			line += fmt.Sprintf(" error:%s", event.Error.Code)
		}
		if ctx := formatContext(event.Context); ctx != "" {
			line += " " + ctx
		}
		fmt.Fprintln(w, line)
	}
}

// formatContext renders ctx as sorted key=value pairs.
func formatContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(ctx[k])
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, " ")
}

func printVerifyResult(w io.Writer, result *audit.VerifyResult) {
	if result.Valid {
		fmt.Fprintf(w, "✓ Audit log verified: %d records, chain intact\n", result.RecordsTotal)
		return
	}
	fmt.Fprintf(w, "✗ Audit log verification FAILED\n")
	fmt.Fprintf(w, "  Records total: %d\n", result.RecordsTotal)
	fmt.Fprintf(w, "  Records verified: %d\n", result.RecordsVerified)
	fmt.Fprintln(w, "  Errors:")
	for _, e := range result.Errors {
		fmt.Fprintf(w, "    - %s\n", e)
	}
}
