package main

import (
	"fmt"
	"io"
	"time"

	"github.com/peoplesafe/sdlcjournal/pkg/journal"
)

func printStatus(w io.Writer, dir string, s *journal.Stats, cooldown time.Duration) {
	fmt.Fprintf(w, "Journal:      %s\n", dir)
	switch {
	case s.FirstTime:
		fmt.Fprintln(w, "State:        not initialized (run 'sdlcjournal init')")
	case s.Locked:
		fmt.Fprintln(w, "State:        locked")
	default:
		fmt.Fprintln(w, "State:        unlocked")
	}
	if cooldown > 0 {
		fmt.Fprintf(w, "Cooldown:     %s remaining after failed unlock attempts\n", cooldown.Round(time.Second))
	}
	fmt.Fprintf(w, "Entries:      %d\n", s.Entries)
	fmt.Fprintf(w, "Reflections:  %d\n", s.Rollups)
	fmt.Fprintf(w, "Database:     %s\n", formatBytes(uint64(max(s.DatabaseBytes, 0))))

	if s.Disk == nil {
		fmt.Fprintln(w, "Disk:         unknown")
		return
	}
	fmt.Fprintf(w, "Disk:         %s free of %s (%d%% used)\n",
		formatBytes(s.Disk.Available), formatBytes(s.Disk.Total), s.Disk.UsedPct)
	if s.DiskLow {
		fmt.Fprintln(w, "Warning: disk space is low; saving may fail")
	}
}

// formatBytes renders n with a binary unit suffix.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
