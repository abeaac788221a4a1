package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/peoplesafe/sdlcjournal/pkg/backup"
)

var (
	exportOutput string
	exportStdout bool
	exportForce  bool

	importDryRun bool
	importForce  bool
)

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: sdlcjournal-backup-<today>.json)")
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "Output to stdout (for piping)")
	exportCmd.Flags().BoolVarP(&exportForce, "force", "f", false, "Overwrite existing file")

	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without making changes")
	importCmd.Flags().BoolVarP(&importForce, "force", "f", false, "Skip confirmation prompt")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the journal to a backup file",
	Long: `Export every entry and reflection to a JSON backup file.

Records stay encrypted in the backup; restoring it needs the passphrase that
was active when it was exported.

Examples:
  # Backup to the default file name in the current directory
  sdlcjournal export

  # Backup to a file
  sdlcjournal export -o journal.json

  # Backup to stdout (for piping)
  sdlcjournal export --stdout | gzip > journal.json.gz

  # Overwrite existing file
  sdlcjournal export -o journal.json --force`,
	RunE: executeExport,
}

func executeExport(cmd *cobra.Command, args []string) error {
	if err := validateExportFlags(); err != nil {
		return err
	}

	ctx := cmd.Context()
	// Prompts go to stderr so --stdout stays a clean snapshot.
	if err := ensureUnlocked(ctx, cmd.ErrOrStderr()); err != nil {
		return err
	}

	snap, err := j.Export(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if exportStdout {
		return backup.Write(cmd.OutOrStdout(), snap)
	}

	path := exportOutput
	if path == "" {
		path = backup.FileName(j.Today())
	}
	if err := writeSnapshotFile(path, snap, exportForce); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Backup created successfully: %s (%d entries, %d reflections)\n",
		path, len(snap.Entries), len(snap.Rollups))
	return nil
}

func validateExportFlags() error {
	if exportStdout && exportOutput != "" {
		return fmt.Errorf("--output and --stdout are mutually exclusive")
	}
	return nil
}

// writeSnapshotFile creates path with owner-only permissions. An existing
// file is only replaced when force is set.
func writeSnapshotFile(path string, snap *backup.Snapshot, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("output file already exists: %s (use --force to overwrite)", path)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := backup.Write(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var importCmd = &cobra.Command{
	Use:   "import <backup-file>",
	Short: "Merge a backup file into the journal",
	Long: `Merge a backup file into the journal.

For every entry and reflection, the copy with the later update time wins.
Nothing is deleted. The passphrase settings of the backup replace the
current ones; when they differ, the journal is locked and must be unlocked
with the backup's passphrase.

Importing into a journal that has not been set up yet needs no passphrase.

Examples:
  # Preview only
  sdlcjournal import journal.json --dry-run

  # Merge without confirmation
  sdlcjournal import journal.json --force`,
	Args: cobra.ExactArgs(1),
	RunE: executeImport,
}

func executeImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	path := args[0]

	snap, err := readSnapshotFile(path)
	if err != nil {
		return err
	}

	first, err := j.IsFirstTime(ctx)
	if err != nil {
		return err
	}
	if !first {
		if err := ensureUnlocked(ctx, out); err != nil {
			return err
		}
	}

	// Preview first so the user sees what will change.
	preview, err := j.Import(ctx, snap, true)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	printImportResult(out, &preview.ImportResult, false)
	if importDryRun {
		return nil
	}

	if !importForce && !first {
		ok, err := confirm(out, "Apply these changes?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Import cancelled.")
			return nil
		}
	}

	res, err := j.Import(ctx, snap, false)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	printImportResult(out, &res.ImportResult, res.RequiresUnlock)
	return nil
}

func readSnapshotFile(path string) (*backup.Snapshot, error) {
	f, err := os.Open(path) // #nosec G304 -- user-supplied backup path
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("backup file not found: %s", path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap, err := backup.Read(f)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return snap, nil
}

func printImportResult(w io.Writer, res *backup.ImportResult, requiresUnlock bool) {
	if res.DryRun {
		fmt.Fprintln(w, "Dry run: no changes made")
	} else {
		fmt.Fprintln(w, "Import complete")
	}
	fmt.Fprintf(w, "  Entries:     %d in backup, %d newer than local\n", res.EntriesImported, res.EntriesApplied)
	fmt.Fprintf(w, "  Reflections: %d in backup, %d newer than local\n", res.RollupsImported, res.RollupsApplied)
	switch {
	case res.MetaChanged && res.DryRun:
		fmt.Fprintln(w, "  Passphrase settings differ from this journal's and will be replaced")
	case res.MetaChanged:
		fmt.Fprintln(w, "  Passphrase settings replaced")
	}
	if requiresUnlock {
		fmt.Fprintln(w, "\nThe journal is now locked. Unlock it with the passphrase of the backup.")
	}
}
