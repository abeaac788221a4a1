package journal

import (
	"context"
	"errors"

	"github.com/peoplesafe/sdlcjournal/pkg/audit"
	"github.com/peoplesafe/sdlcjournal/pkg/backup"
)

// ImportResult is the outcome of Import.
type ImportResult struct {
	backup.ImportResult
	// RequiresUnlock is set when the imported passphrase material replaced
	// the stored one. The journal has been locked and must be unlocked with
	// the passphrase that belongs to the backup.
	RequiresUnlock bool
}

// Export returns a snapshot of every record. Ciphertext is not decrypted.
func (j *Journal) Export(ctx context.Context) (*backup.Snapshot, error) {
	if _, err := j.activeKey(); err != nil {
		return nil, err
	}
	j.saver.Flush()

	snap, err := backup.Export(ctx, j.store, j.now())
	if err != nil {
		return nil, err
	}
	j.record(audit.OpBackupExport, "", map[string]any{
		"entries": len(snap.Entries),
		"rollups": len(snap.Rollups),
	})
	return snap, nil
}

// Import merges snap into the journal. It is allowed while unlocked or
// before first setup. When the imported meta differs from the stored meta
// the journal is locked and RequiresUnlock is set.
func (j *Journal) Import(ctx context.Context, snap *backup.Snapshot, dryRun bool) (*ImportResult, error) {
	first, err := j.IsFirstTime(ctx)
	if err != nil {
		return nil, err
	}
	if !first {
		if _, err := j.activeKey(); err != nil {
			return nil, err
		}
	}
	j.saver.Flush()

	res, err := backup.Import(ctx, j.store, snap, backup.ImportOptions{DryRun: dryRun})
	if err != nil {
		code := "IMPORT_FAILED"
		if errors.Is(err, backup.ErrInvalidFormat) {
			code = "INVALID_FORMAT"
		}
		j.recordEvent(audit.OpBackupImport, audit.ResultError, "", &audit.ErrorInfo{Code: code, Message: err.Error()}, nil)
		return nil, err
	}

	result := &ImportResult{ImportResult: *res}
	j.record(audit.OpBackupImport, "", map[string]any{
		"entries":     res.EntriesApplied,
		"rollups":     res.RollupsApplied,
		"meta":        res.MetaApplied,
		"metaChanged": res.MetaChanged,
		"dryRun":      dryRun,
	})

	if !dryRun && res.MetaChanged {
		result.RequiresUnlock = true
		j.Lock()
	}
	return result, nil
}

// ClearAll deletes every entry, rollup and meta record and locks the
// journal. Pending autosaves are discarded. It does not require an unlocked
// journal, so a forgotten passphrase can be recovered from by starting over.
func (j *Journal) ClearAll(ctx context.Context) error {
	j.beginClosing()
	j.saver.Stop()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.closing = false

	j.record(audit.OpJournalClear, "", nil)
	if err := j.store.Clear(ctx); err != nil {
		return err
	}
	if err := j.clearLockState(); err != nil {
		j.log.Warn().Err(err).Msg("failed to clear unlock state")
	}
	j.lockLocked()
	return nil
}
