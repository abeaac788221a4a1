package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

// Source is the read side of a store, as needed by Export.
type Source interface {
	AllEntries(ctx context.Context) ([]*store.Entry, error)
	AllRollups(ctx context.Context) ([]*store.Rollup, error)
	ListMeta(ctx context.Context) ([]store.Meta, error)
}

// Target is the store Import merges into.
type Target interface {
	GetEntry(ctx context.Context, id string) (*store.Entry, error)
	PutEntry(ctx context.Context, e *store.Entry) error
	GetRollup(ctx context.Context, id string) (*store.Rollup, error)
	PutRollup(ctx context.Context, r *store.Rollup) error
	ListMeta(ctx context.Context) ([]store.Meta, error)
	PutMeta(ctx context.Context, pairs []store.Meta) error
}

// ImportOptions configures Import.
type ImportOptions struct {
	// DryRun computes the result without writing anything.
	DryRun bool
}

// ImportResult contains the result of an import.
type ImportResult struct {
	// EntriesImported is the number of entries in the snapshot.
	EntriesImported int
	// RollupsImported is the number of rollups in the snapshot.
	RollupsImported int
	// EntriesApplied is the number of entries written (newer than the existing copy).
	EntriesApplied int
	// RollupsApplied is the number of rollups written.
	RollupsApplied int
	// MetaApplied is the number of meta pairs written.
	MetaApplied int
	// MetaChanged reports whether the imported meta differs from what was stored.
	// The session key may no longer match the stored passphrase when set.
	MetaChanged bool
	// DryRun indicates nothing was written.
	DryRun bool
}

// Export collects every record of src. Ciphertext is copied as stored.
func Export(ctx context.Context, src Source, now time.Time) (*Snapshot, error) {
	entries, err := src.AllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect entries: %w", err)
	}
	rollups, err := src.AllRollups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect rollups: %w", err)
	}
	meta, err := src.ListMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect meta: %w", err)
	}

	snap := &Snapshot{
		Version:    FormatVersion,
		ExportedAt: store.Timestamp(now),
		App:        AppName,
		Entries:    entries,
		Rollups:    rollups,
		Meta:       meta,
	}
	if snap.Entries == nil {
		snap.Entries = []*store.Entry{}
	}
	if snap.Rollups == nil {
		snap.Rollups = []*store.Rollup{}
	}
	if snap.Meta == nil {
		snap.Meta = []store.Meta{}
	}
	return snap, nil
}

// Import merges snap into dst. The snapshot is validated in full before
// anything is written. Meta is overwritten unconditionally; entries and
// rollups replace an existing record only when their UpdatedAt is strictly
// greater. Each write is independent, so an interrupted import may be
// partially applied.
func Import(ctx context.Context, dst Target, snap *Snapshot, opts ImportOptions) (*ImportResult, error) {
	if err := Validate(snap); err != nil {
		return nil, err
	}

	result := &ImportResult{
		EntriesImported: len(snap.Entries),
		RollupsImported: len(snap.Rollups),
		DryRun:          opts.DryRun,
	}

	current, err := dst.ListMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read meta: %w", err)
	}
	result.MetaChanged = metaChanged(current, snap.Meta)
	result.MetaApplied = len(snap.Meta)
	if !opts.DryRun && len(snap.Meta) > 0 {
		if err := dst.PutMeta(ctx, snap.Meta); err != nil {
			return nil, fmt.Errorf("failed to import meta: %w", err)
		}
	}

	// Winning UpdatedAt per id so far, covering duplicates within the
	// snapshot and dry runs.
	seen := make(map[string]string)

	for _, e := range snap.Entries {
		newer, err := isNewer(ctx, seen, e.ID, e.UpdatedAt, func(ctx context.Context) (string, error) {
			existing, err := dst.GetEntry(ctx, e.ID)
			if err != nil {
				return "", err
			}
			return existing.UpdatedAt, nil
		})
		if err != nil {
			return result, fmt.Errorf("failed to import entry %s: %w", e.ID, err)
		}
		if !newer {
			continue
		}
		if !opts.DryRun {
			if err := dst.PutEntry(ctx, e); err != nil {
				return result, fmt.Errorf("failed to import entry %s: %w", e.ID, err)
			}
		}
		result.EntriesApplied++
	}

	for _, r := range snap.Rollups {
		newer, err := isNewer(ctx, seen, r.ID, r.UpdatedAt, func(ctx context.Context) (string, error) {
			existing, err := dst.GetRollup(ctx, r.ID)
			if err != nil {
				return "", err
			}
			return existing.UpdatedAt, nil
		})
		if err != nil {
			return result, fmt.Errorf("failed to import rollup %s: %w", r.ID, err)
		}
		if !newer {
			continue
		}
		if !opts.DryRun {
			if err := dst.PutRollup(ctx, r); err != nil {
				return result, fmt.Errorf("failed to import rollup %s: %w", r.ID, err)
			}
		}
		result.RollupsApplied++
	}

	return result, nil
}

// isNewer reports whether updatedAt beats the current copy of id. Entry ids
// are dates and rollup ids contain a colon, so one map serves both.
func isNewer(ctx context.Context, seen map[string]string, id, updatedAt string, current func(context.Context) (string, error)) (bool, error) {
	existing, ok := seen[id]
	if !ok {
		ts, err := current(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
			seen[id] = updatedAt
			return true, nil
		case err != nil:
			return false, err
		}
		existing = ts
	}
	if updatedAt > existing {
		seen[id] = updatedAt
		return true, nil
	}
	seen[id] = existing
	return false, nil
}

func metaChanged(current, incoming []store.Meta) bool {
	have := make(map[string]string, len(current))
	for _, m := range current {
		have[m.Key] = m.Value
	}
	for _, m := range incoming {
		if v, ok := have[m.Key]; !ok || v != m.Value {
			return true
		}
	}
	return false
}
