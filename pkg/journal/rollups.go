package journal

import (
	"context"
	"errors"
	"strings"

	"github.com/peoplesafe/sdlcjournal/pkg/audit"
	"github.com/peoplesafe/sdlcjournal/pkg/keyring"
	"github.com/peoplesafe/sdlcjournal/pkg/period"
	"github.com/peoplesafe/sdlcjournal/pkg/rollup"
	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

// AvailablePeriods lists the periods of every type that contain at least one
// entry, newest first.
func (j *Journal) AvailablePeriods(ctx context.Context) (*rollup.Periods, error) {
	if _, err := j.activeKey(); err != nil {
		return nil, err
	}
	metas, err := j.store.ListEntryMetadata(ctx)
	if err != nil {
		return nil, err
	}
	return rollup.AvailablePeriods(metas), nil
}

// Rollup assembles the summary of (t, key) with its reflection and the
// reflections of its sub-periods.
func (j *Journal) Rollup(ctx context.Context, t period.Type, key string) (*rollup.View, error) {
	k, err := j.activeKey()
	if err != nil {
		return nil, err
	}
	return j.engine.View(ctx, t, key, k)
}

// Reflection returns the stored reflection of (t, key), or "" when none has
// been written. A reflection that cannot be decrypted is an error here.
func (j *Journal) Reflection(ctx context.Context, t period.Type, key string) (string, error) {
	if err := period.ValidateKey(t, key); err != nil {
		return "", err
	}
	k, err := j.activeKey()
	if err != nil {
		return "", err
	}

	r, err := j.store.GetRollup(ctx, store.RollupID(t, key))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if r.Sealed().IsEmpty() {
		return "", nil
	}
	return keyring.OpenString(r.Sealed(), k)
}

// SaveReflection stores text as the reflection of (t, key). Blank text is
// stored as an empty reflection.
func (j *Journal) SaveReflection(ctx context.Context, t period.Type, key, text string) error {
	if err := period.ValidateKey(t, key); err != nil {
		return err
	}
	k, err := j.activeKey()
	if err != nil {
		return err
	}
	if err := j.checkDisk(); err != nil {
		return err
	}

	var sealed keyring.Sealed
	if strings.TrimSpace(text) != "" {
		if sealed, err = keyring.SealString(text, k); err != nil {
			return err
		}
	}

	now := j.timestamp()
	r := &store.Rollup{
		ID:         store.RollupID(t, key),
		Type:       t,
		PeriodKey:  key,
		Ciphertext: sealed.Ciphertext,
		IV:         sealed.IV,
		CreatedAt:  store.Timestamp(now),
		UpdatedAt:  store.Timestamp(now),
	}

	existing, err := j.store.GetRollup(ctx, r.ID)
	switch {
	case err == nil:
		r.CreatedAt = existing.CreatedAt
		r.UpdatedAt = advance(now, existing.UpdatedAt)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	if err := j.store.PutRollup(ctx, r); err != nil {
		return err
	}
	j.record(audit.OpRollupReflect, r.ID, nil)
	return nil
}

// ScheduleReflection saves text after the autosave delay. A later call for
// the same period replaces a pending one, so only the last text is written.
func (j *Journal) ScheduleReflection(t period.Type, key, text string) error {
	if err := period.ValidateKey(t, key); err != nil {
		return err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closing || j.key == nil || !j.key.Active() {
		return keyring.ErrNoActiveKey
	}

	id := store.RollupID(t, key)
	j.saver.Schedule(id, func() {
		if err := j.SaveReflection(context.Background(), t, key, text); err != nil {
			j.log.Warn().Str("rollup", id).Err(err).Msg("autosave failed")
		}
	})
	return nil
}

// FlushReflections writes every pending scheduled reflection now.
func (j *Journal) FlushReflections() {
	j.saver.Flush()
}

// PendingReflections returns the number of scheduled reflections not yet written.
func (j *Journal) PendingReflections() int {
	return j.saver.Pending()
}
