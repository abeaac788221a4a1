package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/peoplesafe/sdlcjournal/internal/disk"
	"github.com/peoplesafe/sdlcjournal/pkg/audit"
	"github.com/peoplesafe/sdlcjournal/pkg/keyring"
	"github.com/peoplesafe/sdlcjournal/pkg/period"
	"github.com/peoplesafe/sdlcjournal/pkg/rollup"
	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

// Search preview limits.
const (
	PreviewLength    = 120
	previewSeparator = " | "
	previewEllipsis  = "…"
)

// SearchResult is one entry matching a search query.
type SearchResult struct {
	Date    string `json:"date"`
	Label   string `json:"label"`
	Preview string `json:"preview"`
}

// SaveEntry encrypts and stores the entry for date, replacing any existing
// one. CreatedAt of an existing entry is preserved and UpdatedAt strictly
// advances.
func (j *Journal) SaveEntry(ctx context.Context, date string, c Content) (*Entry, error) {
	if c.IsEmpty() {
		return nil, ErrEmptyEntry
	}
	if _, err := period.ParseDate(date); err != nil {
		return nil, err
	}
	key, err := j.activeKey()
	if err != nil {
		return nil, err
	}
	if err := j.checkDisk(); err != nil {
		return nil, err
	}

	sealed, err := rollup.SealContent(c, key)
	if err != nil {
		return nil, err
	}

	now := j.timestamp()
	e := &store.Entry{
		ID:         date,
		Date:       date,
		Ciphertext: sealed.Ciphertext,
		IV:         sealed.IV,
		CreatedAt:  store.Timestamp(now),
		UpdatedAt:  store.Timestamp(now),
	}

	existing, err := j.store.GetEntry(ctx, date)
	switch {
	case err == nil:
		e.CreatedAt = existing.CreatedAt
		e.UpdatedAt = advance(now, existing.UpdatedAt)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if err := j.store.PutEntry(ctx, e); err != nil {
		return nil, err
	}
	j.record(audit.OpEntrySave, date, nil)

	return &Entry{Date: date, Content: c, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}, nil
}

// GetEntry decrypts the entry for date. store.ErrNotFound and
// keyring.ErrDecryptionFailed are returned as is.
func (j *Journal) GetEntry(ctx context.Context, date string) (*Entry, error) {
	key, err := j.activeKey()
	if err != nil {
		return nil, err
	}
	stored, err := j.store.GetEntry(ctx, date)
	if err != nil {
		return nil, err
	}
	return rollup.OpenEntry(stored, key)
}

// HasEntry reports whether an entry exists for date.
func (j *Journal) HasEntry(ctx context.Context, date string) (bool, error) {
	if _, err := j.activeKey(); err != nil {
		return false, err
	}
	_, err := j.store.GetEntry(ctx, date)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// DeleteEntry removes the entry for date.
func (j *Journal) DeleteEntry(ctx context.Context, date string) error {
	if _, err := j.activeKey(); err != nil {
		return err
	}
	if err := j.store.DeleteEntry(ctx, date); err != nil {
		return err
	}
	j.record(audit.OpEntryDelete, date, nil)
	return nil
}

// ListEntries returns entry metadata, newest first.
func (j *Journal) ListEntries(ctx context.Context) ([]store.EntryMeta, error) {
	if _, err := j.activeKey(); err != nil {
		return nil, err
	}
	return j.store.ListEntryMetadata(ctx)
}

// RecentEntries returns up to limit of the newest readable entries, excluding
// today's.
func (j *Journal) RecentEntries(ctx context.Context, today string, limit int) ([]*Entry, error) {
	key, err := j.activeKey()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	metas, err := j.store.ListEntryMetadata(ctx)
	if err != nil {
		return nil, err
	}

	var result []*Entry
	for _, m := range metas {
		if len(result) == limit {
			break
		}
		if m.Date == today {
			continue
		}
		stored, err := j.store.GetEntry(ctx, m.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		e, err := rollup.OpenEntry(stored, key)
		if err != nil {
			if errors.Is(err, keyring.ErrNoActiveKey) {
				return nil, err
			}
			j.log.Warn().Str("entry", m.ID).Err(err).Msg("skipping unreadable entry")
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// Search returns entries whose text contains query, newest first. Matching
// is case-insensitive on NFC-normalized text. A blank query matches nothing.
func (j *Journal) Search(ctx context.Context, query string) ([]SearchResult, error) {
	key, err := j.activeKey()
	if err != nil {
		return nil, err
	}

	needle := fold(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	stored, err := j.store.AllEntries(ctx)
	if err != nil {
		return nil, err
	}
	entries, _, err := j.engine.DecryptEntries(stored, key)
	if err != nil {
		return nil, err
	}

	var result []SearchResult
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !matches(e.Content, needle) {
			continue
		}
		label, _ := period.DateLabel(e.Date)
		result = append(result, SearchResult{Date: e.Date, Label: label, Preview: preview(e.Content)})
	}
	return result, nil
}

func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func matches(c Content, needle string) bool {
	for _, cat := range rollup.Categories {
		if strings.Contains(fold(c.Field(cat)), needle) {
			return true
		}
	}
	return false
}

// preview joins the non-empty answers and truncates to PreviewLength runes.
func preview(c Content) string {
	var parts []string
	for _, cat := range rollup.Categories {
		if text := strings.TrimSpace(c.Field(cat)); text != "" {
			parts = append(parts, text)
		}
	}
	s := strings.Join(parts, previewSeparator)
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	return string([]rune(s)[:PreviewLength]) + previewEllipsis
}

// checkDisk refuses writes when the volume is nearly full, reporting it as
// store.ErrStorageUnavailable. A failure to read disk stats does not block
// the write.
func (j *Journal) checkDisk() error {
	err := j.diskCheck(j.dir)
	if errors.Is(err, disk.ErrInsufficient) {
		return fmt.Errorf("%w: %w", store.ErrStorageUnavailable, err)
	}
	if err != nil {
		j.log.Warn().Err(err).Msg("failed to check disk space")
	}
	return nil
}

func ensureDiskSpace(dir string) error {
	return disk.EnsureAvailable(dir, disk.MinFreeBytes)
}
