package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/peoplesafe/sdlcjournal/internal/disk"
	"github.com/peoplesafe/sdlcjournal/pkg/keyring"
	"github.com/peoplesafe/sdlcjournal/pkg/period"
	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

func TestEntryOperations(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	j := setupTestJournal(t, WithClock(clock.Now))

	c := Content{Success: "Shipped the release", Delight: "Coffee with the team"}
	saved, err := j.SaveEntry(ctx, "2026-01-05", c)
	if err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	if saved.CreatedAt != "2026-01-05T09:00:00.000Z" || saved.UpdatedAt != saved.CreatedAt {
		t.Errorf("unexpected timestamps %s / %s", saved.CreatedAt, saved.UpdatedAt)
	}

	got, err := j.GetEntry(ctx, "2026-01-05")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.Content != c {
		t.Errorf("expected %+v, got %+v", c, got.Content)
	}

	// Ciphertext must not contain the plaintext.
	stored, err := j.store.GetEntry(ctx, "2026-01-05")
	if err != nil {
		t.Fatalf("store.GetEntry failed: %v", err)
	}
	if strings.Contains(stored.Ciphertext, "Shipped") {
		t.Error("ciphertext contains plaintext")
	}

	clock.Advance(time.Hour)
	c.Learning = "Read about ISO weeks"
	updated, err := j.SaveEntry(ctx, "2026-01-05", c)
	if err != nil {
		t.Fatalf("SaveEntry (update) failed: %v", err)
	}
	if updated.CreatedAt != saved.CreatedAt {
		t.Errorf("createdAt changed: %s -> %s", saved.CreatedAt, updated.CreatedAt)
	}
	if updated.UpdatedAt != "2026-01-05T10:00:00.000Z" {
		t.Errorf("unexpected updatedAt %s", updated.UpdatedAt)
	}

	has, err := j.HasEntry(ctx, "2026-01-05")
	if err != nil || !has {
		t.Errorf("expected entry to exist, got %v, %v", has, err)
	}

	if err := j.DeleteEntry(ctx, "2026-01-05"); err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}
	if _, err := j.GetEntry(ctx, "2026-01-05"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := j.DeleteEntry(ctx, "2026-01-05"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting a missing entry, got %v", err)
	}
	has, _ = j.HasEntry(ctx, "2026-01-05")
	if has {
		t.Error("expected entry to be gone")
	}
}

func TestSaveEntryStrictlyAdvancesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	j := setupTestJournal(t, WithClock(func() time.Time { return now }))

	first, err := j.SaveEntry(ctx, "2026-01-05", Content{Success: "a"})
	if err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	second, err := j.SaveEntry(ctx, "2026-01-05", Content{Success: "b"})
	if err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	if second.UpdatedAt <= first.UpdatedAt {
		t.Errorf("updatedAt did not advance: %s -> %s", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestSaveEntryValidation(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)

	if _, err := j.SaveEntry(ctx, "2026-01-05", Content{Success: "  ", Learning: "\n"}); !errors.Is(err, ErrEmptyEntry) {
		t.Errorf("expected ErrEmptyEntry, got %v", err)
	}
	if _, err := j.SaveEntry(ctx, "2026-13-45", Content{Success: "a"}); err == nil {
		t.Error("expected error for invalid date")
	}
	if _, err := j.SaveEntry(ctx, "05/01/2026", Content{Success: "a"}); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestEntryOperationsWhileLocked(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)
	if _, err := j.SaveEntry(ctx, "2026-01-05", Content{Success: "a"}); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	j.Lock()

	if _, err := j.SaveEntry(ctx, "2026-01-06", Content{Success: "b"}); !errors.Is(err, keyring.ErrNoActiveKey) {
		t.Errorf("SaveEntry: expected ErrNoActiveKey, got %v", err)
	}
	if _, err := j.GetEntry(ctx, "2026-01-05"); !errors.Is(err, keyring.ErrNoActiveKey) {
		t.Errorf("GetEntry: expected ErrNoActiveKey, got %v", err)
	}
	if err := j.DeleteEntry(ctx, "2026-01-05"); !errors.Is(err, keyring.ErrNoActiveKey) {
		t.Errorf("DeleteEntry: expected ErrNoActiveKey, got %v", err)
	}
	if _, err := j.ListEntries(ctx); !errors.Is(err, keyring.ErrNoActiveKey) {
		t.Errorf("ListEntries: expected ErrNoActiveKey, got %v", err)
	}
	if _, err := j.RecentEntries(ctx, "2026-01-07", 5); !errors.Is(err, keyring.ErrNoActiveKey) {
		t.Errorf("RecentEntries: expected ErrNoActiveKey, got %v", err)
	}
	if _, err := j.Search(ctx, "a"); !errors.Is(err, keyring.ErrNoActiveKey) {
		t.Errorf("Search: expected ErrNoActiveKey, got %v", err)
	}
}

func TestListEntries(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)

	for _, date := range []string{"2026-01-03", "2026-01-10", "2026-01-05"} {
		if _, err := j.SaveEntry(ctx, date, Content{Success: date}); err != nil {
			t.Fatalf("SaveEntry(%s) failed: %v", date, err)
		}
	}

	metas, err := j.ListEntries(ctx)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	want := []string{"2026-01-10", "2026-01-05", "2026-01-03"}
	if len(metas) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(metas))
	}
	for i, m := range metas {
		if m.Date != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], m.Date)
		}
	}
}

func TestRecentEntries(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)

	for _, date := range []string{"2026-01-01", "2026-01-02", "2026-01-03", "2026-01-04", "2026-01-05"} {
		if _, err := j.SaveEntry(ctx, date, Content{Success: date}); err != nil {
			t.Fatalf("SaveEntry(%s) failed: %v", date, err)
		}
	}

	// Corrupt one entry; it must be skipped, not fail the listing.
	bad, err := j.store.GetEntry(ctx, "2026-01-03")
	if err != nil {
		t.Fatalf("store.GetEntry failed: %v", err)
	}
	other, _ := j.store.GetEntry(ctx, "2026-01-01")
	bad.IV = other.IV
	if err := j.store.PutEntry(ctx, bad); err != nil {
		t.Fatalf("PutEntry failed: %v", err)
	}

	recent, err := j.RecentEntries(ctx, "2026-01-05", 3)
	if err != nil {
		t.Fatalf("RecentEntries failed: %v", err)
	}
	want := []string{"2026-01-04", "2026-01-02", "2026-01-01"}
	if len(recent) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(recent))
	}
	for i, e := range recent {
		if e.Date != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], e.Date)
		}
	}

	none, err := j.RecentEntries(ctx, "2026-01-05", 0)
	if err != nil || len(none) != 0 {
		t.Errorf("expected no entries for limit 0, got %d, %v", len(none), err)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)

	entries := map[string]Content{
		"2026-01-05": {Success: "Fixed the CAFÉ menu bug"},
		"2026-01-06": {Learning: "Learned about goroutines"},
		"2026-01-07": {Compliment: "Great café recommendation", Delight: "sunshine"},
	}
	for date, c := range entries {
		if _, err := j.SaveEntry(ctx, date, c); err != nil {
			t.Fatalf("SaveEntry(%s) failed: %v", date, err)
		}
	}

	results, err := j.Search(ctx, "Café")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Date != "2026-01-07" || results[1].Date != "2026-01-05" {
		t.Errorf("expected newest first, got %s, %s", results[0].Date, results[1].Date)
	}
	if results[0].Preview != "sunshine | Great café recommendation" {
		t.Errorf("unexpected preview %q", results[0].Preview)
	}
	wantLabel, _ := period.DateLabel("2026-01-07")
	if results[0].Label != wantLabel {
		t.Errorf("expected label %q, got %q", wantLabel, results[0].Label)
	}

	// Decomposed "é" matches after normalization.
	results, err = j.Search(ctx, "cafe\u0301")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results for decomposed query, got %d", len(results))
	}

	results, err = j.Search(ctx, "   ")
	if err != nil || results != nil {
		t.Errorf("expected no results for blank query, got %v, %v", results, err)
	}

	results, _ = j.Search(ctx, "nothing like this")
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestPreview(t *testing.T) {
	short := preview(Content{Success: " a ", Learning: "b"})
	if short != "a | b" {
		t.Errorf("expected 'a | b', got %q", short)
	}

	long := preview(Content{Success: strings.Repeat("ü", PreviewLength+10)})
	if want := strings.Repeat("ü", PreviewLength) + "…"; long != want {
		t.Errorf("expected truncation to %d runes plus ellipsis, got %d runes", PreviewLength, len([]rune(long)))
	}
}

func TestFullDiskIsStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	full := func(string) error {
		return fmt.Errorf("%w: only 512 bytes available", disk.ErrInsufficient)
	}
	j := setupTestJournal(t, WithDiskCheck(full))

	_, err := j.SaveEntry(ctx, "2026-01-14", Content{Success: "Shipped"})
	if !errors.Is(err, store.ErrStorageUnavailable) {
		t.Errorf("SaveEntry: expected ErrStorageUnavailable, got %v", err)
	}
	if !errors.Is(err, disk.ErrInsufficient) {
		t.Errorf("SaveEntry: expected the disk error to be kept, got %v", err)
	}

	err = j.SaveReflection(ctx, period.Weekly, "2026-W03", "A good week")
	if !errors.Is(err, store.ErrStorageUnavailable) {
		t.Errorf("SaveReflection: expected ErrStorageUnavailable, got %v", err)
	}

	if has, _ := j.HasEntry(ctx, "2026-01-14"); has {
		t.Error("entry should not be written when the disk is full")
	}
}

func TestDiskStatFailureDoesNotBlockWrites(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t, WithDiskCheck(func(string) error { return errors.ErrUnsupported }))

	if _, err := j.SaveEntry(ctx, "2026-01-14", Content{Success: "Shipped"}); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}
	if err := j.SaveReflection(ctx, period.Weekly, "2026-W03", "A good week"); err != nil {
		t.Fatalf("SaveReflection failed: %v", err)
	}
}
