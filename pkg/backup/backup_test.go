package backup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/peoplesafe/sdlcjournal/pkg/period"
	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

const (
	older = "2026-02-01T10:00:00.000Z"
	newer = "2026-02-02T10:00:00.000Z"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.MemoryDSN)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(date, ct, updatedAt string) *store.Entry {
	return &store.Entry{ID: date, Date: date, Ciphertext: ct, IV: "iv-" + ct, CreatedAt: older, UpdatedAt: updatedAt}
}

func rollup(t period.Type, key, ct, updatedAt string) *store.Rollup {
	return &store.Rollup{ID: store.RollupID(t, key), Type: t, PeriodKey: key, Ciphertext: ct, IV: "iv-" + ct, CreatedAt: older, UpdatedAt: updatedAt}
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	for _, e := range []*store.Entry{entry("2026-02-01", "a", older), entry("2026-02-02", "b", newer)} {
		if err := s.PutEntry(ctx, e); err != nil {
			t.Fatalf("PutEntry failed: %v", err)
		}
	}
	if err := s.PutRollup(ctx, rollup(period.Weekly, "2026-W05", "r", older)); err != nil {
		t.Fatalf("PutRollup failed: %v", err)
	}
	if err := s.PutMeta(ctx, []store.Meta{{Key: store.MetaKeySalt, Value: "k"}, {Key: store.MetaPassphraseHash, Value: "h"}}); err != nil {
		t.Fatalf("PutMeta failed: %v", err)
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("2026-02-18"); got != "sdlcjournal-backup-2026-02-18.json" {
		t.Errorf("FileName = %q", got)
	}
}

func TestExportWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openStore(t)
	seed(t, src)

	now := time.Date(2026, 2, 18, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))
	snap, err := Export(ctx, src, now)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if snap.ExportedAt != "2026-02-18T14:30:00.000Z" {
		t.Errorf("ExportedAt = %q, want UTC", snap.ExportedAt)
	}
	if snap.Version != FormatVersion || snap.App != AppName {
		t.Errorf("header = %d %q", snap.Version, snap.App)
	}

	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"version\": 1") {
		t.Errorf("expected indented JSON, got %s", buf.String())
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got.Entries) != 2 || len(got.Rollups) != 1 || len(got.Meta) != 2 {
		t.Fatalf("Read counts = %d/%d/%d", len(got.Entries), len(got.Rollups), len(got.Meta))
	}
	if *got.Entries[1] != *snap.Entries[1] {
		t.Errorf("entry = %+v, want %+v", got.Entries[1], snap.Entries[1])
	}
	if *got.Rollups[0] != *snap.Rollups[0] {
		t.Errorf("rollup = %+v, want %+v", got.Rollups[0], snap.Rollups[0])
	}

	dst := openStore(t)
	result, err := Import(ctx, dst, got, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.EntriesApplied != 2 || result.RollupsApplied != 1 || result.MetaApplied != 2 || !result.MetaChanged {
		t.Errorf("result = %+v", result)
	}

	again, err := Export(ctx, dst, now)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(again.Entries) != 2 || again.Entries[0].Ciphertext != "a" || again.Meta[1].Value != "h" {
		t.Errorf("re-export = %+v", again)
	}
}

func TestExportEmptyStore(t *testing.T) {
	snap, err := Export(context.Background(), openStore(t), time.Now())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"entries": []`) {
		t.Errorf("empty entries should encode as [], got %s", buf.String())
	}
	if _, err := Read(&buf); err != nil {
		t.Errorf("Read of empty export failed: %v", err)
	}
}

func TestRead_InvalidFormat(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `hello`},
		{"missing version", `{"entries": [], "meta": []}`},
		{"missing entries", `{"version": 1, "meta": []}`},
		{"missing meta", `{"version": 1, "entries": []}`},
		{"null entries", `{"version": 1, "entries": null, "meta": []}`},
		{"version zero", `{"version": 0, "entries": [], "meta": []}`},
		{"entries not array", `{"version": 1, "entries": {}, "meta": []}`},
		{"id mismatch", `{"version": 1, "entries": [{"id": "2026-01-01", "date": "2026-01-02", "ciphertext": "x", "iv": "y", "createdAt": "2026-01-01T00:00:00.000Z", "updatedAt": "2026-01-01T00:00:00.000Z"}], "meta": []}`},
		{"local timestamp", `{"version": 1, "entries": [{"id": "2026-01-01", "date": "2026-01-01", "ciphertext": "x", "iv": "y", "createdAt": "2026-01-01T00:00:00+01:00", "updatedAt": "2026-01-01T00:00:00.000Z"}], "meta": []}`},
		{"unknown rollup type", `{"version": 1, "entries": [], "rollups": [{"id": "daily:2026-01-01", "type": "daily", "periodKey": "2026-01-01", "createdAt": "2026-01-01T00:00:00.000Z", "updatedAt": "2026-01-01T00:00:00.000Z"}], "meta": []}`},
		{"rollup id mismatch", `{"version": 1, "entries": [], "rollups": [{"id": "weekly:2026-W02", "type": "weekly", "periodKey": "2026-W01", "createdAt": "2026-01-01T00:00:00.000Z", "updatedAt": "2026-01-01T00:00:00.000Z"}], "meta": []}`},
		{"empty meta key", `{"version": 1, "entries": [], "meta": [{"key": "", "value": "x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.doc))
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("Read error = %v, want ErrInvalidFormat", err)
			}
		})
	}
}

func TestRead_UnsupportedVersion(t *testing.T) {
	_, err := Read(strings.NewReader(`{"version": 2, "entries": [], "meta": []}`))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
	if !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("ErrUnsupportedVersion should match ErrInvalidFormat, got %v", err)
	}
}

func TestRead_RollupsOptional(t *testing.T) {
	snap, err := Read(strings.NewReader(`{"version": 1, "exportedAt": "2026-01-01T00:00:00.000Z", "entries": [], "meta": []}`))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(snap.Rollups) != 0 {
		t.Errorf("Rollups = %v", snap.Rollups)
	}
}

func TestImport_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	dst := openStore(t)
	seed(t, dst)

	snap := &Snapshot{
		Version: FormatVersion,
		Entries: []*store.Entry{
			entry("2026-02-01", "a2", newer), // newer, replaces
			entry("2026-02-02", "b2", older), // older, kept
			entry("2026-02-03", "c", older),  // new
		},
		Rollups: []*store.Rollup{
			rollup(period.Weekly, "2026-W05", "r2", older), // equal, kept
		},
		Meta: []store.Meta{{Key: store.MetaKeySalt, Value: "k"}},
	}

	result, err := Import(ctx, dst, snap, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.EntriesImported != 3 || result.RollupsImported != 1 {
		t.Errorf("imported counts = %d/%d", result.EntriesImported, result.RollupsImported)
	}
	if result.EntriesApplied != 2 || result.RollupsApplied != 0 {
		t.Errorf("applied counts = %d/%d", result.EntriesApplied, result.RollupsApplied)
	}
	if result.MetaChanged {
		t.Error("identical meta should not be reported as changed")
	}

	cases := map[string]string{"2026-02-01": "a2", "2026-02-02": "b", "2026-02-03": "c"}
	for id, want := range cases {
		e, err := dst.GetEntry(ctx, id)
		if err != nil {
			t.Fatalf("GetEntry(%s) failed: %v", id, err)
		}
		if e.Ciphertext != want {
			t.Errorf("entry %s ciphertext = %q, want %q", id, e.Ciphertext, want)
		}
	}

	r, err := dst.GetRollup(ctx, store.RollupID(period.Weekly, "2026-W05"))
	if err != nil {
		t.Fatalf("GetRollup failed: %v", err)
	}
	if r.Ciphertext != "r" {
		t.Errorf("rollup with equal updatedAt was replaced: %q", r.Ciphertext)
	}
}

func TestImport_MetaOverwritten(t *testing.T) {
	ctx := context.Background()
	dst := openStore(t)
	seed(t, dst)

	snap := &Snapshot{
		Version: FormatVersion,
		Entries: []*store.Entry{},
		Meta:    []store.Meta{{Key: store.MetaPassphraseHash, Value: "other"}},
	}
	result, err := Import(ctx, dst, snap, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if !result.MetaChanged || result.MetaApplied != 1 {
		t.Errorf("result = %+v", result)
	}
	v, err := dst.GetMeta(ctx, store.MetaPassphraseHash)
	if err != nil || v != "other" {
		t.Errorf("GetMeta = %q, %v", v, err)
	}
}

func TestImport_DuplicateIDsInSnapshot(t *testing.T) {
	ctx := context.Background()
	dst := openStore(t)

	snap := &Snapshot{
		Version: FormatVersion,
		Entries: []*store.Entry{
			entry("2026-03-01", "second", newer),
			entry("2026-03-01", "first", older),
		},
		Meta: []store.Meta{},
	}
	result, err := Import(ctx, dst, snap, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.EntriesApplied != 1 {
		t.Errorf("EntriesApplied = %d, want 1", result.EntriesApplied)
	}
	e, err := dst.GetEntry(ctx, "2026-03-01")
	if err != nil || e.Ciphertext != "second" {
		t.Errorf("GetEntry = %+v, %v", e, err)
	}
}

func TestImport_DryRun(t *testing.T) {
	ctx := context.Background()
	dst := openStore(t)
	seed(t, dst)

	snap := &Snapshot{
		Version: FormatVersion,
		Entries: []*store.Entry{entry("2026-02-01", "a2", newer), entry("2026-02-05", "d", older)},
		Rollups: []*store.Rollup{rollup(period.Monthly, "2026-02", "m", newer)},
		Meta:    []store.Meta{{Key: store.MetaPassphraseHash, Value: "other"}},
	}
	result, err := Import(ctx, dst, snap, ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if !result.DryRun || result.EntriesApplied != 2 || result.RollupsApplied != 1 || !result.MetaChanged {
		t.Errorf("result = %+v", result)
	}

	n, _ := dst.CountEntries(ctx)
	if n != 2 {
		t.Errorf("dry run wrote entries: count = %d", n)
	}
	e, _ := dst.GetEntry(ctx, "2026-02-01")
	if e.Ciphertext != "a" {
		t.Errorf("dry run modified entry: %q", e.Ciphertext)
	}
	v, _ := dst.GetMeta(ctx, store.MetaPassphraseHash)
	if v != "h" {
		t.Errorf("dry run modified meta: %q", v)
	}
}

func TestImport_ValidationBeforeWrite(t *testing.T) {
	ctx := context.Background()
	dst := openStore(t)

	bad := entry("2026-02-01", "x", older)
	bad.UpdatedAt = "yesterday"
	snap := &Snapshot{
		Version: FormatVersion,
		Entries: []*store.Entry{entry("2026-01-31", "ok", older), bad},
		Meta:    []store.Meta{{Key: store.MetaKeySalt, Value: "k"}},
	}

	if _, err := Import(ctx, dst, snap, ImportOptions{}); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("Import error = %v, want ErrInvalidFormat", err)
	}
	n, _ := dst.CountEntries(ctx)
	meta, _ := dst.ListMeta(ctx)
	if n != 0 || len(meta) != 0 {
		t.Errorf("invalid snapshot mutated the store: %d entries, %d meta", n, len(meta))
	}

	if _, err := Import(ctx, dst, nil, ImportOptions{}); !errors.Is(err, ErrNilSnapshot) {
		t.Errorf("Import(nil) error = %v", err)
	}
}

func TestImport_StorageFailure(t *testing.T) {
	ctx := context.Background()
	dst := openStore(t)
	_ = dst.Close()

	snap := &Snapshot{Version: FormatVersion, Entries: []*store.Entry{}, Meta: []store.Meta{}}
	if _, err := Import(ctx, dst, snap, ImportOptions{}); !errors.Is(err, store.ErrStorageUnavailable) {
		t.Errorf("Import error = %v, want ErrStorageUnavailable", err)
	}
}
