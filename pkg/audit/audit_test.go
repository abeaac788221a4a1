package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func readEvents(t *testing.T, dir string) []Event {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		t.Fatalf("failed to list log files: %v", err)
	}
	var events []Event
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("failed to read %s: %v", f, err)
		}
		for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			var e Event
			if err := json.Unmarshal([]byte(line), &e); err != nil {
				t.Fatalf("failed to parse %q: %v", line, err)
			}
			events = append(events, e)
		}
	}
	return events
}

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)

	if logger.Path() != tmpDir {
		t.Errorf("expected path %s, got %s", tmpDir, logger.Path())
	}
	if logger.prevHash != genesis {
		t.Errorf("expected prevHash genesis, got %s", logger.prevHash)
	}
	if logger.sessionID == "" {
		t.Error("expected non-empty sessionID")
	}
	if logger.HasKey() {
		t.Error("new logger should have no key")
	}
}

func TestLogWithoutHMACKey(t *testing.T) {
	logger := NewLogger(t.TempDir())

	if err := logger.LogSuccess(OpEntrySave, "2026-02-18"); !errors.Is(err, ErrKeyNotSet) {
		t.Errorf("expected ErrKeyNotSet, got %v", err)
	}
	if _, err := logger.Verify(); !errors.Is(err, ErrKeyNotSet) {
		t.Errorf("expected ErrKeyNotSet from Verify, got %v", err)
	}
}

func TestSetHMACKeyRejectsShortKey(t *testing.T) {
	logger := NewLogger(t.TempDir())

	if err := logger.SetHMACKey(make([]byte, 16)); !errors.Is(err, ErrShortKey) {
		t.Errorf("expected ErrShortKey, got %v", err)
	}
	if logger.HasKey() {
		t.Error("a rejected key must not be installed")
	}
}

func TestSetHMACKeyCopiesKey(t *testing.T) {
	logger := NewLogger(t.TempDir())
	key := testKey(11)
	if err := logger.SetHMACKey(key); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	for i := range key {
		key[i] = 0
	}

	if err := logger.LogSuccess(OpEntrySave, "2026-02-18"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	other := NewLogger(logger.Path())
	if err := other.SetHMACKey(testKey(11)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	result, err := other.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("chain written after the caller wiped its key should verify: %v", result.Errors)
	}
}

func TestLogSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	ts := time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)
	logger := NewLogger(tmpDir, WithClock(fixedClock(ts)), WithSource(SourceMCP))
	if err := logger.SetHMACKey(testKey(1)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}

	if err := logger.LogSuccess(OpEntrySave, "2026-02-18"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "2026-02.jsonl")); err != nil {
		t.Fatalf("expected monthly log file: %v", err)
	}

	events := readEvents(t, tmpDir)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]

	if event.Version != 1 || event.Operation != OpEntrySave || event.Result != ResultSuccess {
		t.Errorf("unexpected event: %+v", event)
	}
	if event.Source != SourceMCP {
		t.Errorf("expected source %s, got %s", SourceMCP, event.Source)
	}
	if event.Timestamp != "2026-02-18T09:00:00Z" {
		t.Errorf("unexpected timestamp %s", event.Timestamp)
	}
	if event.Record == "" || strings.Contains(event.Record, "2026") {
		t.Errorf("record id should be an HMAC, got %q", event.Record)
	}
	if event.Chain.Sequence != 1 || event.Chain.PrevHash != genesis || event.Chain.HMAC == "" {
		t.Errorf("unexpected chain: %+v", event.Chain)
	}
	if len(event.ID) != 36 {
		t.Errorf("expected UUID event id, got %q", event.ID)
	}
}

func TestLogError(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)
	if err := logger.SetHMACKey(testKey(2)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}

	if err := logger.LogError(OpBackupImport, "", "INVALID_FORMAT", "missing meta"); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}

	event := readEvents(t, tmpDir)[0]
	if event.Result != ResultError {
		t.Errorf("expected result %s, got %s", ResultError, event.Result)
	}
	if event.Error == nil || event.Error.Code != "INVALID_FORMAT" || event.Error.Message != "missing meta" {
		t.Errorf("unexpected error info: %+v", event.Error)
	}
	if event.Record != "" {
		t.Errorf("expected no record, got %q", event.Record)
	}
}

func TestRecordHMACIsStable(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)
	if err := logger.SetHMACKey(testKey(3)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}

	_ = logger.LogSuccess(OpEntrySave, "2026-02-18")
	_ = logger.LogSuccess(OpEntryDelete, "2026-02-18")
	_ = logger.LogSuccess(OpEntrySave, "2026-02-19")

	events := readEvents(t, tmpDir)
	if events[0].Record != events[1].Record {
		t.Error("same record id should produce the same HMAC")
	}
	if events[0].Record == events[2].Record {
		t.Error("different record ids should produce different HMACs")
	}
}

func TestChainIntegrity(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)
	if err := logger.SetHMACKey(testKey(4)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		ctx := map[string]any{"entries": i, "dryRun": false}
		if err := logger.Log(OpBackupImport, ResultSuccess, "", nil, ctx); err != nil {
			t.Fatalf("Log failed on iteration %d: %v", i, err)
		}
	}

	events := readEvents(t, tmpDir)
	for i, e := range events {
		if e.Chain.Sequence != int64(i+1) {
			t.Errorf("event %d: expected sequence %d, got %d", i, i+1, e.Chain.Sequence)
		}
		if i > 0 && e.Chain.PrevHash != events[i-1].Chain.HMAC {
			t.Errorf("event %d: chain broken", i)
		}
	}

	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid || result.RecordsTotal != 5 || result.RecordsVerified != 5 {
		t.Errorf("unexpected verify result: %+v", result)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	tmpDir := t.TempDir()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := NewLogger(tmpDir, WithClock(fixedClock(ts)))
	if err := logger.SetHMACKey(testKey(5)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		_ = logger.LogSuccess(OpEntrySave, "2026-03-01")
	}

	path := filepath.Join(tmpDir, "2026-03.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	tampered := strings.Replace(string(data), OpEntrySave, OpEntryDelete, 1)
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid {
		t.Error("expected tampering to be detected")
	}
	if result.RecordsVerified != 2 {
		t.Errorf("expected 2 verified records, got %d", result.RecordsVerified)
	}
}

func TestVerifyDetectsDeletion(t *testing.T) {
	tmpDir := t.TempDir()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := NewLogger(tmpDir, WithClock(fixedClock(ts)))
	if err := logger.SetHMACKey(testKey(6)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		_ = logger.LogSuccess(OpEntrySave, "2026-03-01")
	}

	path := filepath.Join(tmpDir, "2026-03.jsonl")
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	kept := lines[0] + "\n" + lines[2] + "\n"
	if err := os.WriteFile(path, []byte(kept), 0600); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid || len(result.Errors) == 0 {
		t.Errorf("expected deletion to be detected: %+v", result)
	}
}

func TestChainStatePersistence(t *testing.T) {
	tmpDir := t.TempDir()

	first := NewLogger(tmpDir)
	if err := first.SetHMACKey(testKey(7)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	_ = first.LogSuccess(OpJournalUnlock, "")
	_ = first.LogSuccess(OpJournalLock, "")
	first.ClearKey()
	if first.HasKey() {
		t.Error("ClearKey should remove the key")
	}
	if err := first.LogSuccess(OpJournalLock, ""); !errors.Is(err, ErrKeyNotSet) {
		t.Errorf("expected ErrKeyNotSet after ClearKey, got %v", err)
	}

	second := NewLogger(tmpDir)
	if err := second.SetHMACKey(testKey(7)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	if err := second.LogSuccess(OpJournalUnlock, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	events := readEvents(t, tmpDir)
	if len(events) != 3 || events[2].Chain.Sequence != 3 {
		t.Fatalf("expected chain to continue at 3, got %d events", len(events))
	}
	if events[0].SessionID == events[2].SessionID {
		t.Error("separate loggers should use separate session ids")
	}

	result, err := second.Verify()
	if err != nil || !result.Valid {
		t.Errorf("Verify = %+v, %v", result, err)
	}
}

func TestNewKeyArchivesChain(t *testing.T) {
	tmpDir := t.TempDir()

	logger := NewLogger(tmpDir)
	if err := logger.SetHMACKey(testKey(8)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	_ = logger.LogSuccess(OpJournalSetup, "")
	_ = logger.LogSuccess(OpJournalClear, "")

	if err := logger.SetHMACKey(testKey(9)); err != nil {
		t.Fatalf("SetHMACKey with new key failed: %v", err)
	}
	if events := readEvents(t, tmpDir); len(events) != 0 {
		t.Errorf("expected old chain to be archived, found %d events", len(events))
	}
	archived, _ := filepath.Glob(filepath.Join(tmpDir, "archive", "*", "*.jsonl"))
	if len(archived) != 1 {
		t.Errorf("expected 1 archived log file, got %d", len(archived))
	}

	if err := logger.LogSuccess(OpJournalSetup, ""); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid || result.RecordsTotal != 1 {
		t.Errorf("new chain should verify on its own: %+v", result)
	}
}

func TestListEvents(t *testing.T) {
	tmpDir := t.TempDir()
	now := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	logger := NewLogger(tmpDir, WithClock(func() time.Time { return now }))
	if err := logger.SetHMACKey(testKey(10)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}

	ops := []string{OpJournalUnlock, OpEntrySave, OpRollupReflect, OpBackupExport}
	for _, op := range ops {
		if err := logger.LogSuccess(op, ""); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
		now = now.Add(time.Hour)
	}

	all, err := logger.ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(all) != 4 || all[0].Operation != OpJournalUnlock || all[3].Operation != OpBackupExport {
		t.Errorf("unexpected events across month files: %+v", all)
	}

	last, _ := logger.ListEvents(2, time.Time{})
	if len(last) != 2 || last[0].Operation != OpRollupReflect {
		t.Errorf("limit should keep most recent events: %+v", last)
	}

	since, _ := logger.ListEvents(0, time.Date(2026, 2, 1, 0, 30, 0, 0, time.UTC))
	if len(since) != 2 {
		t.Errorf("expected 2 events after since, got %d", len(since))
	}
}
