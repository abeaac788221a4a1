// Package audit records journal operations in an HMAC-chained JSONL log.
//
// The log never contains plaintext or raw record ids. Ids are replaced by an
// HMAC keyed from the session key, and every event carries the HMAC of its
// predecessor so that removed, reordered or edited lines are detected by
// Verify.
//
// The chain key is a subkey of the journal key, derived by the caller with
// HMACKeyInfo (see keyring.Key.DeriveSubkey). When a different key is
// installed (a new passphrase after clear-all, or an imported passphrase) the
// existing log files are moved under archive/ and a new chain starts.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peoplesafe/sdlcjournal/internal/disk"
)

// MinDiskSpace is the free space required before appending an event.
const MinDiskSpace = 1024 * 1024

// HMACKeyInfo names the audit chain key among the subkeys of the journal key.
const HMACKeyInfo = "sdlcjournal-audit-v1"

const (
	genesis   = "genesis"
	stateFile = "audit.meta"
	archive   = "archive"
)

// Operation types for audit logging
const (
	OpJournalSetup        = "journal.setup"
	OpJournalUnlock       = "journal.unlock"
	OpJournalUnlockFailed = "journal.unlock_failed"
	OpJournalLock         = "journal.lock"
	OpJournalClear        = "journal.clear"

	OpEntrySave   = "entry.save"
	OpEntryDelete = "entry.delete"

	OpRollupReflect = "rollup.reflect"

	OpBackupExport = "backup.export"
	OpBackupImport = "backup.import"
)

// Source identifies where the operation originated
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ErrKeyNotSet indicates Log or Verify was called before SetHMACKey.
var ErrKeyNotSet = errors.New("audit: HMAC key not set")

// ErrShortKey indicates SetHMACKey was given fewer than 32 bytes.
var ErrShortKey = errors.New("audit: HMAC key too short")

const minHMACKeyLength = 32

// Event is a single audit log record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"`

	Operation string `json:"op"`
	Record    string `json:"record,omitempty"` // HMAC of the record id
	Source    string `json:"source"`
	SessionID string `json:"session"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Context map[string]any `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links an event to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// chainState is persisted next to the log files.
type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	Epoch    string `json:"epoch"`
}

// Logger appends events to monthly files under a directory.
type Logger struct {
	path      string
	source    string
	now       func() time.Time
	mu        sync.Mutex
	hmacKey   []byte
	epoch     string
	sequence  int64
	prevHash  string
	sessionID string
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// WithSource sets the source recorded on every event. Default SourceCLI.
func WithSource(source string) Option {
	return func(l *Logger) {
		l.source = source
	}
}

// NewLogger creates a logger writing under path.
func NewLogger(path string, opts ...Option) *Logger {
	l := &Logger{
		path:      path,
		source:    SourceCLI,
		now:       time.Now,
		prevHash:  genesis,
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the audit log directory path.
func (l *Logger) Path() string {
	return l.path
}

// SetHMACKey installs a copy of the chain key and loads the chain state.
// A chain written under a different key is archived first.
func (l *Logger) SetHMACKey(hmacKey []byte) error {
	if len(hmacKey) < minHMACKeyLength {
		return ErrShortKey
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := append([]byte(nil), hmacKey...)
	l.hmacKey = key
	l.epoch = epochOf(key)
	l.sequence = 0
	l.prevHash = genesis

	state, err := l.loadChainState()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return err
	case state.Epoch != l.epoch:
		return l.archive(state.Epoch)
	}

	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

// ClearKey forgets the chain key. Log fails until SetHMACKey is called again.
func (l *Logger) ClearKey() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.hmacKey {
		l.hmacKey[i] = 0
	}
	l.hmacKey = nil
}

// HasKey reports whether a chain key is installed.
func (l *Logger) HasKey() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hmacKey != nil
}

// Log records an audit event. recordID is replaced by its HMAC.
func (l *Logger) Log(op, result, recordID string, errInfo *ErrorInfo, ctx map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrKeyNotSet
	}

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := disk.EnsureAvailable(l.path, MinDiskSpace); errors.Is(err, disk.ErrInsufficient) {
		return fmt.Errorf("audit: %w", err)
	}

	now := l.now().UTC()
	event := Event{
		Version:   1,
		ID:        newEventID(),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: op,
		Source:    l.source,
		SessionID: l.sessionID,
		Result:    result,
		Error:     errInfo,
		Context:   ctx,
	}
	if recordID != "" {
		event.Record = l.sign([]byte(recordID))
	}

	event.Chain.Sequence = l.sequence + 1
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.sign(recordData(&event))

	if err := l.writeEvent(&event, now); err != nil {
		return err
	}

	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations
func (l *Logger) LogSuccess(op, recordID string) error {
	return l.Log(op, ResultSuccess, recordID, nil, nil)
}

// LogError is a convenience method for failed operations
func (l *Logger) LogError(op, recordID, errCode, errMsg string) error {
	return l.Log(op, ResultError, recordID, &ErrorInfo{Code: errCode, Message: errMsg}, nil)
}

func (l *Logger) sign(data []byte) string {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// recordData serializes every significant field for the chain HMAC.
func recordData(event *Event) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s|%s|%s|%s|%s|%s|",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.Record,
		event.Source,
		event.SessionID,
		event.Result,
	)
	if event.Error != nil {
		fmt.Fprintf(&b, "%s|%s", event.Error.Code, event.Error.Message)
	}
	b.WriteByte('|')

	keys := make([]string, 0, len(event.Context))
	for k := range event.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v|", k, event.Context[k])
	}

	fmt.Fprintf(&b, "%d|%s", event.Chain.Sequence, event.Chain.PrevHash)
	return []byte(b.String())
}

// writeEvent appends event to the log file for the month of now.
func (l *Logger) writeEvent(event *Event, now time.Time) error {
	name := filepath.Join(l.path, now.Format("2006-01")+".jsonl")

	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

func (l *Logger) loadChainState() (*chainState, error) {
	data, err := os.ReadFile(filepath.Join(l.path, stateFile))
	if err != nil {
		return nil, err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("audit: corrupt chain state: %w", err)
	}
	return &state, nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash, Epoch: l.epoch})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, stateFile), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// archive moves the current log files and chain state to
// archive/<epoch>-<unix seconds>/.
func (l *Logger) archive(epoch string) error {
	if epoch == "" {
		epoch = "unknown"
	}
	dir := filepath.Join(l.path, archive, fmt.Sprintf("%s-%d", epoch, l.now().Unix()))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("audit: failed to create archive: %w", err)
	}

	files, err := l.logFiles()
	if err != nil {
		return err
	}
	for _, f := range append(files, filepath.Join(l.path, stateFile)) {
		if err := os.Rename(f, filepath.Join(dir, filepath.Base(f))); err != nil {
			return fmt.Errorf("audit: failed to archive %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM.jsonl sorts chronologically.
	sort.Strings(files)
	return files, nil
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"recordsTotal"`
	RecordsVerified int      `json:"recordsVerified"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify checks the integrity of the current chain.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := genesis
	var expectedSeq int64 = 1

	for _, event := range events {
		result.RecordsTotal++
		ok := true

		if event.Chain.Sequence != expectedSeq {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d",
				event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s", event.ID))
		}
		if !hmac.Equal([]byte(event.Chain.HMAC), []byte(l.sign(recordData(&event)))) {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		}

		if ok {
			result.RecordsVerified++
		} else {
			result.Valid = false
		}
		expectedPrev = event.Chain.HMAC
		expectedSeq = event.Chain.Sequence + 1
	}

	return result, nil
}

// ListEvents returns events of the current chain, oldest first.
// limit keeps the most recent events (0 = all); a non-zero since keeps
// events strictly after it.
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	if !since.IsZero() {
		filtered := events[:0]
		for _, event := range events {
			ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err != nil {
				continue
			}
			if ts.After(since) {
				filtered = append(filtered, event)
			}
		}
		events = filtered
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (l *Logger) readAll() ([]Event, error) {
	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, file := range files {
		fileEvents, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", filepath.Base(file), err)
		}
		events = append(events, fileEvents...)
	}
	return events, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

// newEventID returns a time-ordered UUID.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func epochOf(key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("epoch"))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}
