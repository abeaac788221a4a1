// Package journal is the session façade over the encrypted journal.
//
// A Journal owns the record store, the audit trail and, while unlocked, the
// session key. Front ends (the CLI and the MCP server) only talk to this
// package:
//
//	j, err := journal.Open(ctx, dir)
//	if first, _ := j.IsFirstTime(ctx); first {
//		err = j.Setup(ctx, passphrase)
//	} else {
//		err = j.Unlock(ctx, passphrase)
//	}
//	defer j.Close()
//
// Lock revokes the key. Operations started afterwards fail with
// keyring.ErrNoActiveKey; an operation that already holds the key may finish.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/peoplesafe/sdlcjournal/pkg/audit"
	"github.com/peoplesafe/sdlcjournal/pkg/crypto"
	"github.com/peoplesafe/sdlcjournal/pkg/keyring"
	"github.com/peoplesafe/sdlcjournal/pkg/period"
	"github.com/peoplesafe/sdlcjournal/pkg/rollup"
	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

// Constants
const (
	DBFileName        = "journal.db"
	AuditDirName      = "audit"
	LockStateFileName = "unlock.state"

	// DefaultAutosaveDelay is the idle window before a scheduled reflection is written.
	DefaultAutosaveDelay = 1500 * time.Millisecond
)

// Errors
var (
	ErrAlreadyInitialized = errors.New("journal: journal already initialized")
	ErrNotInitialized     = errors.New("journal: journal not initialized")
	ErrAlreadyUnlocked    = errors.New("journal: journal is already unlocked")
	ErrEmptyEntry         = errors.New("journal: entry has no content")
	ErrCooldownActive     = errors.New("journal: cooldown period active")
	ErrTooManyAttempts    = errors.New("journal: too many failed unlock attempts")
)

// Content and Entry are the plaintext forms of a journal entry.
type (
	Content = rollup.Content
	Entry   = rollup.Entry
)

// Journal manages one journal directory.
type Journal struct {
	dir      string
	dbPath   string
	store    *store.Store
	keys     *keyring.Manager
	engine   *rollup.Engine
	audit    *audit.Logger
	saver    *debouncer
	log      zerolog.Logger
	now      func() time.Time
	loc      *time.Location
	keyOpts  []keyring.Option
	audOpts  []audit.Option
	noAudit  bool
	autosave time.Duration

	diskCheck func(dir string) error

	mu      sync.RWMutex
	key     *keyring.Key
	closing bool
}

// Option configures a Journal.
type Option func(*Journal)

// WithDatabasePath overrides the database location. Pass store.MemoryDSN for
// a throwaway journal.
func WithDatabasePath(path string) Option {
	return func(j *Journal) {
		j.dbPath = path
	}
}

// WithIterations overrides the PBKDF2 work factor. Intended for tests.
func WithIterations(n int) Option {
	return func(j *Journal) {
		j.keyOpts = append(j.keyOpts, keyring.WithIterations(n))
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option {
	return func(j *Journal) {
		j.log = l
	}
}

// WithClock sets the time source used for timestamps, cooldowns and "today".
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
		j.audOpts = append(j.audOpts, audit.WithClock(now))
	}
}

// WithLocation sets the time zone that defines the user's calendar date.
// Default time.Local.
func WithLocation(loc *time.Location) Option {
	return func(j *Journal) {
		j.loc = loc
	}
}

// WithAutosaveDelay sets the debounce window for ScheduleReflection.
func WithAutosaveDelay(d time.Duration) Option {
	return func(j *Journal) {
		j.autosave = d
	}
}

// WithAuditSource sets the source recorded in audit events.
func WithAuditSource(source string) Option {
	return func(j *Journal) {
		j.audOpts = append(j.audOpts, audit.WithSource(source))
	}
}

// WithDiskCheck replaces the free-space check run before every write.
// check returns an error wrapping disk.ErrInsufficient when dir is too full.
func WithDiskCheck(check func(dir string) error) Option {
	return func(j *Journal) {
		j.diskCheck = check
	}
}

// WithoutAudit disables the audit trail.
func WithoutAudit() Option {
	return func(j *Journal) {
		j.noAudit = true
	}
}

// Open opens (creating if needed) the journal stored under dir.
func Open(ctx context.Context, dir string, opts ...Option) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal: directory is required")
	}

	j := &Journal{
		dir:      dir,
		dbPath:   filepath.Join(dir, DBFileName),
		log:      zerolog.Nop(),
		now:      time.Now,
		loc:      time.Local,
		autosave: DefaultAutosaveDelay,

		diskCheck: ensureDiskSpace,
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := os.MkdirAll(dir, store.DirMode); err != nil {
		return nil, fmt.Errorf("journal: failed to create directory: %w", err)
	}

	s, err := store.Open(ctx, j.dbPath)
	if err != nil {
		return nil, err
	}

	j.store = s
	j.keys = keyring.NewManager(j.keyOpts...)
	j.engine = rollup.NewEngine(s, rollup.WithLogger(j.log))
	j.saver = newDebouncer(j.autosave)
	if !j.noAudit {
		j.audit = audit.NewLogger(filepath.Join(dir, AuditDirName), j.audOpts...)
	}
	return j, nil
}

// Close locks the journal and closes the store.
func (j *Journal) Close() error {
	j.Lock()
	return j.store.Close()
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

// Today returns the user's calendar date as YYYY-MM-DD.
func (j *Journal) Today() string {
	return j.now().In(j.loc).Format(period.DateLayout)
}

// AuditLogger returns the audit trail, or nil when auditing is disabled.
func (j *Journal) AuditLogger() *audit.Logger {
	return j.audit
}

// IsFirstTime reports whether no passphrase has been set up.
func (j *Journal) IsFirstTime(ctx context.Context) (bool, error) {
	has, err := j.store.HasPassphrase(ctx)
	if err != nil {
		return false, err
	}
	return !has, nil
}

// Setup creates the passphrase material and unlocks the journal.
func (j *Journal) Setup(ctx context.Context, passphrase string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	has, err := j.store.HasPassphrase(ctx)
	if err != nil {
		return err
	}
	if has {
		return ErrAlreadyInitialized
	}

	material, key, err := j.keys.Setup(passphrase)
	if err != nil {
		return err
	}

	err = j.store.PutMeta(ctx, []store.Meta{
		{Key: store.MetaKeySalt, Value: crypto.EncodeBase64(material.KeySalt)},
		{Key: store.MetaPassphraseSalt, Value: crypto.EncodeBase64(material.HashSalt)},
		{Key: store.MetaPassphraseHash, Value: crypto.EncodeBase64(material.VerificationHash)},
	})
	if err != nil {
		key.Clear()
		return fmt.Errorf("journal: failed to save passphrase material: %w", err)
	}

	if err := j.clearLockState(); err != nil {
		j.log.Warn().Err(err).Msg("failed to clear unlock state")
	}

	j.key = key
	j.attachAudit(key)
	j.record(audit.OpJournalSetup, "", nil)
	j.log.Debug().Msg("journal set up")
	return nil
}

// Unlock verifies passphrase against the stored hash and holds the derived key.
func (j *Journal) Unlock(ctx context.Context, passphrase string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.key != nil && j.key.Active() {
		return ErrAlreadyUnlocked
	}

	if remaining, err := j.checkCooldown(); err != nil {
		if errors.Is(err, ErrCooldownActive) {
			return fmt.Errorf("%w: please wait %v", ErrCooldownActive, remaining.Round(time.Second))
		}
		return err
	}

	keySalt, hashSalt, hash, err := j.loadMaterial(ctx)
	if err != nil {
		return err
	}

	key, err := j.keys.Unlock(passphrase, hash, hashSalt, keySalt)
	if errors.Is(err, keyring.ErrAuthenticationFailed) {
		cooldown, recordErr := j.recordFailedAttempt()
		if recordErr != nil {
			j.log.Warn().Err(recordErr).Msg("failed to record unlock attempt")
		}
		j.log.Debug().Msg("unlock failed")
		if cooldown > 0 {
			return fmt.Errorf("%w: %w: cooldown activated for %v", err, ErrTooManyAttempts, cooldown.Round(time.Second))
		}
		return err
	}
	if err != nil {
		return err
	}

	state, _ := j.loadLockState()
	if err := j.clearLockState(); err != nil {
		j.log.Warn().Err(err).Msg("failed to clear unlock state")
	}

	j.key = key
	j.attachAudit(key)
	if state != nil && state.FailedAttempts > 0 {
		j.recordEvent(audit.OpJournalUnlockFailed, audit.ResultError, "",
			&audit.ErrorInfo{Code: "AUTH_FAILED", Message: "invalid passphrase"},
			map[string]any{"attempts": state.FailedAttempts})
	}
	j.record(audit.OpJournalUnlock, "", nil)
	j.log.Debug().Msg("journal unlocked")
	return nil
}

func (j *Journal) loadMaterial(ctx context.Context) (keySalt, hashSalt, hash []byte, err error) {
	values := make(map[string][]byte, 3)
	for _, name := range []string{store.MetaKeySalt, store.MetaPassphraseSalt, store.MetaPassphraseHash} {
		v, err := j.store.GetMeta(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil, ErrNotInitialized
		}
		if err != nil {
			return nil, nil, nil, err
		}
		b, err := crypto.DecodeBase64(v)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: meta %s: %w", keyring.ErrInvalidSalt, name, err)
		}
		values[name] = b
	}
	return values[store.MetaKeySalt], values[store.MetaPassphraseSalt], values[store.MetaPassphraseHash], nil
}

// Lock writes pending reflections and revokes the session key. It is safe to
// call on a locked journal. ScheduleReflection fails with
// keyring.ErrNoActiveKey from the moment Lock is called.
func (j *Journal) Lock() {
	j.beginClosing()
	j.saver.Flush()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.closing = false
	j.lockLocked()
}

// beginClosing stops ScheduleReflection from queueing new autosaves.
func (j *Journal) beginClosing() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closing = true
}

func (j *Journal) lockLocked() {
	if j.key == nil {
		return
	}
	j.record(audit.OpJournalLock, "", nil)
	if j.audit != nil {
		j.audit.ClearKey()
	}
	j.key.Clear()
	j.key = nil
	j.log.Debug().Msg("journal locked")
}

// IsLocked reports whether no session key is held.
func (j *Journal) IsLocked() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.key == nil || !j.key.Active()
}

// NeedsUnlock reports whether err was caused by a locked journal.
func NeedsUnlock(err error) bool {
	return errors.Is(err, keyring.ErrNoActiveKey)
}

// activeKey returns the session key or keyring.ErrNoActiveKey.
func (j *Journal) activeKey() (*keyring.Key, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.key == nil || !j.key.Active() {
		return nil, keyring.ErrNoActiveKey
	}
	return j.key, nil
}

// timestamp returns the current time truncated to the store's precision.
func (j *Journal) timestamp() time.Time {
	return j.now().UTC().Truncate(time.Millisecond)
}

// advance returns now, or previous+1ms when now does not come after
// previous, so that an update always strictly increases UpdatedAt.
func advance(now time.Time, previous string) string {
	if prev, err := store.ParseTimestamp(previous); err == nil && !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return store.Timestamp(now)
}

func (j *Journal) attachAudit(key *keyring.Key) {
	if j.audit == nil {
		return
	}
	hmacKey, err := key.DeriveSubkey(audit.HMACKeyInfo)
	if err != nil {
		j.log.Warn().Err(err).Msg("failed to initialize audit logger")
		return
	}
	defer crypto.SecureWipe(hmacKey)
	if err := j.audit.SetHMACKey(hmacKey); err != nil {
		j.log.Warn().Err(err).Msg("failed to initialize audit logger")
	}
}

// record writes a success event. Audit failures never fail the operation.
func (j *Journal) record(op, recordID string, ctx map[string]any) {
	j.recordEvent(op, audit.ResultSuccess, recordID, nil, ctx)
}

func (j *Journal) recordEvent(op, result, recordID string, errInfo *audit.ErrorInfo, ctx map[string]any) {
	if j.audit == nil || !j.audit.HasKey() {
		return
	}
	if err := j.audit.Log(op, result, recordID, errInfo, ctx); err != nil {
		j.log.Warn().Err(err).Str("op", op).Msg("audit write failed")
	}
}
