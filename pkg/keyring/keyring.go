// Package keyring manages the journal's session key.
//
// A passphrase is stretched twice with PBKDF2-HMAC-SHA256 using two
// independent salts: one derivation produces the AES-256 encryption key,
// the other a verification value that is persisted and compared on unlock.
// The salts are never shared between the two purposes, so the stored
// verification value reveals nothing usable about the encryption key.
//
// # Key Capability
//
// The derived key is held by a *Key. Every seal or open call takes the *Key
// explicitly. Clear wipes the key bytes and revokes the capability, after
// which Seal and Open fail with ErrNoActiveKey. An operation that already
// obtained the cipher before Clear is allowed to finish.
package keyring

import (
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/peoplesafe/sdlcjournal/pkg/crypto"
)

// Sentinel errors returned by the key manager and codec.
var (
	// ErrWeakPassphrase indicates the passphrase is shorter than MinPassphraseLength.
	ErrWeakPassphrase = errors.New("keyring: passphrase must be at least 12 characters")

	// ErrAuthenticationFailed indicates the passphrase did not match the stored verification hash.
	ErrAuthenticationFailed = errors.New("keyring: authentication failed")

	// ErrNoActiveKey indicates the key was cleared or never derived.
	ErrNoActiveKey = errors.New("keyring: no active key")

	// ErrEmptySubkeyInfo indicates DeriveSubkey was called without a purpose.
	ErrEmptySubkeyInfo = errors.New("keyring: subkey info is required")

	// ErrInvalidSalt indicates a stored salt or hash is missing or malformed.
	ErrInvalidSalt = errors.New("keyring: invalid salt or verification hash")

	// ErrDecryptionFailed is returned when a record fails authentication.
	ErrDecryptionFailed = crypto.ErrDecryptionFailed
)

// Material is what Setup produces for persistence.
type Material struct {
	KeySalt          []byte
	HashSalt         []byte
	VerificationHash []byte
}

// Manager derives and verifies session keys.
type Manager struct {
	iterations int
}

// Option configures a Manager.
type Option func(*Manager)

// WithIterations overrides the PBKDF2 work factor. Intended for tests.
func WithIterations(n int) Option {
	return func(m *Manager) {
		m.iterations = n
	}
}

// NewManager returns a Manager using crypto.PBKDF2Iterations unless overridden.
func NewManager(opts ...Option) *Manager {
	m := &Manager{iterations: crypto.PBKDF2Iterations}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Setup validates the passphrase, generates fresh salts and derives both the
// verification hash and the session key.
func (m *Manager) Setup(passphrase string) (*Material, *Key, error) {
	if !ValidatePassphrase(passphrase).Valid {
		return nil, nil, ErrWeakPassphrase
	}

	keySalt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, nil, fmt.Errorf("keyring: failed to generate key salt: %w", err)
	}
	hashSalt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, nil, fmt.Errorf("keyring: failed to generate hash salt: %w", err)
	}

	pw := []byte(passphrase)
	defer crypto.SecureWipe(pw)

	material := &Material{
		KeySalt:          keySalt,
		HashSalt:         hashSalt,
		VerificationHash: crypto.DeriveKey(pw, hashSalt, m.iterations),
	}

	raw := crypto.DeriveKey(pw, keySalt, m.iterations)
	key, err := newKey(raw)
	if err != nil {
		return nil, nil, err
	}
	return material, key, nil
}

// Unlock verifies the passphrase against storedHash and derives the session key.
//
// The verification derivation always runs in full before comparison.
func (m *Manager) Unlock(passphrase string, storedHash, hashSalt, keySalt []byte) (*Key, error) {
	if len(storedHash) == 0 || len(hashSalt) == 0 || len(keySalt) == 0 {
		return nil, ErrInvalidSalt
	}

	pw := []byte(passphrase)
	defer crypto.SecureWipe(pw)

	candidate := crypto.DeriveKey(pw, hashSalt, m.iterations)
	defer crypto.SecureWipe(candidate)

	if subtle.ConstantTimeCompare(candidate, storedHash) != 1 {
		return nil, ErrAuthenticationFailed
	}

	return newKey(crypto.DeriveKey(pw, keySalt, m.iterations))
}

// Key is a revocable handle on a derived AES-256 key.
type Key struct {
	mu   sync.RWMutex
	raw  []byte
	aead cipher.AEAD
}

// NewKey wraps a copy of raw key bytes. raw must be crypto.KeyLength bytes.
func NewKey(raw []byte) (*Key, error) {
	return newKey(append([]byte(nil), raw...))
}

// newKey takes ownership of raw.
func newKey(raw []byte) (*Key, error) {
	aead, err := crypto.NewAEAD(raw)
	if err != nil {
		crypto.SecureWipe(raw)
		return nil, fmt.Errorf("keyring: failed to initialize cipher: %w", err)
	}
	return &Key{raw: raw, aead: aead}, nil
}

// Clear wipes the key bytes and revokes the capability. Safe to call more
// than once and on a nil Key.
func (k *Key) Clear() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.raw != nil {
		crypto.SecureWipe(k.raw)
		k.raw = nil
	}
	k.aead = nil
}

// Active reports whether the key can still be used.
func (k *Key) Active() bool {
	if k == nil {
		return false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.aead != nil
}

// DeriveSubkey derives a crypto.KeyLength-byte key for the purpose named by
// info, using HKDF-SHA256 over the session key. The session key itself never
// leaves the Key. The caller should SecureWipe the result when done.
func (k *Key) DeriveSubkey(info string) ([]byte, error) {
	if info == "" {
		return nil, ErrEmptySubkeyInfo
	}
	if k == nil {
		return nil, ErrNoActiveKey
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.raw == nil {
		return nil, ErrNoActiveKey
	}

	sub := make([]byte, crypto.KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, k.raw, nil, []byte(info)), sub); err != nil {
		return nil, fmt.Errorf("keyring: failed to derive subkey: %w", err)
	}
	return sub, nil
}

func (k *Key) aeadRef() (cipher.AEAD, error) {
	if k == nil {
		return nil, ErrNoActiveKey
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.aead == nil {
		return nil, ErrNoActiveKey
	}
	return k.aead, nil
}
