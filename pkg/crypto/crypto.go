// Package crypto provides cryptographic primitives for sdlcjournal.
//
// This package implements AES-256-GCM authenticated encryption and
// PBKDF2-HMAC-SHA256 key derivation.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption
//   - PBKDF2-HMAC-SHA256 key derivation (600,000 iterations)
//   - Cryptographically secure random nonce and salt generation
//   - Secure memory wiping for sensitive data
//
// # Example Usage
//
//	// Derive a key from a passphrase
//	salt, _ := crypto.GenerateSalt()
//	key := crypto.DeriveKey([]byte("passphrase"), salt, crypto.PBKDF2Iterations)
//
//	// Build the cipher once per key
//	aead, err := crypto.NewAEAD(key)
//
//	// Seal with a fresh nonce, then open
//	ciphertext, nonce, err := crypto.Seal(aead, plaintext)
//	plaintext, err = crypto.Open(aead, ciphertext, nonce)
//
//	// Securely wipe sensitive data
//	crypto.SecureWipe(key)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the PBKDF2-HMAC-SHA256 work factor.
	PBKDF2Iterations = 600_000

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of generated salts in bytes.
	SaltLength = 16
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// DeriveKey derives a 256-bit key from a passphrase using PBKDF2-HMAC-SHA256.
//
// iterations below 1 fall back to PBKDF2Iterations. The salt should be at
// least 16 bytes of cryptographically secure random data.
func DeriveKey(passphrase, salt []byte, iterations int) []byte {
	if iterations < 1 {
		iterations = PBKDF2Iterations
	}
	return pbkdf2.Key(passphrase, salt, iterations, KeyLength, sha256.New)
}

// GenerateSalt returns SaltLength random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// NewAEAD builds an AES-256-GCM AEAD for key.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with a fresh random nonce.
// The authentication tag is appended to the ciphertext.
func Seal(aead cipher.AEAD, plaintext []byte) (ciphertext []byte, nonce []byte, err error) {
	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Open verifies and decrypts ciphertext.
//
// Any tag failure, including a wrong key, is reported as ErrDecryptionFailed.
func Open(aead cipher.AEAD, ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	// GCM tag is 16 bytes
	if len(ciphertext) < aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncodeBase64 encodes b with standard padded base64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes a standard padded base64 string.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid base64: %w", err)
	}
	return b, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive keeps the writes from being optimized away.
	runtime.KeepAlive(b)
}
