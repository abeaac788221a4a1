package keyring

import (
	"errors"
	"fmt"

	"github.com/peoplesafe/sdlcjournal/pkg/crypto"
)

// Sealed is a ciphertext and nonce pair in the base64 form used at the
// storage boundary. A zero Sealed means "nothing stored".
type Sealed struct {
	Ciphertext string
	IV         string
}

// IsEmpty reports whether s carries no ciphertext.
func (s Sealed) IsEmpty() bool {
	return s.Ciphertext == "" && s.IV == ""
}

// Seal encrypts plaintext under key with a fresh random 96-bit nonce.
func Seal(plaintext []byte, key *Key) (ciphertext, nonce []byte, err error) {
	aead, err := key.aeadRef()
	if err != nil {
		return nil, nil, err
	}
	return crypto.Seal(aead, plaintext)
}

// Open verifies and decrypts ciphertext under key.
// A wrong key and a corrupted record both yield ErrDecryptionFailed.
func Open(ciphertext, nonce []byte, key *Key) ([]byte, error) {
	aead, err := key.aeadRef()
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.Open(aead, ciphertext, nonce)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidNonceLength) || errors.Is(err, crypto.ErrCiphertextTooShort) {
			return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
		}
		return nil, err
	}
	return plaintext, nil
}

// SealString seals s and base64-encodes the result.
func SealString(s string, key *Key) (Sealed, error) {
	ct, nonce, err := Seal([]byte(s), key)
	if err != nil {
		return Sealed{}, err
	}
	return Sealed{
		Ciphertext: crypto.EncodeBase64(ct),
		IV:         crypto.EncodeBase64(nonce),
	}, nil
}

// OpenString decodes and opens a Sealed value. Malformed base64 is reported
// as ErrDecryptionFailed.
func OpenString(s Sealed, key *Key) (string, error) {
	ct, err := crypto.DecodeBase64(s.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %w", ErrDecryptionFailed, err)
	}
	nonce, err := crypto.DecodeBase64(s.IV)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %w", ErrDecryptionFailed, err)
	}
	plaintext, err := Open(ct, nonce, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
