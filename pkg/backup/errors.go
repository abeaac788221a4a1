// Package backup exports and merges journal snapshots.
package backup

import (
	"errors"
	"fmt"
)

// Backup/import errors
var (
	// ErrInvalidFormat indicates the snapshot is malformed or missing a required field.
	ErrInvalidFormat = errors.New("invalid backup format")

	// ErrUnsupportedVersion indicates the snapshot format version is not supported.
	// It also matches ErrInvalidFormat.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrInvalidFormat)

	// ErrNilSnapshot indicates Import was called without a snapshot.
	ErrNilSnapshot = errors.New("snapshot is required")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFormat, fmt.Sprintf(format, args...))
}
