// Package disk reports free space on the volume holding a path.
package disk

import (
	"errors"
	"fmt"
)

const (
	// MinFreeBytes is the free space required before writing journal data.
	MinFreeBytes = 10 * 1024 * 1024
	// WarningPercent is the usage above which Info.Low reports true.
	WarningPercent = 90
)

// ErrInsufficient indicates the volume is too full to write safely.
var ErrInsufficient = errors.New("disk: insufficient space")

// Info contains disk usage information.
type Info struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"usedPct"`   // Percentage of disk used
}

// Low reports whether usage is at or above WarningPercent.
func (i *Info) Low() bool {
	return i.UsedPct >= WarningPercent
}

// EnsureAvailable returns ErrInsufficient when fewer than required bytes are
// available to the current user at path. Failure to read the disk stats is
// returned as is so callers can decide whether to proceed.
func EnsureAvailable(path string, required uint64) error {
	info, err := Check(path)
	if err != nil {
		return err
	}
	if info.Available < required {
		return fmt.Errorf("%w: only %d bytes available, need at least %d",
			ErrInsufficient, info.Available, required)
	}
	return nil
}

func usedPercent(total, free uint64) int {
	if total == 0 {
		return 0
	}
	return int(100 * (total - free) / total)
}
