//go:build !linux && !darwin && !windows

package disk

import (
	"errors"
	"fmt"
)

// Check is not supported on this platform. Callers treat the error as
// unknown free space and continue.
func Check(path string) (*Info, error) {
	return nil, fmt.Errorf("disk: cannot read stats for %s: %w", path, errors.ErrUnsupported)
}
