//go:build linux || darwin

package disk

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Check returns disk space information for path, falling back to its parent
// directory when path does not exist yet.
func Check(path string) (*Info, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		if err := unix.Statfs(filepath.Dir(path), &stat); err != nil {
			return nil, fmt.Errorf("disk: failed to get stats for %s: %w", path, err)
		}
	}

	bsize := uint64(stat.Bsize) // #nosec G115 -- block size is positive
	total := stat.Blocks * bsize
	free := stat.Bfree * bsize

	return &Info{
		Total:     total,
		Free:      free,
		Available: stat.Bavail * bsize,
		UsedPct:   usedPercent(total, free),
	}, nil
}
