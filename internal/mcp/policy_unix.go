//go:build unix

package mcp

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openPolicyFile opens <data_dir>/mcp-policy.yaml for reading. The final path
// element must not be a symlink: a link planted in the journal directory
// could otherwise widen what an assistant may read from the journal.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW, 0)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, ErrPolicyNotFound
	case errors.Is(err, unix.ELOOP):
		return nil, ErrPolicySymlink
	case errors.Is(err, os.ErrPermission):
		return nil, fmt.Errorf("policy file not readable: %w", err)
	default:
		return nil, err
	}
}

// checkFileOwnership requires the policy file to belong to the user running
// the server, the same user who owns the journal.
func checkFileOwnership(info os.FileInfo) error {
	stat, ok := info.Sys().(*unix.Stat_t)
	if !ok {
		return nil
	}
	if int(stat.Uid) != os.Getuid() {
		return fmt.Errorf("%w: uid %d", ErrPolicyNotOwnedByUser, stat.Uid)
	}
	return nil
}
