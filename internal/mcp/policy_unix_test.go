//go:build unix

package mcp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckFileOwnership_CurrentUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), PolicyFileName)
	if err := os.WriteFile(path, []byte("version: 1\n"), 0600); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if err := checkFileOwnership(info); err != nil {
		t.Errorf("file owned by the current user rejected: %v", err)
	}
}

func TestOpenPolicyFile_Unreadable(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root can read any file")
	}
	path := filepath.Join(t.TempDir(), PolicyFileName)
	if err := os.WriteFile(path, []byte("version: 1\n"), 0000); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	_, err := openPolicyFile(path)
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("expected a permission error, got %v", err)
	}
	if errors.Is(err, ErrPolicySymlink) {
		t.Error("an unreadable file is not a symlink")
	}
}
