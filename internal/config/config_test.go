package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SDLCJOURNAL_DATA_DIR", dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.DataDir != dir {
		t.Errorf("expected data dir %s, got %s", dir, cfg.DataDir)
	}
	if cfg.AutosaveDelay != 1500*time.Millisecond || cfg.RecentLimit != 5 || cfg.LogLevel != "warn" || !cfg.Audit {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileFromDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SDLCJOURNAL_DATA_DIR", dir)
	writeConfig(t, dir, "autosave_delay: 3s\nrecent_limit: 7\naudit: false\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.AutosaveDelay != 3*time.Second {
		t.Errorf("expected 3s, got %v", cfg.AutosaveDelay)
	}
	if cfg.RecentLimit != 7 {
		t.Errorf("expected 7, got %d", cfg.RecentLimit)
	}
	if cfg.Audit {
		t.Error("expected audit disabled by file")
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("unset key should keep default, got %s", cfg.LogLevel)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "data_dir: "+dir+"\nrecent_limit: 7\nlog_level: info\n")
	t.Setenv("SDLCJOURNAL_RECENT_LIMIT", "2")
	t.Setenv("SDLCJOURNAL_AUTOSAVE_DELAY", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.RecentLimit != 2 {
		t.Errorf("env override failed, got %d", cfg.RecentLimit)
	}
	if cfg.AutosaveDelay != 250*time.Millisecond {
		t.Errorf("env override failed, got %v", cfg.AutosaveDelay)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("file value lost, got %s", cfg.LogLevel)
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "recent_limit: [1, 2"},
		{"bad duration", "autosave_delay: soon"},
		{"zero delay", "autosave_delay: 0s"},
		{"negative limit", "recent_limit: -1"},
		{"bad level", "log_level: loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv("SDLCJOURNAL_DATA_DIR", dir)
			writeConfig(t, dir, tt.body)
			if _, err := Load(""); err == nil {
				t.Errorf("expected error for %q", tt.body)
			}
		})
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("SDLCJOURNAL_DATA_DIR", t.TempDir())
	t.Setenv("SDLCJOURNAL_RECENT_LIMIT", "many")
	if _, err := Load(""); err == nil {
		t.Error("expected error for a non-numeric environment value")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/journal"); got != filepath.Join(home, "journal") {
		t.Errorf("expected expansion under home, got %s", got)
	}
	if got := expandHome("/abs/journal"); got != "/abs/journal" {
		t.Errorf("absolute path changed: %s", got)
	}
}
