package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.ChatDBPath = "/tmp/chat.db"
	cfg.DirectoryTTL = 2 * time.Minute
	if err := Save(path, &cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ChatDBPath != "/tmp/chat.db" {
		t.Errorf("ChatDBPath = %q", loaded.ChatDBPath)
	}
	if loaded.DirectoryTTL != 2*time.Minute {
		t.Errorf("DirectoryTTL = %v", loaded.DirectoryTTL)
	}
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v for missing file", err)
	}
	if cfg.DirectoryTTL != 5*time.Minute {
		t.Errorf("DirectoryTTL = %v, want default 5m", cfg.DirectoryTTL)
	}
	if cfg.AutomationTimeout != 8*time.Second {
		t.Errorf("AutomationTimeout = %v, want default 8s", cfg.AutomationTimeout)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("IMSG_CHAT_DB", "/elsewhere/chat.db")
	t.Setenv("IMSG_DIRECTORY_TTL", "90s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChatDBPath != "/elsewhere/chat.db" {
		t.Errorf("ChatDBPath = %q, want env override", cfg.ChatDBPath)
	}
	if cfg.DirectoryTTL != 90*time.Second {
		t.Errorf("DirectoryTTL = %v, want 90s", cfg.DirectoryTTL)
	}
}
