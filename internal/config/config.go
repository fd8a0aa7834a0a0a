// Package config loads the engine configuration from ~/.imsg/config.toml
// with IMSG_* environment variables taking precedence over the file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the engine. Zero values are filled with
// defaults by Load.
type Config struct {
	// ChatDBPath is the externally owned message store.
	ChatDBPath string `toml:"chat_db_path" env:"IMSG_CHAT_DB"`
	// AddressBookDir is the root of the address-book databases.
	AddressBookDir string `toml:"address_book_dir" env:"IMSG_ADDRESS_BOOK_DIR"`
	// DirectoryTTL is how long a loaded contact snapshot stays valid.
	DirectoryTTL time.Duration `toml:"directory_ttl" env:"IMSG_DIRECTORY_TTL"`
	// AutomationTimeout bounds each automation-surface invocation.
	AutomationTimeout time.Duration `toml:"automation_timeout" env:"IMSG_AUTOMATION_TIMEOUT"`
	// LogPath is the engine log file.
	LogPath string `toml:"log_path" env:"IMSG_LOG_PATH"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ChatDBPath:        filepath.Join(home, "Library", "Messages", "chat.db"),
		AddressBookDir:    filepath.Join(home, "Library", "Application Support", "AddressBook"),
		DirectoryTTL:      5 * time.Minute,
		AutomationTimeout: 8 * time.Second,
		LogPath:           filepath.Join(home, ".imsg", "logs", "imsg.log"),
	}
}

// Load reads config from path, then applies environment overrides. A
// missing file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
