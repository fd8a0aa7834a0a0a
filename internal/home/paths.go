// Package home lays out the engine's state directory under ~/.imsg.
package home

import (
	"os"
	"path/filepath"
)

// Dir returns ~/.imsg.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".imsg")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// JournalPath returns the delivery-journal database path.
func JournalPath() string {
	return filepath.Join(Dir(), "journal.db")
}

// CandidatesPath returns the file holding the last ambiguous recipient
// candidates, kept so "candidate N" works on the next invocation.
func CandidatesPath() string {
	return filepath.Join(Dir(), "candidates.json")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(Dir(), "logs")
}

// LogPath returns the engine log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "imsg.log")
}

// EnsureDir creates the state directory tree with owner-only permissions.
func EnsureDir() error {
	for _, d := range []string{Dir(), LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
