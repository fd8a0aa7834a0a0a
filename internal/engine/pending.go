package engine

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/imsglab/imsg/internal/resolve"
)

// CandidateStore holds the candidate list from the last ambiguous
// resolution so a follow-up "candidate N" reference can select from it.
type CandidateStore interface {
	Load() ([]resolve.Candidate, error)
	Save(cands []resolve.Candidate) error
	Clear() error
}

// MemoryCandidates keeps the pending set in process memory.
type MemoryCandidates struct {
	mu    sync.Mutex
	cands []resolve.Candidate
}

func (m *MemoryCandidates) Load() ([]resolve.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cands, nil
}

func (m *MemoryCandidates) Save(cands []resolve.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cands = cands
	return nil
}

func (m *MemoryCandidates) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cands = nil
	return nil
}

// FileCandidates persists the pending set in the state directory, so a
// selection reference works from a later process invocation. The state
// lock serializes writers.
type FileCandidates struct {
	path string
}

// NewFileCandidates creates a store at path.
func NewFileCandidates(path string) *FileCandidates {
	return &FileCandidates{path: path}
}

func (f *FileCandidates) Load() ([]resolve.Candidate, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cands []resolve.Candidate
	if err := json.Unmarshal(data, &cands); err != nil {
		return nil, err
	}
	return cands, nil
}

func (f *FileCandidates) Save(cands []resolve.Candidate) error {
	data, err := json.Marshal(cands)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0600)
}

func (f *FileCandidates) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
