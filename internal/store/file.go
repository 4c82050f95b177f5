package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"onchainuno/internal/state"
)

// FileStore keeps the whole state as a single JSON snapshot under dir.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) Load() (*state.State, error) {
	path := filepath.Join(f.dir, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return state.NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st state.State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.Normalize()
	return &st, nil
}

func (f *FileStore) Save(st *state.State) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir store dir: %w", err)
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	// Write-then-rename: an interrupted save must not clobber the last
	// committed snapshot.
	path := filepath.Join(f.dir, "state.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error {
	return nil
}
