// Package persistence provides atomic, one-file-per-entity JSON storage
// matching the filesystem layout in spec §6 (e.g. one blueprint per file
// under <project>/.blueprint/<id>.json).
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/c360studio/taskqueen/model"
)

// Store persists entities of a single kind as individually named JSON
// files inside a directory, using atomic rename-into-place writes so a
// crash mid-write never leaves a torn file.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating dir if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory this store persists into.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save atomically writes v as <id>.json.
func (s *Store) Save(id string, v any) error {
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("invalid entity id %q: must not contain path separators", id)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal entity %s: %w", id, err)
	}
	if err := renameio.WriteFile(s.pathFor(id), data, 0o644); err != nil {
		return fmt.Errorf("write entity %s: %w", id, err)
	}
	return nil
}

// Load reads <id>.json into v. Returns model.ErrNotFound if the id is
// absent.
func (s *Store) Load(id string, v any) error {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return model.ErrNotFound
		}
		return fmt.Errorf("read entity %s: %w", id, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal entity %s: %w", id, err)
	}
	return nil
}

// Delete removes <id>.json. It is a no-op if the file does not exist.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete entity %s: %w", id, err)
	}
	return nil
}

// List returns the ids of every entity currently persisted, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list store dir %s: %w", s.dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
