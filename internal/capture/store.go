package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound reports that no capture matched the requested identifier.
var ErrNotFound = errors.New("capture: not found")

// Store persists captures as pretty-printed JSON files in one directory.
// Writes go through a temp file plus rename so readers never observe a
// partial record. Safe for concurrent use across goroutines and processes
// sharing the directory.
type Store struct {
	dir string
}

// NewStore creates the directory if needed and returns a store over it.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("capture: store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: create store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// filename derives the on-disk name: YYYY-MM-DD_HH-mm-ss_<id8>.json, so a
// descending lexical sort lists newest first.
func filename(rec Record) string {
	ts := rec.Time()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	idPrefix := rec.ID
	if len(idPrefix) > 8 {
		idPrefix = idPrefix[:8]
	}
	return fmt.Sprintf("%s_%s.json", ts.Format("2006-01-02_15-04-05"), idPrefix)
}

// Save writes the record atomically and returns its File.
func (s *Store) Save(rec Record) (File, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return File{}, fmt.Errorf("capture: encode record: %w", err)
	}
	name := filename(rec)
	target := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".capture-*.tmp")
	if err != nil {
		return File{}, fmt.Errorf("capture: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return File{}, fmt.Errorf("capture: write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return File{}, fmt.Errorf("capture: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return File{}, fmt.Errorf("capture: rename into place: %w", err)
	}
	return File{File: name, Capture: rec}, nil
}

// listFilenames returns all capture filenames, newest first.
func (s *Store) listFilenames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("capture: read store directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// read loads one record. Callers skip os.IsNotExist failures: a concurrent
// delete between listing and reading is not an error.
func (s *Store) read(name string) (File, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return File{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return File{}, fmt.Errorf("capture: decode %s: %w", name, err)
	}
	return File{File: name, Capture: rec}, nil
}

// List returns up to limit captures, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]File, error) {
	names, err := s.listFilenames()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	out := make([]File, 0, len(names))
	for _, name := range names {
		f, err := s.read(name)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Get resolves a capture by exact ID first, then filename substring, then
// ID prefix. Returns ErrNotFound when nothing matches.
func (s *Store) Get(partialOrFullID string) (File, error) {
	if partialOrFullID == "" {
		return File{}, ErrNotFound
	}
	all, err := s.List(0)
	if err != nil {
		return File{}, err
	}
	for _, f := range all {
		if f.Capture.ID == partialOrFullID {
			return f, nil
		}
	}
	for _, f := range all {
		if strings.Contains(f.File, partialOrFullID) {
			return f, nil
		}
	}
	for _, f := range all {
		if strings.HasPrefix(f.Capture.ID, partialOrFullID) {
			return f, nil
		}
	}
	return File{}, ErrNotFound
}

// Search scans every record and matches query case-insensitively against
// id, path, method, provider, and filename.
func (s *Store) Search(query string) ([]File, error) {
	all, err := s.List(0)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	out := make([]File, 0)
	for _, f := range all {
		haystacks := []string{
			f.Capture.ID,
			f.Capture.Path,
			f.Capture.Method,
			f.Capture.Provider,
			f.File,
		}
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), needle) {
				out = append(out, f)
				break
			}
		}
	}
	return out, nil
}

// Delete removes the capture resolved like Get.
func (s *Store) Delete(partialOrFullID string) error {
	f, err := s.Get(partialOrFullID)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, f.File)); err != nil {
		return fmt.Errorf("capture: delete %s: %w", f.File, err)
	}
	return nil
}

// DeleteAll removes every capture file and reports how many were deleted.
func (s *Store) DeleteAll() (int, error) {
	names, err := s.listFilenames()
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return deleted, fmt.Errorf("capture: delete %s: %w", name, err)
		}
		deleted++
	}
	return deleted, nil
}
