// Package templates manages the on-disk catalog of webhook request
// templates, laid out as <dir>/<provider>/<name>.json with a cached index
// at <dir>/index.json.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

// ErrNotFound reports a missing template.
var ErrNotFound = errors.New("templates: not found")

// indexFilename is the cached catalog; cachedAt is epoch milliseconds.
const indexFilename = "index.json"

// DefaultIndexTTL is how long the cached index is trusted before a rescan.
const DefaultIndexTTL = time.Hour

// Template is one stored webhook request shape. Fresh maps body paths to
// generator kinds applied at instantiation time: "uuid", "timestamp"
// (unix seconds), "timestamp_ms", or "iso_timestamp".
type Template struct {
	Name        string            `json:"name"`
	Provider    string            `json:"provider"`
	Description string            `json:"description,omitempty"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body"`
	Fresh       map[string]string `json:"fresh,omitempty"`
}

// Entry is one row of the catalog index.
type Entry struct {
	Provider    string `json:"provider"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type index struct {
	CachedAt  int64   `json:"cachedAt"`
	Templates []Entry `json:"templates"`
}

// Manager lists, loads, and saves templates. The index file amortizes
// directory scans; it is rebuilt when older than the TTL or on mutation.
type Manager struct {
	dir string
	ttl time.Duration

	mu     sync.Mutex
	cached *index
	dirty  bool
	now    func() time.Time
}

// NewManager creates the template directory if needed.
func NewManager(dir string, ttl time.Duration) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("templates: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("templates: create directory: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultIndexTTL
	}
	return &Manager{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Dir returns the backing directory.
func (m *Manager) Dir() string { return m.dir }

// List returns the catalog, sorted by provider then name. A fresh index
// file is trusted; a stale or missing one triggers a rescan.
func (m *Manager) List() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		idx := m.cached
		if idx == nil {
			idx = m.readIndexLocked()
		}
		if idx != nil && !m.staleLocked(idx) {
			m.cached = idx
			return idx.Templates, nil
		}
	}
	entries, err := m.rebuildLocked()
	if err != nil {
		return nil, err
	}
	m.dirty = false
	return entries, nil
}

// Invalidate marks the cached index stale; the next List rescans.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
	m.dirty = true
}

// Get loads one template.
func (m *Manager) Get(provider, name string) (*Template, error) {
	data, err := os.ReadFile(m.path(provider, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, provider, name)
		}
		return nil, fmt.Errorf("templates: read %s/%s: %w", provider, name, err)
	}
	var tpl Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("templates: decode %s/%s: %w", provider, name, err)
	}
	if tpl.Provider == "" {
		tpl.Provider = provider
	}
	if tpl.Name == "" {
		tpl.Name = name
	}
	return &tpl, nil
}

// Save writes the template and refreshes the index.
func (m *Manager) Save(tpl Template) error {
	if tpl.Provider == "" || tpl.Name == "" {
		return fmt.Errorf("templates: provider and name are required")
	}
	if err := os.MkdirAll(filepath.Join(m.dir, tpl.Provider), 0o755); err != nil {
		return fmt.Errorf("templates: create provider directory: %w", err)
	}
	data, err := json.MarshalIndent(tpl, "", "  ")
	if err != nil {
		return fmt.Errorf("templates: encode %s/%s: %w", tpl.Provider, tpl.Name, err)
	}
	if err := os.WriteFile(m.path(tpl.Provider, tpl.Name), data, 0o644); err != nil {
		return fmt.Errorf("templates: write %s/%s: %w", tpl.Provider, tpl.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, err = m.rebuildLocked()
	return err
}

// Delete removes one template and refreshes the index.
func (m *Manager) Delete(provider, name string) error {
	if err := os.Remove(m.path(provider, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, provider, name)
		}
		return fmt.Errorf("templates: delete %s/%s: %w", provider, name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.rebuildLocked()
	return err
}

// Instantiate renders the template body, replacing every Fresh path with a
// newly generated value.
func (m *Manager) Instantiate(tpl *Template) ([]byte, error) {
	body := []byte(tpl.Body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	paths := make([]string, 0, len(tpl.Fresh))
	for path := range tpl.Fresh {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	now := m.now()
	for _, path := range paths {
		value, err := freshValue(tpl.Fresh[path], now)
		if err != nil {
			return nil, err
		}
		body, err = sjson.SetBytes(body, path, value)
		if err != nil {
			return nil, fmt.Errorf("templates: set %s: %w", path, err)
		}
	}
	return body, nil
}

func freshValue(kind string, now time.Time) (any, error) {
	switch kind {
	case "uuid":
		return uuid.NewString(), nil
	case "timestamp":
		return now.Unix(), nil
	case "timestamp_ms":
		return now.UnixMilli(), nil
	case "iso_timestamp":
		return now.UTC().Format(time.RFC3339), nil
	default:
		return nil, fmt.Errorf("templates: unknown fresh kind %q", kind)
	}
}

func (m *Manager) path(provider, name string) string {
	name = strings.TrimSuffix(name, ".json")
	return filepath.Join(m.dir, provider, name+".json")
}

func (m *Manager) staleLocked(idx *index) bool {
	age := m.now().UnixMilli() - idx.CachedAt
	return age < 0 || age > m.ttl.Milliseconds()
}

func (m *Manager) readIndexLocked() *index {
	data, err := os.ReadFile(filepath.Join(m.dir, indexFilename))
	if err != nil {
		return nil
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil
	}
	return &idx
}

// rebuildLocked rescans the provider directories and rewrites the index.
func (m *Manager) rebuildLocked() ([]Entry, error) {
	providers, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("templates: scan directory: %w", err)
	}
	entries := make([]Entry, 0)
	for _, providerDir := range providers {
		if !providerDir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(m.dir, providerDir.Name()))
		if err != nil {
			return nil, fmt.Errorf("templates: scan %s: %w", providerDir.Name(), err)
		}
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
				continue
			}
			entry := Entry{
				Provider: providerDir.Name(),
				Name:     strings.TrimSuffix(file.Name(), ".json"),
			}
			if tpl, err := m.loadForIndex(entry.Provider, entry.Name); err == nil {
				entry.Description = tpl.Description
			}
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Provider != entries[j].Provider {
			return entries[i].Provider < entries[j].Provider
		}
		return entries[i].Name < entries[j].Name
	})

	idx := &index{CachedAt: m.now().UnixMilli(), Templates: entries}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("templates: encode index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, indexFilename), data, 0o644); err != nil {
		return nil, fmt.Errorf("templates: write index: %w", err)
	}
	m.cached = idx
	return entries, nil
}

func (m *Manager) loadForIndex(provider, name string) (*Template, error) {
	data, err := os.ReadFile(m.path(provider, name))
	if err != nil {
		return nil, err
	}
	var tpl Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}
