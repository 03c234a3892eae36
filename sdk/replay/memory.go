package replay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryOptions tunes the in-memory store. Zero values select defaults;
// negative values fail construction.
type MemoryOptions struct {
	// MaxEntries caps the map size. When exceeded, entries closest to
	// expiry are evicted first. Default 10000.
	MaxEntries int
	// CleanupBatchSize bounds how many expired entries one operation may
	// sweep. Default 128.
	CleanupBatchSize int
	// CleanupInterval is the minimum spacing between opportunistic sweeps.
	// Default 30s.
	CleanupInterval time.Duration
}

// MemoryStore is the reference Store backed by a mutex-guarded map. It is
// safe for concurrent use and suits single-process receivers; multi-process
// deployments need a shared backend.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	lastSweep time.Time

	maxEntries       int
	cleanupBatchSize int
	cleanupInterval  time.Duration

	now func() time.Time
}

// NewMemoryStore validates options and returns an empty store.
func NewMemoryStore(opts MemoryOptions) (*MemoryStore, error) {
	if opts.MaxEntries < 0 {
		return nil, fmt.Errorf("replay: MaxEntries must be positive, got %d", opts.MaxEntries)
	}
	if opts.CleanupBatchSize < 0 {
		return nil, fmt.Errorf("replay: CleanupBatchSize must be positive, got %d", opts.CleanupBatchSize)
	}
	if opts.CleanupInterval < 0 {
		return nil, fmt.Errorf("replay: CleanupInterval must be positive, got %s", opts.CleanupInterval)
	}
	s := &MemoryStore{
		entries:          make(map[string]time.Time),
		maxEntries:       opts.MaxEntries,
		cleanupBatchSize: opts.CleanupBatchSize,
		cleanupInterval:  opts.CleanupInterval,
		now:              time.Now,
	}
	if s.maxEntries == 0 {
		s.maxEntries = 10000
	}
	if s.cleanupBatchSize == 0 {
		s.cleanupBatchSize = 128
	}
	if s.cleanupInterval == 0 {
		s.cleanupInterval = 30 * time.Second
	}
	return s, nil
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key string, inFlightTTL time.Duration) (Status, error) {
	if inFlightTTL <= 0 {
		return Duplicate, fmt.Errorf("replay: in-flight TTL must be positive, got %s", inFlightTTL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if expires, ok := s.entries[key]; ok && expires.After(now) {
		return Duplicate, nil
	}
	s.entries[key] = now.Add(inFlightTTL)
	s.enforceCapLocked()
	return Reserved, nil
}

// Commit implements Store.
func (s *MemoryStore) Commit(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("replay: TTL must be positive, got %s", ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.now().Add(ttl)
	s.enforceCapLocked()
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len reports the current entry count, expired entries included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweepLocked removes up to cleanupBatchSize expired entries, at most once
// per cleanupInterval.
func (s *MemoryStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.cleanupInterval {
		return
	}
	s.lastSweep = now
	removed := 0
	for key, expires := range s.entries {
		if removed >= s.cleanupBatchSize {
			break
		}
		if !expires.After(now) {
			delete(s.entries, key)
			removed++
		}
	}
}

// enforceCapLocked evicts soonest-to-expire entries once the cap is exceeded.
func (s *MemoryStore) enforceCapLocked() {
	if len(s.entries) <= s.maxEntries {
		return
	}
	type entry struct {
		key     string
		expires time.Time
	}
	all := make([]entry, 0, len(s.entries))
	for key, expires := range s.entries {
		all = append(all, entry{key, expires})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].expires.Before(all[j].expires) })
	for i := 0; len(s.entries) > s.maxEntries && i < len(all); i++ {
		delete(s.entries, all[i].key)
	}
}
