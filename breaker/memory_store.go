package breaker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-leadhooks/core"
)

type MemoryCounterStoreOptions struct {
	MaxEntries int
	Now        func() time.Time
}

// MemoryCounterStore is a single-process fixed window counter.
type MemoryCounterStore struct {
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]counterEntry
}

type counterEntry struct {
	count     int64
	startedAt time.Time
	window    time.Duration
}

func (e counterEntry) expired(now time.Time) bool {
	return now.Sub(e.startedAt) >= e.window
}

func NewMemoryCounterStore(opts MemoryCounterStoreOptions) *MemoryCounterStore {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 16384
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryCounterStore{
		maxEntries: maxEntries,
		now:        now,
		entries:    map[string]counterEntry{},
	}
}

func (s *MemoryCounterStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	key = strings.TrimSpace(key)
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists || entry.expired(now) {
		entry = counterEntry{startedAt: now, window: window}
	}
	entry.count++
	s.entries[key] = entry
	s.cleanup(now)
	return entry.count, nil
}

func (s *MemoryCounterStore) IsExpired(_ context.Context, key string) (bool, error) {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[strings.TrimSpace(key)]
	if !exists {
		return true, nil
	}
	return entry.expired(now), nil
}

func (s *MemoryCounterStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, strings.TrimSpace(key))
	return nil
}

func (s *MemoryCounterStore) cleanup(now time.Time) {
	if len(s.entries) <= s.maxEntries {
		return
	}
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
		}
		if len(s.entries) <= s.maxEntries {
			break
		}
	}
}

var _ core.CounterStore = (*MemoryCounterStore)(nil)
