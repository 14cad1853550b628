package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation. It serves single
// instance deployments and tests; state does not survive a restart.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	lists map[string][]string

	// now is injectable for expiry tests.
	now func() time.Time
}

type memoryItem struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		lists: make(map[string][]string),
		now:   time.Now,
	}
}

// SetClock replaces the store's clock. Tests use this to control expiry.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns the value for key, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || s.expiredLocked(item) {
		delete(s.items, key)
		return "", ErrNotFound
	}
	return item.value, nil
}

// Set stores value under key with the given ttl.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = memoryItem{value: value, expiresAt: s.deadlineLocked(ttl)}
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	delete(s.lists, key)
	return nil
}

// Increment atomically increments the integer at key.
func (s *MemoryStore) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if item, ok := s.items[key]; ok && !s.expiredLocked(item) {
		parsed, err := strconv.ParseInt(item.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	s.items[key] = memoryItem{value: strconv.FormatInt(n, 10)}
	return n, nil
}

// Expire sets the remaining ttl of an existing key.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || s.expiredLocked(item) {
		return ErrNotFound
	}
	item.expiresAt = s.deadlineLocked(ttl)
	s.items[key] = item
	return nil
}

// PushHistory prepends value to the list at key and trims it to maxLen.
func (s *MemoryStore) PushHistory(_ context.Context, key, value string, maxLen int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]string{value}, s.lists[key]...)
	if int64(len(list)) > maxLen {
		list = list[:maxLen]
	}
	s.lists[key] = list
	return nil
}

// History returns up to limit entries, most recent first.
func (s *MemoryStore) History(_ context.Context, key string, limit int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	if int64(len(list)) > limit {
		list = list[:limit]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) expiredLocked(item memoryItem) bool {
	return !item.expiresAt.IsZero() && s.now().After(item.expiresAt)
}

func (s *MemoryStore) deadlineLocked(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}
