package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/backend/internal/application/publishing"
	"github.com/postpilot/backend/internal/domain/social"
)

// entry is a recorded enqueue with its expiry
type entry struct {
	entryID   uuid.UUID
	expiresAt time.Time
}

// InMemoryIdempotencyStore maps (post, platform) pairs to queue entries in
// process memory. Suitable for single-instance deployments and testing.
type InMemoryIdempotencyStore struct {
	mu        sync.RWMutex
	entries   map[string]entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyStore creates an in-memory idempotency store and
// starts a background goroutine that evicts expired entries.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		entries:  make(map[string]entry),
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

func key(postID uuid.UUID, platform social.Platform) string {
	return postID.String() + ":" + platform.String()
}

// Get returns the entry recorded for the pair, if any
func (s *InMemoryIdempotencyStore) Get(_ context.Context, postID uuid.UUID, platform social.Platform) (uuid.UUID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[key(postID, platform)]
	if !exists || time.Now().After(e.expiresAt) {
		return uuid.Nil, false, nil
	}
	return e.entryID, true, nil
}

// Set records the entry for the pair. The first writer wins when two
// enqueues race; expired entries are overwritten.
func (s *InMemoryIdempotencyStore) Set(_ context.Context, postID uuid.UUID, platform social.Platform, entryID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(postID, platform)
	if e, exists := s.entries[k]; exists && time.Now().Before(e.expiresAt) {
		return nil
	}
	s.entries[k] = entry{
		entryID:   entryID,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryIdempotencyStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryIdempotencyStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// Size returns the number of live entries (for testing/monitoring)
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ publishing.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
