package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store shares limit windows between Governors, typically in
// different processes that use the same token.
type Store interface {
	// SetReset extends the window for the key to resetAt.  An
	// earlier resetAt than the stored one must not shorten it.
	SetReset(ctx context.Context, key string, resetAt time.Time) error

	// Reset returns the stored window for the key, or the zero
	// time if there is none.
	Reset(ctx context.Context, key string) (time.Time, error)
}

// MemoryStore is an in-process Store.  It's mostly useful for tests
// and for several Governors within one process.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]time.Time),
	}
}

func (s *MemoryStore) SetReset(ctx context.Context, key string, resetAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resetAt.After(s.windows[key]) {
		s.windows[key] = resetAt
	}
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, have := s.windows[key]
	if !have {
		return time.Time{}, nil
	}
	if !at.After(time.Now()) {
		// Expire on read.
		delete(s.windows, key)
		return time.Time{}, nil
	}
	return at, nil
}
