package kv

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Session is a Storage namespace that lives for one browsing session.
// Keys written through it are prefixed with the session ID and are all
// removed by End. Reloads within the session keep the same Session value.
type Session struct {
	backing Storage
	id      string

	mu      sync.Mutex
	written map[string]struct{}
}

// NewSession opens a new session over backing with a fresh random ID.
func NewSession(backing Storage) *Session {
	return ResumeSession(backing, uuid.NewString())
}

// ResumeSession reopens a session with a known ID.
func ResumeSession(backing Storage, id string) *Session {
	return &Session{
		backing: backing,
		id:      id,
		written: make(map[string]struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) fullKey(key string) string {
	return "session:" + s.id + ":" + key
}

// Get returns the value stored under key in this session.
func (s *Session) Get(ctx context.Context, key string) (string, bool, error) {
	return s.backing.Get(ctx, s.fullKey(key))
}

// Set stores value under key in this session.
func (s *Session) Set(ctx context.Context, key, value string) error {
	if err := s.backing.Set(ctx, s.fullKey(key), value); err != nil {
		return err
	}
	s.mu.Lock()
	s.written[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Remove deletes key from this session.
func (s *Session) Remove(ctx context.Context, key string) error {
	if err := s.backing.Remove(ctx, s.fullKey(key)); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.written, key)
	s.mu.Unlock()
	return nil
}

// End removes every key written through this session.
// It keeps going on failure and returns the first error.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.written))
	for k := range s.written {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	var firstErr error
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// compile-time interface check
var _ Storage = (*Session)(nil)
