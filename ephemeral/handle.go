package ephemeral

import (
	"context"
	"sync"
	"time"
)

type attachOptions struct {
	persistOnDetach bool
	restoreOnAttach bool
	maxAge          time.Duration
}

// Option configures a single Attach call.
type Option func(*attachOptions)

// WithoutPersistOnDetach skips writing the state when the handle is detached.
func WithoutPersistOnDetach() Option {
	return func(o *attachOptions) { o.persistOnDetach = false }
}

// WithoutRestore ignores any stored state and starts from the initial value.
func WithoutRestore() Option {
	return func(o *attachOptions) { o.restoreOnAttach = false }
}

// WithMaxAge sets how old a stored entry may be and still be restored.
// Non-positive values keep the cache default.
func WithMaxAge(d time.Duration) Option {
	return func(o *attachOptions) {
		if d > 0 {
			o.maxAge = d
		}
	}
}

// Handle is the live state of one attached component.
type Handle[T any] struct {
	cache    *Cache
	id       string
	opts     attachOptions
	restored bool

	mu       sync.Mutex
	value    T
	attached bool
}

// Attach binds componentID to a Handle, restoring stored state when it is
// present and younger than the max age.
func Attach[T any](ctx context.Context, cache *Cache, componentID string, initial T, opts ...Option) *Handle[T] {
	o := attachOptions{persistOnDetach: true, restoreOnAttach: true, maxAge: cache.maxAge}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Handle[T]{cache: cache, id: componentID, opts: o, value: initial, attached: true}
	if o.restoreOnAttach {
		if v, ok := restore[T](ctx, cache, componentID, o.maxAge); ok {
			h.value = v
			h.restored = true
		}
	}
	return h
}

// ID returns the component ID.
func (h *Handle[T]) ID() string { return h.id }

// Restored reports whether the initial state came from storage.
func (h *Handle[T]) Restored() bool { return h.restored }

// Value returns the current state.
func (h *Handle[T]) Value() T {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

// Set replaces the current state. It does not touch storage.
func (h *Handle[T]) Set(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = v
}

// SetFunc applies fn to the current state. fn must not call back into h.
func (h *Handle[T]) SetFunc(fn func(prev T) T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = fn(h.value)
}

// Attached reports whether Detach has not run yet.
func (h *Handle[T]) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached
}

// Detach tears the handle down, persisting the current state with a fresh
// timestamp unless persistence was disabled. Only the first call has any
// effect.
func (h *Handle[T]) Detach(ctx context.Context) {
	h.mu.Lock()
	if !h.attached {
		h.mu.Unlock()
		return
	}
	h.attached = false
	v := h.value
	h.mu.Unlock()

	if h.opts.persistOnDetach {
		persist(ctx, h.cache, h.id, v)
	}
}
