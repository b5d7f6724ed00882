package authcache

import (
	"context"
	"sync"
)

// State is a reader's view of the auth cache.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateValid
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Watcher tracks the auth state for one reader. It moves from
// StateUninitialized through StateLoading to StateValid (identity present)
// or StateInvalid (signed out or provider failure). Provider events move
// it between StateValid and StateInvalid directly.
type Watcher struct {
	m           *Manager
	unsubscribe func()

	mu    sync.Mutex
	state State
	user  *Identity
}

// Watch creates a Watcher subscribed to m.
func Watch(m *Manager) *Watcher {
	w := &Watcher{m: m}
	w.unsubscribe = m.Subscribe(w.apply)
	return w
}

// Start resolves the initial state. A fresh cached entry is used as is and
// skips StateLoading. Otherwise the provider is queried, through Initialize
// the first time and Refresh once the cache has gone cold. It returns an
// error only when ctx ends while waiting on a shared query.
func (w *Watcher) Start(ctx context.Context) error {
	if e := w.m.CachedAuth(); e != nil {
		w.apply(*e)
		return nil
	}

	w.mu.Lock()
	if w.state == StateUninitialized {
		w.state = StateLoading
	}
	w.mu.Unlock()

	var (
		e   Entry
		err error
	)
	if w.m.Initialized() {
		e, err = w.m.Refresh(ctx)
	} else {
		e, err = w.m.Initialize(ctx)
	}
	if err != nil {
		return err
	}
	w.apply(e)
	return nil
}

func (w *Watcher) apply(e Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.user = e.Identity
	if e.Identity != nil {
		w.state = StateValid
	} else {
		w.state = StateInvalid
	}
}

// State returns the current state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// User returns the current identity, or nil.
func (w *Watcher) User() *Identity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.user
}

// Loading reports whether the state has not been resolved yet.
func (w *Watcher) Loading() bool {
	s := w.State()
	return s == StateUninitialized || s == StateLoading
}

// Stop unsubscribes the watcher from the manager.
func (w *Watcher) Stop() { w.unsubscribe() }
