package app

import (
	"github.com/grantsnap/statekit/persisted"
)

// NewPersisted creates a persisted store over the durable backend. Zero
// Debounce and Version in opts take the app's persist defaults. The store
// is flushed and closed on Shutdown. Call it after Start so hydration sees
// the opened backend.
func NewPersisted[T any](a *App, initial T, opts persisted.Options[T]) (*persisted.Store[T], error) {
	if opts.Debounce == 0 {
		opts.Debounce = a.Cfg.Persist.Debounce
	}
	if opts.Version == 0 {
		opts.Version = a.Cfg.Persist.Version
	}
	store, err := persisted.New(a.durable, initial, opts,
		persisted.WithClock(a.Clock),
		persisted.WithLogger(a.Logger),
		persisted.WithMetrics(a.Metrics),
		persisted.WithWriteTimeout(a.Cfg.Persist.WriteTimeout),
	)
	if err != nil {
		return nil, err
	}
	a.track(store)
	return store, nil
}
