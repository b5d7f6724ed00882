package app

import (
	"time"

	"github.com/grantsnap/statekit/clock"
	"github.com/grantsnap/statekit/kv"
	"github.com/grantsnap/statekit/logger"
)

// Option configures the App during creation.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	clock           clock.Clock
	sessionBacking  kv.Storage
	gracefulTimeout time.Duration
}

// WithLogger sets a custom logger. If not set, one is built from the
// config's logging section and installed as the global logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) { o.logger = l }
}

// WithClock sets the clock shared by every store and cache.
func WithClock(c clock.Clock) Option {
	return func(o *appOptions) { o.clock = c }
}

// WithSessionBacking sets the storage that holds session-scoped entries.
// The default is a fresh in-memory store, so component state lives as long
// as the process.
func WithSessionBacking(s kv.Storage) Option {
	return func(o *appOptions) { o.sessionBacking = s }
}

// WithGracefulTimeout sets the maximum duration for graceful shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) { o.gracefulTimeout = d }
}
