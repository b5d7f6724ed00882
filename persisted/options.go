package persisted

import (
	"time"

	"github.com/grantsnap/statekit/clock"
	"github.com/grantsnap/statekit/logger"
	"github.com/grantsnap/statekit/observability"
	"github.com/grantsnap/statekit/validation"
)

const (
	// DefaultDebounce is the quiet period before a durable write.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultVersion is the schema version used when none is given.
	DefaultVersion = 1
	// DefaultWriteTimeout bounds a durable write started by the debounce timer.
	DefaultWriteTimeout = 5 * time.Second
)

// Options describes one persisted value.
type Options[T any] struct {
	// Key is the durable storage key. The marker is written to Key + ".timestamp".
	Key string `validate:"required"`
	// Debounce is the quiet period before a write. Zero means DefaultDebounce.
	Debounce time.Duration `validate:"gte=0"`
	// Version is the schema version. Entries with another version are ignored.
	// Zero means DefaultVersion.
	Version int `validate:"gte=0"`
	// OnConflict merges the local value with a newer durable one. Only
	// Reconcile invokes it.
	OnConflict func(local, durable T) T `validate:"-"`
}

func (o *Options[T]) applyDefaults() {
	if o.Debounce == 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Version == 0 {
		o.Version = DefaultVersion
	}
}

func (o *Options[T]) validate() error {
	return validation.Validate(o)
}

type settings struct {
	clock        clock.Clock
	log          *logger.Logger
	metrics      *observability.Metrics
	writeTimeout time.Duration
}

// Option configures the collaborators of a Store.
type Option func(*settings)

// WithClock sets the clock used for timestamps and the debounce timer.
func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithLogger sets the logger that receives persistence failures.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithMetrics sets the instruments used to count writes.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithWriteTimeout bounds writes and the construction-time read.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *settings) { s.writeTimeout = d }
}

func newSettings(opts []Option) settings {
	s := settings{writeTimeout: DefaultWriteTimeout}
	for _, opt := range opts {
		opt(&s)
	}
	s.clock = clock.OrReal(s.clock)
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = DefaultWriteTimeout
	}
	return s
}
