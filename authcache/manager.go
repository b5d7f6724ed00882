// Package authcache caches the provider's current session so that readers
// do not re-query it on every focus or mount.
//
// A Manager is created once per composition root and shared by all
// readers. It registers a single provider listener, stamps every update
// with the current time and fans it out to subscribers synchronously.
// Provider failures are cached as a signed-out entry instead of being
// returned.
package authcache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/grantsnap/statekit/clock"
	"github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
	"github.com/grantsnap/statekit/logger"
	"github.com/grantsnap/statekit/observability"
)

// DefaultTTL is how long a cached entry is served without re-querying.
const DefaultTTL = 300 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for stamping and freshness.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the manager logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithTracer sets the tracer used for provider queries.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithMetrics sets the query and update counters.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// Manager caches the provider's current session.
type Manager struct {
	provider Provider
	clock    clock.Clock
	log      *logger.Logger
	ttl      time.Duration
	tracer   trace.Tracer
	metrics  *observability.Metrics

	mu          sync.Mutex
	entry       *Entry
	seq         uint64
	initialized bool
	inflight    chan struct{}
	listeners   map[string]Listener
}

// New creates a Manager and registers its change listener with provider.
func New(provider Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:  provider,
		ttl:       DefaultTTL,
		listeners: make(map[string]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.clock = clock.OrReal(m.clock)
	if m.log == nil {
		m.log = logger.Nop()
	}
	m.log = m.log.WithComponent("authcache")
	if m.tracer == nil {
		m.tracer = observability.Tracer("github.com/grantsnap/statekit/authcache")
	}

	provider.OnChange(m.handleChange)
	return m
}

// TTL returns the freshness window.
func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) handleChange(event Event, session *Session) {
	m.log.Debug("auth state changed", logger.Fields(logger.FieldEvent, string(event)))
	m.updateCache(event, session)
}

// updateCache stamps a new entry and notifies every subscriber before
// returning. Listeners are called outside the lock on a snapshot of the
// subscriber set, so they may subscribe or unsubscribe freely.
func (m *Manager) updateCache(event Event, session *Session) Entry {
	entry := Entry{Session: session, Timestamp: m.clock.Now(), IsValid: true}
	if session != nil {
		entry.Identity = session.Identity
	}

	m.mu.Lock()
	m.entry = &entry
	m.seq++
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	m.metrics.RecordAuthUpdate(context.Background(), string(event))
	for _, l := range listeners {
		l(entry)
	}
	return entry
}

// CachedAuth returns the cached entry while it is younger than the TTL,
// otherwise nil.
func (m *Manager) CachedAuth() *Entry {
	res := m.Lookup()
	if !res.OK() {
		return nil
	}
	return &res.Value
}

// Lookup returns the cached entry tagged with its freshness.
func (m *Manager) Lookup() kv.Lookup[Entry] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil {
		return kv.Miss[Entry](kv.StatusNotFound, errors.NotFound("auth entry", ""))
	}
	if m.entry.Age(m.clock.Now()) >= m.ttl {
		return kv.Lookup[Entry]{Value: *m.entry, Status: kv.StatusStale, Err: errors.Stale("auth entry")}
	}
	return kv.Found(*m.entry)
}

// Initialized reports whether Initialize has completed.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Subscribe registers fn for every cache update and returns a function
// that removes it. Calling the returned function more than once is safe.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	id := uuid.NewString()
	m.mu.Lock()
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Initialize queries the provider once and caches the answer. Later calls
// return the cached entry without querying again. Concurrent callers share
// a single query. The provider error, if any, is logged and cached as a
// signed-out entry; the only error returned is ctx's, when ctx ends while
// waiting for another caller's query.
func (m *Manager) Initialize(ctx context.Context) (Entry, error) {
	return m.query(ctx, EventInitialSession, true)
}

// Refresh queries the provider again regardless of the cached entry,
// sharing a query that is already in flight.
func (m *Manager) Refresh(ctx context.Context) (Entry, error) {
	return m.query(ctx, EventTokenRefreshed, false)
}

// query starts a provider query or joins the one in flight. With
// useCached, an initialized entry is returned instead; the check shares
// the critical section that claims the in-flight slot.
func (m *Manager) query(ctx context.Context, event Event, useCached bool) (Entry, error) {
	m.mu.Lock()
	if useCached && m.initialized && m.entry != nil {
		e := *m.entry
		m.mu.Unlock()
		return e, nil
	}
	if ch := m.inflight; ch != nil {
		m.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		return *m.entry, nil
	}
	ch := make(chan struct{})
	m.inflight = ch
	startSeq := m.seq
	m.mu.Unlock()

	entry := m.fetch(ctx, event, startSeq)

	m.mu.Lock()
	m.initialized = true
	m.inflight = nil
	m.mu.Unlock()
	close(ch)
	return entry, nil
}

// fetch runs the provider query. The query is not tied to ctx's
// cancellation so that callers sharing it all receive an answer.
func (m *Manager) fetch(ctx context.Context, event Event, startSeq uint64) Entry {
	ctx, span := m.tracer.Start(context.WithoutCancel(ctx), observability.SpanAuthInitialize)
	defer span.End()

	start := m.clock.Now()
	session, err := m.provider.CurrentSession(ctx)
	elapsed := m.clock.Now().Sub(start)

	status := "ok"
	if err != nil {
		status = "error"
		session = nil
		err = errors.Provider("current_session", err)
		observability.SetSpanError(span, err)
		m.log.Warn("provider query failed, caching signed-out entry", logger.ErrorFields("current_session", err))
	}
	m.metrics.RecordAuthQuery(ctx, status, elapsed)
	span.SetAttributes(
		attribute.String(observability.AttrStatus, status),
		attribute.Bool("statekit.signed_in", session != nil && session.Identity != nil),
	)

	// A provider event that landed while the query was running is newer
	// than the query's answer.
	m.mu.Lock()
	if m.seq != startSeq && m.entry != nil {
		e := *m.entry
		m.mu.Unlock()
		m.log.Debug("provider event superseded query result")
		return e
	}
	m.mu.Unlock()

	return m.updateCache(event, session)
}
