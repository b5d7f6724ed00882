// Package ephemeral keeps per-component UI state in session storage so it
// survives a component being torn down and rebuilt within one session.
//
// A Handle restores its state when attached and persists it once when
// detached. Stored entries older than the handle's max age are discarded on
// the next attach.
package ephemeral

import (
	"context"
	"encoding/json"
	"time"

	"github.com/grantsnap/statekit/clock"
	"github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
	"github.com/grantsnap/statekit/logger"
	"github.com/grantsnap/statekit/observability"
)

const (
	// DefaultMaxAge is how long a detached component's state stays restorable.
	DefaultMaxAge = 300 * time.Second
	// DefaultKeyPrefix namespaces component entries in session storage.
	DefaultKeyPrefix = "component_"
)

// Entry is the record stored for a detached component.
type Entry[T any] struct {
	Data        T      `json:"data"`
	Timestamp   int64  `json:"timestamp"`
	ComponentID string `json:"componentId"`
}

// Cache holds the collaborators shared by every attached component.
type Cache struct {
	storage kv.Storage
	prefix  string
	maxAge  time.Duration
	clock   clock.Clock
	log     *logger.Logger
	metrics *observability.Metrics
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock sets the clock used for timestamps and expiry.
func WithClock(c clock.Clock) CacheOption {
	return func(cc *Cache) { cc.clock = c }
}

// WithLogger sets the cache logger.
func WithLogger(l *logger.Logger) CacheOption {
	return func(cc *Cache) { cc.log = l }
}

// WithMetrics sets the restore and expiry counters.
func WithMetrics(m *observability.Metrics) CacheOption {
	return func(cc *Cache) { cc.metrics = m }
}

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) CacheOption {
	return func(cc *Cache) { cc.prefix = prefix }
}

// WithDefaultMaxAge replaces DefaultMaxAge for handles attached without
// WithMaxAge. Non-positive values are ignored.
func WithDefaultMaxAge(d time.Duration) CacheOption {
	return func(cc *Cache) {
		if d > 0 {
			cc.maxAge = d
		}
	}
}

// NewCache creates a Cache over session storage.
func NewCache(storage kv.Storage, opts ...CacheOption) *Cache {
	c := &Cache{storage: storage, prefix: DefaultKeyPrefix, maxAge: DefaultMaxAge}
	for _, opt := range opts {
		opt(c)
	}
	c.clock = clock.OrReal(c.clock)
	if c.log == nil {
		c.log = logger.Nop()
	}
	c.log = c.log.WithComponent("ephemeral")
	return c
}

// MaxAge returns the max age applied to handles attached without WithMaxAge.
func (c *Cache) MaxAge() time.Duration { return c.maxAge }

// Key returns the storage key used for componentID.
func (c *Cache) Key(componentID string) string { return c.prefix + componentID }

// Purge removes any stored state for componentID.
func (c *Cache) Purge(ctx context.Context, componentID string) error {
	if err := c.storage.Remove(ctx, c.Key(componentID)); err != nil {
		c.log.Warn("purge failed", logger.Fields(
			logger.FieldComponentID, componentID,
			logger.FieldError, err.Error(),
		))
		return err
	}
	return nil
}

// restore reads the entry for componentID. Expired entries are removed.
// Absent, corrupt and unreadable entries all report ok=false.
func restore[T any](ctx context.Context, c *Cache, componentID string, maxAge time.Duration) (T, bool) {
	var zero T
	key := c.Key(componentID)
	log := c.log.WithFields(logger.Fields(logger.FieldComponentID, componentID))

	raw, ok, err := c.storage.Get(ctx, key)
	if err != nil {
		log.Warn("restore failed", logger.ErrorFields("get", err))
		return zero, false
	}
	if !ok {
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Warn("discarding unreadable state", logger.ErrorFields("decode", errors.Serialization(key, err)))
		return zero, false
	}

	age := c.clock.Now().Sub(time.UnixMilli(entry.Timestamp))
	if age >= maxAge {
		log.Debug("stored state expired", logger.Fields(logger.FieldAgeMs, age.Milliseconds()))
		c.metrics.RecordEphemeralExpired(ctx, componentID)
		if err := c.storage.Remove(ctx, key); err != nil {
			log.Warn("failed to remove expired state", logger.ErrorFields("remove", err))
		}
		return zero, false
	}

	c.metrics.RecordEphemeralRestore(ctx, componentID)
	log.Debug("state restored", logger.Fields(logger.FieldAgeMs, age.Milliseconds()))
	return entry.Data, true
}

func persist[T any](ctx context.Context, c *Cache, componentID string, v T) {
	key := c.Key(componentID)
	payload, err := json.Marshal(Entry[T]{
		Data:        v,
		Timestamp:   c.clock.Now().UnixMilli(),
		ComponentID: componentID,
	})
	if err == nil {
		err = c.storage.Set(ctx, key, string(payload))
	} else {
		err = errors.Serialization(key, err)
	}
	if err != nil {
		c.log.Warn("persist on detach failed", logger.Fields(
			logger.FieldComponentID, componentID,
			logger.FieldError, err.Error(),
		))
	}
}
