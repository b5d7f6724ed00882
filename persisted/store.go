// Package persisted keeps a value in memory and mirrors it to durable
// key-value storage with a trailing-edge debounce.
//
// Reads never touch storage after construction. Writes are best effort:
// serialization and storage failures are logged and counted, and the
// in-memory value stays authoritative for the life of the Store.
package persisted

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/grantsnap/statekit/clock"
	"github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
	"github.com/grantsnap/statekit/logger"
	"github.com/grantsnap/statekit/observability"
)

// Store is a debounced, versioned persisted value.
type Store[T any] struct {
	storage    kv.Storage
	key        string
	debounce   time.Duration
	version    int
	onConflict func(local, durable T) T
	settings

	// writeMu serializes durable writes so a late timer write cannot land
	// after a ForceWrite that superseded it.
	writeMu sync.Mutex

	mu        sync.Mutex
	value     T
	timer     clock.Timer
	gen       uint64
	lastSaved time.Time
	closed    bool
}

// New creates a Store and hydrates it from storage. A missing, corrupt or
// differently versioned entry leaves the store holding initial.
func New[T any](storage kv.Storage, initial T, opts Options[T], options ...Option) (*Store[T], error) {
	if storage == nil {
		return nil, errors.MissingField("storage")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	s := &Store[T]{
		storage:    storage,
		key:        opts.Key,
		debounce:   opts.Debounce,
		version:    opts.Version,
		onConflict: opts.OnConflict,
		settings:   newSettings(options),
		value:      initial,
	}
	s.log = s.log.WithComponent("persisted").WithFields(logger.Fields(
		logger.FieldKey, s.key,
		logger.FieldVersion, s.version,
	))

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	entry, status, err := s.load(ctx)
	switch status {
	case kv.StatusOK:
		s.value = entry.Data
		s.lastSaved = entry.Time()
	case kv.StatusNotFound, kv.StatusVersionMismatch:
		s.log.Debug("no usable entry, using initial value", logger.Fields("status", status.String()))
	default:
		s.log.Warn("failed to hydrate, using initial value", logger.ErrorFields("hydrate", err))
	}
	return s, nil
}

// Key returns the durable key of the store.
func (s *Store[T]) Key() string { return s.key }

// Read returns the current in-memory value.
func (s *Store[T]) Read() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Update replaces the value and schedules a durable write once no further
// update arrives for the debounce period.
func (s *Store[T]) Update(next T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = next
	s.scheduleLocked()
}

// UpdateFunc applies fn to the current value. fn must not call back into s.
func (s *Store[T]) UpdateFunc(fn func(prev T) T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = fn(s.value)
	s.scheduleLocked()
}

func (s *Store[T]) scheduleLocked() {
	if s.closed {
		return
	}
	if s.timer != nil && s.timer.Stop() {
		s.metrics.RecordCoalesced(context.Background(), s.key)
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.flush(gen) })
}

// cancelLocked drops any pending write and invalidates a timer callback
// that may already be running.
func (s *Store[T]) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Store[T]) flush(gen uint64) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	v := s.value
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	s.write(ctx, v)
}

// ForceWrite cancels any pending debounced write and writes the current
// value before returning.
func (s *Store[T]) ForceWrite(ctx context.Context) {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
	s.writeCurrent(ctx)
}

// ForceWriteValue sets v as the current value, cancels any pending write
// and writes v before returning.
func (s *Store[T]) ForceWriteValue(ctx context.Context, v T) {
	s.mu.Lock()
	s.value = v
	s.cancelLocked()
	s.mu.Unlock()
	s.writeCurrent(ctx)
}

func (s *Store[T]) writeCurrent(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.write(ctx, s.Read())
}

// write stores the entry and its marker. Failures are logged, never returned.
func (s *Store[T]) write(ctx context.Context, v T) {
	ctx, span := observability.StartSpan(ctx, observability.SpanPersistWrite)
	defer span.End()

	now := s.clock.Now()
	payload, err := json.Marshal(Entry[T]{Data: v, Timestamp: now.UnixMilli(), Version: s.version})
	if err != nil {
		err = errors.Serialization(s.key, err)
		s.fail(ctx, span, "serialize", err)
		return
	}
	if err := s.storage.Set(ctx, s.key, string(payload)); err != nil {
		s.fail(ctx, span, "write", err)
		return
	}
	if err := s.storage.Set(ctx, MarkerKey(s.key), FormatMarker(now)); err != nil {
		s.fail(ctx, span, "write_marker", err)
		return
	}

	s.mu.Lock()
	s.lastSaved = now
	s.mu.Unlock()
	s.metrics.RecordPersistWrite(ctx, s.key, nil)
	s.log.Debug("entry written", logger.Fields("bytes", len(payload)))
}

func (s *Store[T]) fail(ctx context.Context, span trace.Span, op string, err error) {
	observability.SetSpanError(span, err)
	s.metrics.RecordPersistWrite(ctx, s.key, err)
	s.log.Warn("persist failed, keeping in-memory value", logger.ErrorFields(op, err))
}

// LoadFromDurable reads the entry directly from storage, ignoring the
// in-memory value. Non-OK statuses mean there is no usable entry.
func (s *Store[T]) LoadFromDurable(ctx context.Context) kv.Lookup[T] {
	entry, status, err := s.load(ctx)
	if status != kv.StatusOK {
		return kv.Miss[T](status, err)
	}
	return kv.Found(entry.Data)
}

func (s *Store[T]) load(ctx context.Context) (Entry[T], kv.Status, error) {
	var entry Entry[T]
	raw, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return entry, kv.StatusStorageError, err
	}
	if !ok {
		return entry, kv.StatusNotFound, errors.NotFound("entry", s.key)
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		return entry, kv.StatusCorrupt, errors.Serialization(s.key, err)
	}
	if *env.Version != s.version {
		return entry, kv.StatusVersionMismatch, errors.VersionMismatch(s.key, s.version, *env.Version)
	}
	if err := env.decode(&entry.Data); err != nil {
		return entry, kv.StatusCorrupt, errors.Serialization(s.key, err)
	}
	entry.Timestamp = env.Timestamp
	entry.Version = *env.Version
	return entry, kv.StatusOK, nil
}

// Clear cancels any pending write and removes the entry and its marker.
// Both removals are attempted; the first failure is returned.
func (s *Store[T]) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	errEntry := s.storage.Remove(ctx, s.key)
	errMarker := s.storage.Remove(ctx, MarkerKey(s.key))
	if errEntry != nil {
		s.log.Warn("clear failed", logger.ErrorFields("remove", errEntry))
		return errEntry
	}
	if errMarker != nil {
		s.log.Warn("clear failed", logger.ErrorFields("remove_marker", errMarker))
		return errMarker
	}

	s.mu.Lock()
	s.lastSaved = time.Time{}
	s.mu.Unlock()
	return nil
}

// Reconcile compares the in-memory value with the durable entry. When the
// durable entry was written after this store's last write and holds
// different data, OnConflict merges the two and the result is adopted and
// scheduled for writing. It reports whether a merge happened.
//
// Reconcile is never called automatically.
func (s *Store[T]) Reconcile(ctx context.Context) bool {
	if s.onConflict == nil {
		return false
	}
	durable, status, _ := s.load(ctx)
	if status != kv.StatusOK {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if durable.Timestamp <= s.lastSaved.UnixMilli() {
		return false
	}
	if sameJSON(s.value, durable.Data) {
		return false
	}
	s.log.Info("durable entry changed elsewhere, merging", logger.Fields(
		"durable_timestamp", durable.Timestamp,
		"last_saved", s.lastSaved.UnixMilli(),
	))
	s.value = s.onConflict(s.value, durable.Data)
	s.lastSaved = durable.Time()
	s.scheduleLocked()
	return true
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// LastSaved returns the time of the last successful write, or of the
// hydrated entry. It is zero if neither happened.
func (s *Store[T]) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// Pending reports whether a debounced write is scheduled.
func (s *Store[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Close cancels any pending write without performing it. Later updates
// change only the in-memory value.
func (s *Store[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.closed = true
}
