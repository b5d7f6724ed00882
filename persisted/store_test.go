package persisted

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/grantsnap/statekit/clock"
	"github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
)

type draft struct {
	Title  string `json:"title"`
	Amount int    `json:"amount"`
}

// recordingStorage counts writes per key on top of a Memory store.
type recordingStorage struct {
	*kv.Memory
	mu     sync.Mutex
	writes map[string][]string
	failOn string
}

func newRecordingStorage() *recordingStorage {
	return &recordingStorage{Memory: kv.NewMemory(), writes: map[string][]string{}}
}

func (r *recordingStorage) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	fail := r.failOn != "" && r.failOn == key
	r.mu.Unlock()
	if fail {
		return errors.StorageWrite("test", key, stderrors.New("disk full"))
	}
	r.mu.Lock()
	r.writes[key] = append(r.writes[key], value)
	r.mu.Unlock()
	return r.Memory.Set(ctx, key, value)
}

func (r *recordingStorage) writeCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes[key])
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, storage kv.Storage, fc *clock.Fake, opts Options[draft]) *Store[draft] {
	t.Helper()
	s, err := New(storage, draft{Title: "initial"}, opts, WithClock(fc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func mustGet(t *testing.T, storage kv.Storage, key string) (string, bool) {
	t.Helper()
	v, ok, err := storage.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	return v, ok
}

func TestNew_ValidatesOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options[draft]
	}{
		{"missing key", Options[draft]{}},
		{"negative debounce", Options[draft]{Key: "k", Debounce: -time.Second}},
		{"negative version", Options[draft]{Key: "k", Version: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(kv.NewMemory(), draft{}, tt.opts)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.IsCode(err, errors.ErrCodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestNew_NilStorage(t *testing.T) {
	if _, err := New[draft](nil, draft{}, Options[draft]{Key: "k"}); err == nil {
		t.Fatal("expected error for nil storage")
	}
}

func TestUpdate_DebounceCoalescing(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := newRecordingStorage()
	s := newTestStore(t, storage, fc, Options[draft]{Key: "draft", Debounce: 500 * time.Millisecond})

	for i := 1; i <= 5; i++ {
		s.Update(draft{Title: "t", Amount: i})
		fc.Advance(499 * time.Millisecond)
	}
	if n := storage.writeCount("draft"); n != 0 {
		t.Fatalf("expected no writes inside the window, got %d", n)
	}
	if got := s.Read().Amount; got != 5 {
		t.Errorf("in-memory value = %d, want 5", got)
	}
	if !s.Pending() {
		t.Error("expected a pending write")
	}

	fc.Advance(time.Millisecond)

	if n := storage.writeCount("draft"); n != 1 {
		t.Fatalf("expected exactly 1 write, got %d", n)
	}
	var entry Entry[draft]
	raw, _ := mustGet(t, storage, "draft")
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Data.Amount != 5 {
		t.Errorf("written amount = %d, want 5", entry.Data.Amount)
	}
	if entry.Version != 1 {
		t.Errorf("written version = %d, want 1", entry.Version)
	}
	if entry.Timestamp != fc.Now().UnixMilli() {
		t.Errorf("timestamp = %d, want %d", entry.Timestamp, fc.Now().UnixMilli())
	}
	if s.Pending() {
		t.Error("expected no pending write after flush")
	}
}

func TestUpdateFunc(t *testing.T) {
	fc := clock.NewFake(epoch)
	s := newTestStore(t, kv.NewMemory(), fc, Options[draft]{Key: "draft"})

	s.UpdateFunc(func(prev draft) draft {
		prev.Amount += 10
		return prev
	})
	s.UpdateFunc(func(prev draft) draft {
		prev.Amount *= 2
		return prev
	})
	if got := s.Read(); got.Amount != 20 || got.Title != "initial" {
		t.Errorf("Read() = %+v", got)
	}
}

func TestWrite_AlsoWritesMarker(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	s := newTestStore(t, storage, fc, Options[draft]{Key: "draft"})

	s.Update(draft{Title: "x"})
	fc.Advance(DefaultDebounce)

	raw, ok := mustGet(t, storage, MarkerKey("draft"))
	if !ok {
		t.Fatal("marker missing")
	}
	ts, err := ParseMarker(raw)
	if err != nil {
		t.Fatalf("ParseMarker: %v", err)
	}
	if !ts.Equal(fc.Now()) {
		t.Errorf("marker = %v, want %v", ts, fc.Now())
	}
	if !s.LastSaved().Equal(fc.Now()) {
		t.Errorf("LastSaved = %v, want %v", s.LastSaved(), fc.Now())
	}
}

func TestVersionIsolation(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	ctx := context.Background()

	v1 := newTestStore(t, storage, fc, Options[draft]{Key: "draft", Version: 1})
	v1.ForceWriteValue(ctx, draft{Title: "old schema", Amount: 3})

	v2, err := New(storage, draft{Title: "fresh"}, Options[draft]{Key: "draft", Version: 2}, WithClock(fc))
	if err != nil {
		t.Fatalf("New v2: %v", err)
	}
	if got := v2.Read(); got.Title != "fresh" {
		t.Errorf("v2 Read() = %+v, want initial value", got)
	}
	res := v2.LoadFromDurable(ctx)
	if res.Status != kv.StatusVersionMismatch {
		t.Errorf("LoadFromDurable status = %v, want version_mismatch", res.Status)
	}
	if got := res.OrElse(draft{Title: "fallback"}); got.Title != "fallback" {
		t.Errorf("OrElse = %+v", got)
	}
}

func TestHydrate_MatchingVersion(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()

	first := newTestStore(t, storage, fc, Options[draft]{Key: "draft", Version: 3})
	first.ForceWriteValue(context.Background(), draft{Title: "saved", Amount: 7})
	fc.Advance(time.Minute)

	second := newTestStore(t, storage, fc, Options[draft]{Key: "draft", Version: 3})
	if got := second.Read(); got.Title != "saved" || got.Amount != 7 {
		t.Errorf("Read() = %+v, want hydrated value", got)
	}
	if !second.LastSaved().Equal(epoch) {
		t.Errorf("LastSaved = %v, want %v", second.LastSaved(), epoch)
	}
}

func TestForceWritePrecedence(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := newRecordingStorage()
	s := newTestStore(t, storage, fc, Options[draft]{Key: "draft"})
	ctx := context.Background()

	s.Update(draft{Title: "v2"})
	s.ForceWriteValue(ctx, draft{Title: "v"})

	if n := storage.writeCount("draft"); n != 1 {
		t.Fatalf("expected 1 write after ForceWriteValue, got %d", n)
	}
	if fc.Pending() != 0 {
		t.Errorf("expected the debounce timer to be cancelled, %d pending", fc.Pending())
	}

	fc.Advance(10 * time.Second)

	if n := storage.writeCount("draft"); n != 1 {
		t.Fatalf("pending timer overwrote the forced value: %d writes", n)
	}
	got := s.LoadFromDurable(ctx)
	if !got.OK() || got.Value.Title != "v" {
		t.Errorf("durable value = %+v (%v), want v", got.Value, got.Status)
	}
	if s.Read().Title != "v" {
		t.Errorf("in-memory value = %q, want v", s.Read().Title)
	}
}

func TestForceWrite_CurrentValue(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := newRecordingStorage()
	s := newTestStore(t, storage, fc, Options[draft]{Key: "draft"})

	s.Update(draft{Title: "latest"})
	s.ForceWrite(context.Background())

	if storage.writeCount("draft") != 1 || s.Pending() {
		t.Fatalf("writes=%d pending=%v", storage.writeCount("draft"), s.Pending())
	}
}

func TestClear_RemovesBothKeys(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	s := newTestStore(t, storage, fc, Options[draft]{Key: "draft"})
	ctx := context.Background()

	s.ForceWriteValue(ctx, draft{Title: "x"})
	s.Update(draft{Title: "y"})

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	fc.Advance(time.Minute)

	if _, ok := mustGet(t, storage, "draft"); ok {
		t.Error("entry still present after Clear")
	}
	if _, ok := mustGet(t, storage, "draft.timestamp"); ok {
		t.Error("marker still present after Clear")
	}
	if !s.LastSaved().IsZero() {
		t.Error("LastSaved should reset after Clear")
	}
	if s.Read().Title != "y" {
		t.Error("Clear must not change the in-memory value")
	}
}

func TestWriteFailure_KeepsMemoryValue(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := newRecordingStorage()
	storage.failOn = "draft"
	s := newTestStore(t, storage, fc, Options[draft]{Key: "draft"})

	s.Update(draft{Title: "unsaved"})
	fc.Advance(DefaultDebounce)

	if s.Read().Title != "unsaved" {
		t.Errorf("Read() = %q, want unsaved", s.Read().Title)
	}
	if !s.LastSaved().IsZero() {
		t.Error("LastSaved must not move on a failed write")
	}
	if _, ok := mustGet(t, storage, MarkerKey("draft")); ok {
		t.Error("marker must not be written when the entry write fails")
	}
}

func TestQuotaExceeded_IsBestEffort(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory(kv.WithQuota(16))
	s := newTestStore(t, storage, fc, Options[draft]{Key: "draft"})

	s.ForceWriteValue(context.Background(), draft{Title: "far too long for the quota"})
	if s.Read().Title != "far too long for the quota" {
		t.Error("in-memory value lost after quota failure")
	}
	if storage.Len() != 0 {
		t.Errorf("expected nothing stored, got %d keys", storage.Len())
	}
}

func TestLoadFromDurable_Statuses(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		raw  string
		want kv.Status
	}{
		{"absent", "", kv.StatusNotFound},
		{"malformed json", "{not json", kv.StatusCorrupt},
		{"missing version", `{"data":{"title":"a"},"timestamp":1}`, kv.StatusCorrupt},
		{"incompatible data", `{"data":"a string","timestamp":1,"version":1}`, kv.StatusCorrupt},
		{"other version with other shape", `{"data":"a string","timestamp":1,"version":9}`, kv.StatusVersionMismatch},
		{"ok", `{"data":{"title":"a","amount":2},"timestamp":1,"version":1}`, kv.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := kv.NewMemory()
			if tt.raw != "" {
				_ = storage.Set(ctx, "draft", tt.raw)
			}
			s := newTestStore(t, storage, clock.NewFake(epoch), Options[draft]{Key: "draft"})
			if got := s.LoadFromDurable(ctx).Status; got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
			if tt.want != kv.StatusOK && s.Read().Title != "initial" {
				t.Errorf("expected fallback to initial value, got %+v", s.Read())
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	ctx := context.Background()
	merge := func(local, durable draft) draft {
		return draft{Title: durable.Title, Amount: local.Amount + durable.Amount}
	}

	a := newTestStore(t, storage, fc, Options[draft]{Key: "draft", OnConflict: merge})
	a.ForceWriteValue(ctx, draft{Title: "a", Amount: 1})

	if a.Reconcile(ctx) {
		t.Fatal("no conflict expected against our own write")
	}

	fc.Advance(time.Second)
	b := newTestStore(t, storage, fc, Options[draft]{Key: "draft"})
	b.ForceWriteValue(ctx, draft{Title: "b", Amount: 5})

	if !a.Reconcile(ctx) {
		t.Fatal("expected Reconcile to merge a newer durable entry")
	}
	if got := a.Read(); got.Title != "b" || got.Amount != 6 {
		t.Errorf("merged value = %+v, want {b 6}", got)
	}
	if !a.Pending() {
		t.Error("merged value should be scheduled for writing")
	}
	if a.Reconcile(ctx) {
		t.Error("second Reconcile should be a no-op")
	}
}

func TestReconcile_WithoutHandler(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	ctx := context.Background()

	a := newTestStore(t, storage, fc, Options[draft]{Key: "draft"})
	fc.Advance(time.Second)
	b := newTestStore(t, storage, fc, Options[draft]{Key: "draft"})
	b.ForceWriteValue(ctx, draft{Title: "b"})

	if a.Reconcile(ctx) {
		t.Error("Reconcile without OnConflict must not merge")
	}
}

func TestClose_DropsPendingWrite(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := newRecordingStorage()
	s := newTestStore(t, storage, fc, Options[draft]{Key: "draft"})

	s.Update(draft{Title: "never written"})
	s.Close()
	fc.Advance(time.Minute)
	s.Update(draft{Title: "after close"})
	fc.Advance(time.Minute)

	if n := storage.writeCount("draft"); n != 0 {
		t.Errorf("expected no writes after Close, got %d", n)
	}
	if s.Read().Title != "after close" {
		t.Errorf("Read() = %q", s.Read().Title)
	}
}

func TestRealClock_Flushes(t *testing.T) {
	storage := newRecordingStorage()
	s, err := New(storage, 0, Options[int]{Key: "counter", Debounce: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	s.Update(1)
	s.Update(2)

	deadline := time.Now().Add(2 * time.Second)
	for storage.writeCount("counter") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("debounced write never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.LoadFromDurable(context.Background()); got.Value != 2 {
		t.Errorf("durable value = %d, want 2", got.Value)
	}
}
