package sqlstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/grantsnap/statekit/clock"
	"github.com/grantsnap/statekit/component"
	"github.com/grantsnap/statekit/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := Config{
		Enabled:  true,
		DSN:      fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		LogLevel: "silent",
	}
	s, err := Open(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SetGetOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "profile", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "profile", "v2"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, ok, err := s.Get(ctx, "profile")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if got != "v2" {
		t.Errorf("expected v2, got %q", got)
	}
}

func TestStore_SetStampsWithClock(t *testing.T) {
	epoch := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFake(epoch)
	cfg := Config{
		Enabled:  true,
		DSN:      fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		LogLevel: "silent",
	}
	s, err := Open(context.Background(), cfg, logger.Nop(), WithClock(fc))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if err := s.Set(ctx, "draft", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	var e Entry
	if err := s.db.WithContext(ctx).Where("entry_key = ?", "draft").Take(&e).Error; err != nil {
		t.Fatalf("read row: %v", err)
	}
	if !e.UpdatedAt.Equal(epoch) {
		t.Errorf("updated_at = %v, want %v", e.UpdatedAt, epoch)
	}

	fc.Advance(90 * time.Second)
	if err := s.Set(ctx, "draft", "v2"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if err := s.db.WithContext(ctx).Where("entry_key = ?", "draft").Take(&e).Error; err != nil {
		t.Fatalf("read row: %v", err)
	}
	if want := epoch.Add(90 * time.Second); !e.UpdatedAt.Equal(want) {
		t.Errorf("updated_at after overwrite = %v, want %v", e.UpdatedAt, want)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get(context.Background(), "absent")
	if err != nil || ok {
		t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, "k", "v")
	s.Set(ctx, "k.timestamp", "1")
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expected key to be removed")
	}
	if _, ok, _ := s.Get(ctx, "k.timestamp"); !ok {
		t.Error("sibling key must survive")
	}
	if err := s.Remove(ctx, "never-set"); err != nil {
		t.Errorf("removing absent key should not fail: %v", err)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "statekit.db")
	ctx := context.Background()
	cfg := Config{Enabled: true, DSN: dsn, LogLevel: "silent"}

	first, err := Open(ctx, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	first.Set(ctx, "draft", `{"data":"hello"}`)
	first.Close()

	second, err := Open(ctx, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()
	got, ok, _ := second.Get(ctx, "draft")
	if !ok || got != `{"data":"hello"}` {
		t.Errorf("expected value to survive reopen, got %q ok=%v", got, ok)
	}
}

func TestStore_CloseIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	c := NewComponent(Config{
		Enabled:  true,
		DSN:      filepath.Join(t.TempDir(), "c.db"),
		LogLevel: "silent",
	}, logger.Nop())
	ctx := context.Background()

	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy before start, got %s", h.Status)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h := c.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %s: %s", h.Status, h.Message)
	}
	if c.Describe().Type != "storage" {
		t.Error("expected storage description")
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Enabled: true}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg.MaxIdleConns = 5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when idle exceeds open")
	}
}
