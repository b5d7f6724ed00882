package component

import (
	"context"
	"fmt"
	"testing"
)

// mockComponent implements Component for testing.
type mockComponent struct {
	name       string
	startErr   error
	stopErr    error
	health     Health
	startOrder *[]string
	stopOrder  *[]string
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(ctx context.Context) error {
	if m.startOrder != nil {
		*m.startOrder = append(*m.startOrder, m.name)
	}
	return m.startErr
}
func (m *mockComponent) Stop(ctx context.Context) error {
	if m.stopOrder != nil {
		*m.stopOrder = append(*m.stopOrder, m.name)
	}
	return m.stopErr
}
func (m *mockComponent) Health(ctx context.Context) Health { return m.health }

type describedComponent struct{ mockComponent }

func (d *describedComponent) Describe() Description {
	return Description{Name: "SQLite store", Type: "storage", Details: "memory"}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(&mockComponent{name: "sqlite"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&mockComponent{name: "sqlite"}); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestGet(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&mockComponent{name: "redis"})

	if got := r.Get("redis"); got == nil || got.Name() != "redis" {
		t.Fatalf("expected redis component, got %v", got)
	}
	if r.Get("missing") != nil {
		t.Error("expected nil for unregistered component")
	}
}

func TestStartStopOrder(t *testing.T) {
	r := NewRegistry(nil)
	var started, stopped []string

	for _, name := range []string{"sqlite", "auth", "server"} {
		r.Register(&mockComponent{name: name, startOrder: &started, stopOrder: &stopped})
	}
	r.Register(&describedComponent{mockComponent{name: "described", startOrder: &started, stopOrder: &stopped}})

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}

	wantStart := []string{"sqlite", "auth", "server", "described"}
	wantStop := []string{"described", "server", "auth", "sqlite"}
	for i := range wantStart {
		if started[i] != wantStart[i] {
			t.Errorf("start order: expected %v, got %v", wantStart, started)
			break
		}
	}
	for i := range wantStop {
		if stopped[i] != wantStop[i] {
			t.Errorf("stop order: expected %v, got %v", wantStop, stopped)
			break
		}
	}
}

func TestStartAllError(t *testing.T) {
	r := NewRegistry(nil)
	var stopped []string
	r.Register(&mockComponent{name: "sqlite", stopOrder: &stopped})
	r.Register(&mockComponent{name: "redis", startErr: fmt.Errorf("connection refused"), stopOrder: &stopped})

	if err := r.StartAll(context.Background()); err == nil {
		t.Fatal("expected error from StartAll")
	}
	r.StopAll(context.Background())
	if len(stopped) != 1 || stopped[0] != "sqlite" {
		t.Errorf("expected only the started component to stop, got %v", stopped)
	}
}

func TestStopAllCollectsErrors(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&mockComponent{name: "a", stopErr: fmt.Errorf("boom")})
	r.Register(&mockComponent{name: "b"})
	r.StartAll(context.Background())

	if err := r.StopAll(context.Background()); err == nil {
		t.Error("expected shutdown error")
	}
}

func TestHealthy(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&mockComponent{name: "a", health: Health{Name: "a", Status: StatusHealthy}})
	r.Register(&mockComponent{name: "b", health: Health{Name: "b", Status: StatusHealthy}})
	if !r.Healthy(context.Background()) {
		t.Error("expected healthy registry")
	}

	r.Register(&mockComponent{name: "c", health: Health{Name: "c", Status: StatusDegraded}})
	if r.Healthy(context.Background()) {
		t.Error("expected unhealthy registry")
	}
	if got := len(r.HealthAll(context.Background())); got != 3 {
		t.Errorf("expected 3 health entries, got %d", got)
	}
}

func TestDescribe(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&mockComponent{name: "plain"})
	r.Register(&describedComponent{mockComponent{name: "sqlite"}})

	got := r.Describe()
	if len(got) != 1 {
		t.Fatalf("expected 1 description, got %d", len(got))
	}
	if got[0].Type != "storage" || got[0].Name != "SQLite store" {
		t.Errorf("unexpected description %+v", got[0])
	}
}
