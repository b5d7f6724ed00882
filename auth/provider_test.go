package auth

import (
	"context"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/grantsnap/statekit/auth/jwt"
	"github.com/grantsnap/statekit/authcache"
	"github.com/grantsnap/statekit/clock"
	"github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
	"github.com/grantsnap/statekit/kv/sealed"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestProvider(t *testing.T, storage kv.Storage, fc *clock.Fake, secret string) *TokenProvider {
	t.Helper()
	svc, err := jwt.NewService(&jwt.Config{Secret: secret, Issuer: "statekit"}, NewClaims, jwt.WithTimeFunc(fc.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewTokenProvider(svc, storage)
}

func aliceClaims() *Claims {
	return &Claims{
		RegisteredClaims: gojwt.RegisteredClaims{Subject: "u-1"},
		Email:            "alice@example.com",
		UserMetadata:     map[string]any{"plan": "pro"},
	}
}

type recorded struct {
	event   authcache.Event
	session *authcache.Session
}

func TestIssue_PersistsAndEmits(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	p := newTestProvider(t, storage, fc, "secret")

	var events []recorded
	p.OnChange(func(e authcache.Event, s *authcache.Session) { events = append(events, recorded{e, s}) })

	session, err := p.Issue(context.Background(), aliceClaims())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if session.Identity.ID != "u-1" || session.Identity.Email != "alice@example.com" {
		t.Errorf("identity = %+v", session.Identity)
	}
	if !session.ExpiresAt.Equal(epoch.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", session.ExpiresAt)
	}
	if session.RefreshToken == "" {
		t.Error("expected a refresh token")
	}
	if _, ok, _ := storage.Get(context.Background(), DefaultStorageKey); !ok {
		t.Error("session not persisted")
	}
	if len(events) != 1 || events[0].event != authcache.EventSignedIn {
		t.Fatalf("events = %+v", events)
	}
}

func TestCurrentSession(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	p := newTestProvider(t, storage, fc, "secret")
	ctx := context.Background()

	s, err := p.CurrentSession(ctx)
	if err != nil || s != nil {
		t.Fatalf("signed out: session=%v err=%v", s, err)
	}

	if _, err := p.Issue(ctx, aliceClaims()); err != nil {
		t.Fatal(err)
	}
	s, err = p.CurrentSession(ctx)
	if err != nil || s == nil || s.Identity.ID != "u-1" {
		t.Fatalf("signed in: session=%+v err=%v", s, err)
	}
	if s.Identity.Metadata["plan"] != "pro" {
		t.Errorf("metadata = %v", s.Identity.Metadata)
	}

	fc.Advance(2 * time.Hour)
	s, err = p.CurrentSession(ctx)
	if err != nil || s != nil {
		t.Errorf("expired: session=%v err=%v, want nil, nil", s, err)
	}
}

func TestCurrentSession_BadSignature(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	ctx := context.Background()

	issuer := newTestProvider(t, storage, fc, "old-secret")
	if _, err := issuer.Issue(ctx, aliceClaims()); err != nil {
		t.Fatal(err)
	}

	reader := newTestProvider(t, storage, fc, "new-secret")
	_, err := reader.CurrentSession(ctx)
	if !errors.IsCode(err, errors.ErrCodeInvalidToken) {
		t.Errorf("expected INVALID_TOKEN, got %v", err)
	}
}

func TestCurrentSession_Corrupt(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	_ = storage.Set(context.Background(), DefaultStorageKey, "not json")

	p := newTestProvider(t, storage, fc, "secret")
	if _, err := p.CurrentSession(context.Background()); !errors.IsCode(err, errors.ErrCodeSerialization) {
		t.Errorf("expected SERIALIZATION_FAILED, got %v", err)
	}
}

func TestSignIn_RejectsExpiredToken(t *testing.T) {
	fc := clock.NewFake(epoch)
	p := newTestProvider(t, kv.NewMemory(), fc, "secret")
	svc, _ := jwt.NewService(&jwt.Config{Secret: "secret", Issuer: "statekit"}, NewClaims, jwt.WithTimeFunc(fc.Now))

	token, err := svc.GenerateAccess(aliceClaims())
	if err != nil {
		t.Fatal(err)
	}
	fc.Advance(2 * time.Hour)

	var emitted bool
	p.OnChange(func(authcache.Event, *authcache.Session) { emitted = true })
	if _, err := p.SignIn(context.Background(), token, ""); !errors.IsCode(err, errors.ErrCodeTokenExpired) {
		t.Errorf("expected TOKEN_EXPIRED, got %v", err)
	}
	if emitted {
		t.Error("a rejected sign-in must not emit")
	}
}

func TestSignIn_RejectsIncompleteClaims(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	p := newTestProvider(t, storage, fc, "secret")
	svc, _ := jwt.NewService(&jwt.Config{Secret: "secret", Issuer: "statekit"}, NewClaims, jwt.WithTimeFunc(fc.Now))

	tests := []struct {
		name   string
		claims *Claims
	}{
		{"no subject", &Claims{Email: "alice@example.com"}},
		{"bad email", &Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: "u-1"}, Email: "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := svc.GenerateAccess(tt.claims)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := p.SignIn(context.Background(), token, ""); !errors.IsCode(err, errors.ErrCodeInvalidToken) {
				t.Errorf("expected INVALID_TOKEN, got %v", err)
			}
			if storage.Len() != 0 {
				t.Errorf("rejected session was stored: %v", storage.Keys())
			}
		})
	}
}

func TestClaims_Validate(t *testing.T) {
	if err := aliceClaims().Validate(); err != nil {
		t.Errorf("valid claims rejected: %v", err)
	}
	if err := (&Claims{}).Validate(); err == nil {
		t.Error("expected error for missing subject")
	}
}

func TestRefreshAndSignOut(t *testing.T) {
	fc := clock.NewFake(epoch)
	storage := kv.NewMemory()
	p := newTestProvider(t, storage, fc, "secret")
	ctx := context.Background()

	first, err := p.Issue(ctx, aliceClaims())
	if err != nil {
		t.Fatal(err)
	}

	var order []authcache.Event
	p.OnChange(func(e authcache.Event, _ *authcache.Session) { order = append(order, e) })
	p.OnChange(func(e authcache.Event, _ *authcache.Session) { order = append(order, e+"#2") })

	fc.Advance(30 * time.Minute)
	svc, _ := jwt.NewService(&jwt.Config{Secret: "secret", Issuer: "statekit"}, NewClaims, jwt.WithTimeFunc(fc.Now))
	access, _ := svc.GenerateAccess(aliceClaims())
	refreshed, err := p.Refresh(ctx, access, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !refreshed.ExpiresAt.After(first.ExpiresAt) {
		t.Errorf("refreshed expiry %v not after %v", refreshed.ExpiresAt, first.ExpiresAt)
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if s, _ := p.CurrentSession(ctx); s != nil {
		t.Error("session should be gone after SignOut")
	}

	want := []authcache.Event{
		authcache.EventTokenRefreshed, authcache.EventTokenRefreshed + "#2",
		authcache.EventSignedOut, authcache.EventSignedOut + "#2",
	}
	if len(order) != len(want) {
		t.Fatalf("events = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestWithAuthCache_SealedStorage(t *testing.T) {
	fc := clock.NewFake(epoch)
	backing := kv.NewMemory()
	store, err := sealed.New(backing, "encryption-key")
	if err != nil {
		t.Fatal(err)
	}
	p := newTestProvider(t, store, fc, "secret")
	m := authcache.New(p, authcache.WithClock(fc))
	ctx := context.Background()

	if _, err := p.Issue(ctx, aliceClaims()); err != nil {
		t.Fatal(err)
	}
	cached := m.CachedAuth()
	if cached == nil || cached.Identity.ID != "u-1" {
		t.Fatalf("cache not updated by sign-in: %+v", cached)
	}

	raw, _, _ := backing.Get(ctx, DefaultStorageKey)
	if raw == "" || raw[0] == '{' {
		t.Errorf("session stored in the clear: %q", raw)
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if cached := m.CachedAuth(); cached == nil || cached.Identity != nil {
		t.Errorf("expected a fresh signed-out entry, got %+v", cached)
	}
}

func TestConfig(t *testing.T) {
	cfg := Config{JWT: jwt.Config{Secret: "s"}}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.StorageKey != DefaultStorageKey || cfg.CacheTTL != 300*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if got := cfg.Describe(); got != "JWT(HS256) TTL=1h0m0s cache=5m0s" {
		t.Errorf("Describe() = %q", got)
	}

	bad := Config{}
	bad.ApplyDefaults()
	if err := bad.Validate(); err == nil {
		t.Error("expected error without a JWT secret")
	}
}
