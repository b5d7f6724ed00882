package authcache

import (
	"context"
	"time"
)

// Identity is the signed-in user as reported by the provider.
type Identity struct {
	ID       string         `json:"id"`
	Email    string         `json:"email,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Session is the credential bundle of an authenticated user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     *Identity `json:"user,omitempty"`
}

// Event names a provider auth-state change.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// Provider is the external authentication service.
type Provider interface {
	// CurrentSession returns the active session, or nil when signed out.
	CurrentSession(ctx context.Context) (*Session, error)
	// OnChange registers fn to be called on every auth-state change.
	OnChange(fn func(Event, *Session))
}

// Entry is a cached provider answer. IsValid is always true once stamped;
// a nil Identity means signed out or the provider could not be reached.
type Entry struct {
	Identity  *Identity `json:"user"`
	Session   *Session  `json:"session,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	IsValid   bool      `json:"is_valid"`
}

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration { return now.Sub(e.Timestamp) }

// SignedIn reports whether the entry carries an identity.
func (e Entry) SignedIn() bool { return e.Identity != nil }

// Listener receives every cache update.
type Listener func(Entry)
