package auth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"

	"github.com/grantsnap/statekit/auth/jwt"
	"github.com/grantsnap/statekit/authcache"
	"github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
	"github.com/grantsnap/statekit/logger"
)

// storedSession is the persisted form of a session. The identity is
// rebuilt from the access token on every load.
type storedSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ProviderOption configures a TokenProvider.
type ProviderOption func(*TokenProvider)

// WithStorageKey replaces DefaultStorageKey.
func WithStorageKey(key string) ProviderOption {
	return func(p *TokenProvider) { p.key = key }
}

// WithLogger sets the provider logger.
func WithLogger(l *logger.Logger) ProviderOption {
	return func(p *TokenProvider) { p.log = l }
}

// TokenProvider is an authcache.Provider backed by signed access tokens.
type TokenProvider struct {
	tokens  *jwt.Service[*Claims]
	storage kv.Storage
	key     string
	log     *logger.Logger

	mu        sync.Mutex
	listeners []func(authcache.Event, *authcache.Session)
}

var _ authcache.Provider = (*TokenProvider)(nil)

// NewTokenProvider creates a provider storing its session in storage.
func NewTokenProvider(tokens *jwt.Service[*Claims], storage kv.Storage, opts ...ProviderOption) *TokenProvider {
	p := &TokenProvider{tokens: tokens, storage: storage, key: DefaultStorageKey}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Nop()
	}
	p.log = p.log.WithComponent("auth")
	return p
}

// OnChange registers fn. Listeners run synchronously in registration order.
func (p *TokenProvider) OnChange(fn func(authcache.Event, *authcache.Session)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *TokenProvider) emit(event authcache.Event, session *authcache.Session) {
	p.mu.Lock()
	listeners := make([]func(authcache.Event, *authcache.Session), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	fields := logger.Fields(logger.FieldEvent, string(event))
	if session != nil && session.Identity != nil {
		fields[logger.FieldUserID] = session.Identity.ID
	}
	p.log.Info("auth state changed", fields)

	for _, fn := range listeners {
		fn(event, session)
	}
}

// Issue signs a new access and refresh token pair for claims and signs in
// with them.
func (p *TokenProvider) Issue(ctx context.Context, claims *Claims) (*authcache.Session, error) {
	refreshClaims := *claims
	access, err := p.tokens.GenerateAccess(claims)
	if err != nil {
		return nil, errors.Internal(err)
	}
	refresh, err := p.tokens.GenerateRefresh(&refreshClaims)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return p.SignIn(ctx, access, refresh)
}

// SignIn validates accessToken, persists the session and emits
// EventSignedIn.
func (p *TokenProvider) SignIn(ctx context.Context, accessToken, refreshToken string) (*authcache.Session, error) {
	session, err := p.store(ctx, accessToken, refreshToken)
	if err != nil {
		return nil, err
	}
	p.emit(authcache.EventSignedIn, session)
	return session, nil
}

// Refresh replaces the stored tokens and emits EventTokenRefreshed.
func (p *TokenProvider) Refresh(ctx context.Context, accessToken, refreshToken string) (*authcache.Session, error) {
	session, err := p.store(ctx, accessToken, refreshToken)
	if err != nil {
		return nil, err
	}
	p.emit(authcache.EventTokenRefreshed, session)
	return session, nil
}

// SignOut removes the stored session and emits EventSignedOut.
func (p *TokenProvider) SignOut(ctx context.Context) error {
	if err := p.storage.Remove(ctx, p.key); err != nil {
		return err
	}
	p.emit(authcache.EventSignedOut, nil)
	return nil
}

// CurrentSession loads the stored session. It returns nil when no session
// is stored or its access token has expired, and an error when the session
// cannot be read or its token does not verify.
func (p *TokenProvider) CurrentSession(ctx context.Context) (*authcache.Session, error) {
	raw, ok, err := p.storage.Get(ctx, p.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var stored storedSession
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, errors.Serialization(p.key, err)
	}

	session, err := p.session(stored.AccessToken, stored.RefreshToken)
	if errors.IsCode(err, errors.ErrCodeTokenExpired) {
		p.log.Debug("stored session expired")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (p *TokenProvider) store(ctx context.Context, accessToken, refreshToken string) (*authcache.Session, error) {
	session, err := p.session(accessToken, refreshToken)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(storedSession{AccessToken: accessToken, RefreshToken: refreshToken})
	if err != nil {
		return nil, errors.Serialization(p.key, err)
	}
	if err := p.storage.Set(ctx, p.key, string(payload)); err != nil {
		return nil, err
	}
	return session, nil
}

func (p *TokenProvider) session(accessToken, refreshToken string) (*authcache.Session, error) {
	claims, err := p.tokens.Parse(accessToken)
	if stderrors.Is(err, jwt.ErrExpired) {
		return nil, errors.TokenExpired()
	}
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if err := claims.Validate(); err != nil {
		return nil, errors.InvalidToken(err)
	}
	session := &authcache.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Identity:     claims.Identity(),
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
