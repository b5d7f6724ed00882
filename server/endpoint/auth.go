package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grantsnap/statekit/authcache"
	"github.com/grantsnap/statekit/clock"
	apperrors "github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
	"github.com/grantsnap/statekit/logger"
	"github.com/grantsnap/statekit/server"
)

// eventBuffer bounds the updates queued for one slow stream client.
const eventBuffer = 16

// Sessions signs the local user in and out of the auth provider.
type Sessions interface {
	SignIn(ctx context.Context, accessToken, refreshToken string) (*authcache.Session, error)
	SignOut(ctx context.Context) error
}

// AuthView is the token-free projection of a cached auth entry.
type AuthView struct {
	SignedIn  bool                `json:"signed_in"`
	User      *authcache.Identity `json:"user"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	AgeMs     int64               `json:"age_ms"`
	Fresh     bool                `json:"fresh"`
}

// SignInRequest is the body of POST /v1/auth/session.
type SignInRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
}

// Auth serves the auth cache and session routes. The cache is resolved
// per request so it can be created lazily.
type Auth struct {
	cache    func() *authcache.Manager
	sessions Sessions
	clock    clock.Clock
	log      *logger.Logger
}

// NewAuth returns the auth handlers. sessions may be nil, in which case the
// session routes are not mounted.
func NewAuth(cache func() *authcache.Manager, sessions Sessions, clk clock.Clock, log *logger.Logger) *Auth {
	if log == nil {
		log = logger.Nop()
	}
	return &Auth{
		cache:    cache,
		sessions: sessions,
		clock:    clock.OrReal(clk),
		log:      log.WithComponent("auth-endpoint"),
	}
}

// Register mounts the routes under r.
func (h *Auth) Register(r gin.IRouter) {
	r.GET("/v1/auth", h.Current)
	r.POST("/v1/auth/initialize", h.Initialize)
	r.GET("/v1/auth/events", h.Events)
	if h.sessions != nil {
		r.POST("/v1/auth/session", h.SignIn)
		r.DELETE("/v1/auth/session", h.SignOut)
	}
}

// Current returns the cached entry; 404 while the cache is cold.
func (h *Auth) Current(c *gin.Context) {
	res := h.cache().Lookup()
	switch res.Status {
	case kv.StatusOK, kv.StatusStale:
		server.RespondOK(c, h.view(res.Value, res.Status == kv.StatusOK))
	default:
		server.RespondWithError(c, res.Err)
	}
}

// Initialize runs the first provider query, or returns the cached answer.
func (h *Auth) Initialize(c *gin.Context) {
	entry, err := h.cache().Initialize(c.Request.Context())
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, h.view(entry, true))
}

// SignIn stores a new session with the provider.
func (h *Auth) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.RespondWithError(c, apperrors.InvalidInput("access_token", err.Error()))
		return
	}
	if _, err := h.sessions.SignIn(c.Request.Context(), req.AccessToken, req.RefreshToken); err != nil {
		server.RespondWithError(c, err)
		return
	}
	entry := h.cache().CachedAuth()
	if entry == nil {
		server.RespondNoContent(c)
		return
	}
	server.RespondCreated(c, h.view(*entry, true))
}

// SignOut removes the stored session.
func (h *Auth) SignOut(c *gin.Context) {
	if err := h.sessions.SignOut(c.Request.Context()); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondNoContent(c)
}

// Events streams every cache update as a server-sent "auth" event until the
// client disconnects.
func (h *Auth) Events(c *gin.Context) {
	updates := make(chan authcache.Entry, eventBuffer)
	client := c.ClientIP()
	unsubscribe := h.cache().Subscribe(func(e authcache.Entry) {
		select {
		case updates <- e:
		default:
			h.log.Warn("auth event dropped for slow client", logger.Fields("client", client))
		}
	})
	defer unsubscribe()

	// The read deadline would otherwise cancel the request context mid-stream.
	_ = http.NewResponseController(c.Writer).SetReadDeadline(time.Time{})

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	if res := h.cache().Lookup(); res.Status == kv.StatusOK || res.Status == kv.StatusStale {
		c.SSEvent("auth", h.view(res.Value, res.Status == kv.StatusOK))
		c.Writer.Flush()
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-updates:
			c.SSEvent("auth", h.view(e, true))
			c.Writer.Flush()
		}
	}
}

func (h *Auth) view(e authcache.Entry, fresh bool) AuthView {
	v := AuthView{
		SignedIn:  e.SignedIn(),
		User:      e.Identity,
		Timestamp: e.Timestamp,
		AgeMs:     e.Age(h.clock.Now()).Milliseconds(),
		Fresh:     fresh,
	}
	if e.Session != nil && !e.Session.ExpiresAt.IsZero() {
		exp := e.Session.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}
