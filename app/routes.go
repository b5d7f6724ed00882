package app

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"github.com/grantsnap/statekit/auth/jwt"
	apperrors "github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/server/endpoint"
	"github.com/grantsnap/statekit/server/middleware"
)

func (a *App) registerRoutes(r *gin.Engine) {
	r.GET("/health", endpoint.Health(a.Name, a.Components.HealthAll))
	r.GET("/alive", endpoint.Liveness(a.Name))
	r.GET("/version", endpoint.Version(a.Name))

	state := r.Group("")
	if a.Cfg.Server.RequireAuth {
		state.Use(middleware.Bearer(middleware.BearerConfig{Validate: a.validateToken}))
	}
	endpoint.NewState(a.durable, a.Clock, a.Cfg.Auth.StorageKey).Register(state)

	endpoint.NewAuth(a.Auth, a.provider, a.Clock, a.Logger).Register(r)
}

// validateToken accepts access tokens issued by the app's token service.
func (a *App) validateToken(token string) (string, error) {
	claims, err := a.tokens.Parse(token)
	if stderrors.Is(err, jwt.ErrExpired) {
		return "", apperrors.TokenExpired()
	}
	if err != nil {
		return "", apperrors.InvalidToken(err)
	}
	return claims.Subject, nil
}
