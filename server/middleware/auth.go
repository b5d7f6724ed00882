package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/grantsnap/statekit/errors"
)

// ContextKeySubject holds the authenticated subject on the Gin context.
const ContextKeySubject = "auth_subject"

// TokenValidator validates a bearer token and returns its subject.
type TokenValidator func(token string) (subject string, err error)

// BearerConfig configures the bearer token middleware.
type BearerConfig struct {
	Validate TokenValidator
	// SkipPaths are URL path prefixes that bypass authentication.
	SkipPaths []string
}

// Bearer returns a Gin middleware that requires an "Authorization: Bearer"
// header accepted by cfg.Validate. The subject is stored under
// ContextKeySubject.
func Bearer(cfg BearerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if strings.HasPrefix(path, skip) {
				c.Next()
				return
			}
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, apperrors.Unauthorized("authorization header required"))
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			abort(c, apperrors.Unauthorized("invalid authorization header format"))
			return
		}

		subject, err := cfg.Validate(token)
		if err != nil {
			if appErr, ok := apperrors.AsAppError(err); ok {
				abort(c, appErr)
				return
			}
			abort(c, apperrors.InvalidToken(err))
			return
		}

		c.Set(ContextKeySubject, subject)
		c.Next()
	}
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err.ToResponse())
}
