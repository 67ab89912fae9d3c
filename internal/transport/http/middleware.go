package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat-server/internal/auth"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUserName is the context key for storing the display name.
	ContextKeyUserName = "user_name"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authFailure is the client-facing reason for a rejected credential.
func authFailure(err error) string {
	if errors.Is(err, auth.ErrTokenMissing) {
		return "authentication error: " + auth.ErrTokenMissing.Error()
	}
	return "authentication error: " + auth.ErrTokenInvalid.Error()
}

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(gate *auth.Gatekeeper, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := gate.Authenticate(bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("rejected request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: authFailure(err)})
			return
		}

		c.Set(ContextKeyUserID, identity.UserID)
		c.Set(ContextKeyUserName, identity.Name)

		c.Next()
	}
}

// identityFrom returns the identity stored by AuthMiddleware.
func identityFrom(c *gin.Context) auth.Identity {
	return auth.Identity{
		UserID: c.GetString(ContextKeyUserID),
		Name:   c.GetString(ContextKeyUserName),
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
