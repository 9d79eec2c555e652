package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/payrecon/server/internal/port/outbound"
	apperrors "github.com/payrecon/server/internal/utils/errors"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// UserIDKey is the context key for user ID.
	UserIDKey = "user_id"
	// RoleKey is the context key for the token role.
	RoleKey = "role"
)

// JWTValidator defines the interface for JWT token validation.
type JWTValidator interface {
	ValidateAccessToken(token string) (*outbound.JWTClaims, error)
}

// RequireAuth returns a middleware that requires a valid bearer token and
// sets user_id and role in the context.
func RequireAuth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			abort(c, apperrors.Unauthorized("Authorization header required"))
			return
		}

		claims, err := validator.ValidateAccessToken(token)
		if err != nil {
			abort(c, apperrors.NewAppError("INVALID_TOKEN", "Invalid or expired token", http.StatusUnauthorized, err))
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// RequireAdmin returns a middleware that only admits admin tokens.
// It must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != outbound.RoleAdmin {
			abort(c, apperrors.Forbidden("admin role required"))
			return
		}
		c.Next()
	}
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}

// GetUserID returns the user ID from context, or 0 if not found.
func GetUserID(c *gin.Context) int64 {
	if val, exists := c.Get(UserIDKey); exists {
		if userID, ok := val.(int64); ok {
			return userID
		}
	}
	return 0
}

// GetRole returns the token role from context.
func GetRole(c *gin.Context) string {
	return c.GetString(RoleKey)
}
