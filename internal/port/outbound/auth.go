package outbound

import "time"

// Roles carried in access tokens.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// JWTPort defines bearer token operations.
type JWTPort interface {
	// GenerateAccessToken issues an access token for a user.
	GenerateAccessToken(userID int64, role string) (string, time.Time, error)

	// ValidateAccessToken validates an access token.
	ValidateAccessToken(token string) (*JWTClaims, error)
}

// JWTClaims represents JWT token claims.
type JWTClaims struct {
	UserID int64
	Role   string
}

// IsAdmin returns true if the token grants admin access.
func (c *JWTClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
