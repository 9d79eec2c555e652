package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/payrecon/server/internal/port/outbound"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{
		Issuer:            "payrecon",
		AccessTokenExpiry: 15 * time.Minute,
	}
}

type accessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// jwtManager implements outbound.JWTPort with HS256 tokens.
type jwtManager struct {
	secret            []byte
	issuer            string
	accessTokenExpiry time.Duration
	now               func() time.Time
}

// NewJWTManager creates a new JWT manager.
func NewJWTManager(cfg *JWTConfig) outbound.JWTPort {
	if cfg == nil {
		cfg = DefaultJWTConfig()
	}
	expiry := cfg.AccessTokenExpiry
	if expiry == 0 {
		expiry = DefaultJWTConfig().AccessTokenExpiry
	}
	return &jwtManager{
		secret:            []byte(cfg.Secret),
		issuer:            cfg.Issuer,
		accessTokenExpiry: expiry,
		now:               time.Now,
	}
}

// GenerateAccessToken generates an access token.
func (m *jwtManager) GenerateAccessToken(userID int64, role string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.accessTokenExpiry)

	claims := accessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signedToken, expiresAt, nil
}

// ValidateAccessToken validates an access token.
func (m *jwtManager) ValidateAccessToken(tokenString string) (*outbound.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims accessClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, errors.New("invalid user ID in token")
	}

	return &outbound.JWTClaims{
		UserID: userID,
		Role:   claims.Role,
	}, nil
}

// Compile-time check
var _ outbound.JWTPort = (*jwtManager)(nil)
