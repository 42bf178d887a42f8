package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultValidity is the lifetime of a session token.
	DefaultValidity = 12 * time.Hour
	// DefaultRefreshWindow is how long before expiry a token becomes eligible
	// for silent rotation.
	DefaultRefreshWindow = time.Hour

	issuer          = "cvtransformer"
	minSecretLength = 16
)

// ErrWeakSecret is returned when the signing secret is too short.
var ErrWeakSecret = errors.New("jwt secret must be at least 16 bytes")

// Claims represents the JWT claims of a session token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager issues and validates HS256 session tokens. It holds no mutable
// state and is safe for concurrent use.
type JWTManager struct {
	secret        []byte
	validity      time.Duration
	refreshWindow time.Duration
	now           func() time.Time
}

// Option configures a JWTManager.
type Option func(*JWTManager)

// WithValidity overrides the token lifetime.
func WithValidity(d time.Duration) Option {
	return func(m *JWTManager) {
		if d > 0 {
			m.validity = d
		}
	}
}

// WithRefreshWindow overrides the refresh window.
func WithRefreshWindow(d time.Duration) Option {
	return func(m *JWTManager) {
		if d > 0 {
			m.refreshWindow = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *JWTManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewJWTManager creates a JWT manager. A secret shorter than 16 bytes is
// rejected so misconfiguration fails at startup instead of per request.
func NewJWTManager(secret string, opts ...Option) (*JWTManager, error) {
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	m := &JWTManager{
		secret:        []byte(secret),
		validity:      DefaultValidity,
		refreshWindow: DefaultRefreshWindow,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Validity returns the configured token lifetime.
func (m *JWTManager) Validity() time.Duration {
	return m.validity
}

// Issue creates a signed token for the given user.
func (m *JWTManager) Issue(userID, username, role string) (string, error) {
	now := m.now().UTC()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return signedToken, nil
}

// Verify parses and validates a token. Every failure, whether a bad
// signature, a foreign algorithm, garbage input or expiry, returns false.
func (m *JWTManager) Verify(tokenString string) (*Claims, bool) {
	if tokenString == "" {
		return nil, false
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithTimeFunc(m.now),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, false
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, false
	}

	return claims, true
}

// ShouldRefresh reports whether a valid token has entered its refresh window.
func (m *JWTManager) ShouldRefresh(tokenString string) bool {
	claims, ok := m.Verify(tokenString)
	if !ok {
		return false
	}
	refreshAt := claims.ExpiresAt.Time.Add(-m.refreshWindow)
	return !m.now().Before(refreshAt)
}

// Refresh re-issues a valid token for the same user with a fresh window.
func (m *JWTManager) Refresh(tokenString string) (string, bool) {
	claims, ok := m.Verify(tokenString)
	if !ok {
		return "", false
	}
	token, err := m.Issue(claims.UserID, claims.Username, claims.Role)
	if err != nil {
		return "", false
	}
	return token, true
}
