// Package auth performs the accept-time credential check for realtime
// connections.
//
// Every connection must present a bearer credential on the handshake.
// When a JWT secret is configured the credential is fully verified
// (signature, expiry, subject); without one, only presence is enforced and
// credential verification is the HTTP API layer's responsibility.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingCredential is returned when the handshake carries no token.
var ErrMissingCredential = errors.New("missing bearer credential")

// ErrInvalidToken is returned when a configured verifier rejects the token.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal attached to a connection.
type Identity struct {
	UserID   string
	Email    string
	Username string
}

// Service validates handshake credentials.
type Service struct {
	secret []byte
}

// NewService builds a credential checker. An empty secret enables
// presence-only mode.
func NewService(secret string) *Service {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Service{secret: key}
}

// Verifying reports whether full JWT verification is enabled.
func (s *Service) Verifying() bool {
	return len(s.secret) > 0
}

// Claims is the token payload accepted on the handshake.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Authenticate checks the given bearer token. In presence-only mode any
// non-empty token passes and the identity carries no verified user id.
func (s *Service) Authenticate(token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingCredential
	}
	if !s.Verifying() {
		return &Identity{}, nil
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID:   claims.Subject,
		Email:    strings.TrimSpace(claims.Email),
		Username: strings.TrimSpace(claims.Username),
	}, nil
}

// Generate issues a signed token, used by tests and local tooling.
func (s *Service) Generate(userID, username string, expiry time.Duration) (string, error) {
	if !s.Verifying() {
		return "", errors.New("no signing secret configured")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	claims := Claims{
		Username: strings.TrimSpace(username),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// TokenFromRequest extracts the bearer credential from a websocket
// handshake request: the Authorization header first, then the "token"
// query parameter used by browser clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
