package utils // package utils provides helper functions for token creation and hashing

import (
	"errors" // sentinel errors surfaced to handlers
	"time"   // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ErrInvalidToken is returned when a token fails signature, expiry or
// structural checks.  Handlers translate it to HTTP 403.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload carried by both access and refresh tokens: the
// user's id, email and role.  Refresh tokens additionally carry the user's
// token version so a password change invalidates every refresh token issued
// before it.  The two token kinds are signed with distinct secrets, so a
// leaked access secret does not let an attacker mint refresh tokens.
type Claims struct {
	ID           uint64 `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	TokenVersion int    `json:"ver,omitempty"`
	jwt.RegisteredClaims
}

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short-lived and sent in the Authorization header when
// calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long-lived token used to obtain new access
// tokens.  It travels in an HTTP-only cookie, never in a response body.
type RefreshToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user.  It takes the
// access signing secret, the user's identity and a TTL in minutes.
func NewAccessToken(secret string, id uint64, email, role string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := Claims{
		ID:    id,
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewRefreshToken signs a refresh JWT with the refresh secret.  tokenVersion
// is the user's current version; refresh attempts with a stale version are
// rejected by VerifyRefreshToken's caller.
func NewRefreshToken(secret string, id uint64, email, role string, tokenVersion, ttlDays int) (RefreshToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlDays) * 24 * time.Hour)
	claims := Claims{
		ID:           id,
		Email:        email,
		Role:         role,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Token: signed, Exp: exp}, nil
}

// VerifyRefreshToken parses a refresh token and returns its claims.  Any
// signature, expiry or signing-method problem yields ErrInvalidToken; the
// caller never learns which check failed.
func VerifyRefreshToken(secret, raw string) (*Claims, error) {
	return verify(secret, raw)
}

// VerifyAccessToken parses an access token and returns its claims.
func VerifyAccessToken(secret, raw string) (*Claims, error) {
	return verify(secret, raw)
}

func verify(secret, raw string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
