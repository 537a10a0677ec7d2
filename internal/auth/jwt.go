// Package auth resolves caller identity (JWT or API key) and computes
// effective permission level on a target (spec.md §4.2).
package auth

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/riftctl/rift/internal/rifterr"
)

// JwtIssuer signs and verifies JWTs with an HMAC key generated once at
// process start, so a restart invalidates every outstanding token
// (spec.md §4.2).
type JwtIssuer struct {
	key   []byte
	valid time.Duration
}

type claims struct {
	UserId string `json:"user_id"`
	jwt.RegisteredClaims
}

// NewJwtIssuer generates a fresh random signing key. validFor is the
// token lifetime; spec.md leaves the exact window to configuration.
func NewJwtIssuer(validFor time.Duration) (*JwtIssuer, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating jwt key: %w", err)
	}
	return &JwtIssuer{key: key, valid: validFor}, nil
}

func (j *JwtIssuer) Issue(userId string, now time.Time) (string, error) {
	c := claims{
		UserId: userId,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.valid)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(j.key)
}

// Verify returns the user id encoded in a valid, unexpired token. A
// token exactly at its expiry is rejected (spec.md §8 boundary behavior:
// jwt.io's leeway is not used, so exp == now already fails the library's
// own check, which accepts a token only while now is strictly before exp).
func (j *JwtIssuer) Verify(token string) (string, error) {
	return j.verifyAt(token, time.Now())
}

func (j *JwtIssuer) verifyAt(token string, now time.Time) (string, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.key, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !parsed.Valid {
		return "", rifterr.Wrap(rifterr.KindAuthInvalid, err, "invalid jwt")
	}
	// jwt/v5 already rejects exp == now; this repeats the exact-expiry
	// boundary explicitly so it holds regardless of the parser options.
	if c.ExpiresAt != nil && !c.ExpiresAt.Time.After(now) {
		return "", rifterr.New(rifterr.KindAuthInvalid, "jwt expired")
	}
	return c.UserId, nil
}
