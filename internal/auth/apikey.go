package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// GenerateApiKey produces a new (key, secret) pair; secret is returned
// to the caller once and never stored in clear.
func GenerateApiKey() (key, secret string, err error) {
	k, err := randomHex(16)
	if err != nil {
		return "", "", err
	}
	s, err := randomHex(32)
	if err != nil {
		return "", "", err
	}
	return "key-" + k, s, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(b), err
}

// VerifyApiKey checks key/secret against the store, rejecting expired
// keys (expires != 0 && expires < now). expires == 0 never expires
// (spec.md §8 boundary behavior).
func VerifyApiKey(records *store.Records, key, secret string, now time.Time) (models.ApiKey, error) {
	k, err := records.GetApiKey(key)
	if err != nil {
		return k, rifterr.New(rifterr.KindAuthInvalid, "unknown api key")
	}
	if k.ExpiredAt(now.UnixMilli()) {
		return k, rifterr.New(rifterr.KindAuthInvalid, "api key expired")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(k.SecretHash), []byte(secret)); err != nil {
		return k, rifterr.New(rifterr.KindAuthInvalid, "api secret mismatch")
	}
	return k, nil
}

// HashPassword/VerifyPassword back local-credential users.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
