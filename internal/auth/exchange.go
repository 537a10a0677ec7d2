package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/riftctl/rift/internal/rifterr"
)

const (
	exchangeTokenBytes = 20 // hex-encoded to 40 chars
	exchangeTokenTTL   = 60 * time.Second
)

// ExchangeBroker bridges an OAuth callback to the front-end: the
// callback mints a JWT and stashes it under a random token; the
// front-end redeems the token once for the JWT (spec.md §4.2).
type ExchangeBroker struct {
	mu      sync.Mutex
	entries map[string]exchangeEntry
}

type exchangeEntry struct {
	jwt     string
	expires time.Time
}

func NewExchangeBroker() *ExchangeBroker {
	return &ExchangeBroker{entries: make(map[string]exchangeEntry)}
}

// Mint generates a new exchange token for jwt, valid for 60s.
func (b *ExchangeBroker) Mint(jwt string, now time.Time) (string, error) {
	buf := make([]byte, exchangeTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[token] = exchangeEntry{jwt: jwt, expires: now.Add(exchangeTokenTTL)}
	return token, nil
}

// Redeem consumes the token once; a second redemption or an expired
// token both fail AuthInvalid.
func (b *ExchangeBroker) Redeem(token string, now time.Time) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[token]
	if !ok {
		return "", rifterr.New(rifterr.KindAuthInvalid, "unknown or already-used exchange token")
	}
	delete(b.entries, token)
	if !e.expires.After(now) {
		return "", rifterr.New(rifterr.KindAuthInvalid, "exchange token expired")
	}
	return e.jwt, nil
}

// Sweep drops expired, unredeemed entries to bound memory growth. It
// runs only when called; riftd does not schedule it, so an unredeemed
// entry otherwise stays in the map.
func (b *ExchangeBroker) Sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for token, e := range b.entries {
		if !e.expires.After(now) {
			delete(b.entries, token)
		}
	}
}
