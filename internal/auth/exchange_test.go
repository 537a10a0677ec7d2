package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeBrokerRedeemOnce(t *testing.T) {
	b := NewExchangeBroker()
	now := time.Now()
	tok, err := b.Mint("jwt-value", now)
	require.NoError(t, err)
	assert.Len(t, tok, 40)

	jwt, err := b.Redeem(tok, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "jwt-value", jwt)

	_, err = b.Redeem(tok, now.Add(time.Second))
	assert.Error(t, err, "a token must not be redeemable twice")
}

func TestExchangeBrokerExpiry(t *testing.T) {
	b := NewExchangeBroker()
	now := time.Now()
	tok, err := b.Mint("jwt-value", now)
	require.NoError(t, err)

	_, err = b.Redeem(tok, now.Add(61*time.Second))
	assert.Error(t, err)
}

func TestExchangeBrokerSweepDropsExpired(t *testing.T) {
	b := NewExchangeBroker()
	now := time.Now()
	_, err := b.Mint("jwt-value", now)
	require.NoError(t, err)

	b.Sweep(now.Add(61 * time.Second))
	assert.Empty(t, b.entries)
}
