package balancemgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrade/spotarb/internal/gateway"
)

func TestTickerOracleCachesWithinTTL(t *testing.T) {
	sim := gateway.NewSimGateway("venue-c", gateway.DefaultFeeConfig())
	sim.SeedTicker(gateway.Ticker{Symbol: "BTC/USDT", Bid: dec("100")})

	oracle := NewTickerOracle(sim, time.Minute)

	price, ok, err := oracle.Price(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(dec("100")))

	sim.SeedTicker(gateway.Ticker{Symbol: "BTC/USDT", Bid: dec("999")})
	price, ok, err = oracle.Price(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(dec("100")), "within TTL the oracle must not refetch")
}

func TestTickerOracleRefreshesAfterTTL(t *testing.T) {
	sim := gateway.NewSimGateway("venue-d", gateway.DefaultFeeConfig())
	sim.SeedTicker(gateway.Ticker{Symbol: "ETH/USDT", Bid: dec("10")})

	oracle := NewTickerOracle(sim, time.Millisecond)
	_, _, err := oracle.Price(context.Background(), "ETH/USDT")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	sim.SeedTicker(gateway.Ticker{Symbol: "ETH/USDT", Bid: dec("20")})

	price, ok, err := oracle.Price(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(dec("20")))
}

func TestTickerOracleMissingSymbol(t *testing.T) {
	sim := gateway.NewSimGateway("venue-e", gateway.DefaultFeeConfig())
	oracle := NewTickerOracle(sim, time.Minute)

	_, ok, err := oracle.Price(context.Background(), "NOPE/USDT")
	require.NoError(t, err)
	assert.False(t, ok)
}
