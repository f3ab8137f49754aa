package scanner

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrade/spotarb/internal/gateway"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newVenue(id string) *gateway.SimGateway {
	return gateway.NewSimGateway(id, gateway.DefaultFeeConfig())
}

func TestInitComputesCommonSpotPairsExcludingLeveragedAndInactive(t *testing.T) {
	a := newVenue("venue-a")
	b := newVenue("venue-b")

	a.SeedMarket(gateway.Market{Symbol: "BTC/USDT", Active: true, Spot: true})
	a.SeedMarket(gateway.Market{Symbol: "ETH/USDT", Active: true, Spot: true})
	a.SeedMarket(gateway.Market{Symbol: "BTC3L/USDT", Active: true, Spot: true}) // leveraged, excluded
	a.SeedMarket(gateway.Market{Symbol: "SOL/USDT", Active: false, Spot: true})  // inactive, excluded

	b.SeedMarket(gateway.Market{Symbol: "BTC/USDT", Active: true, Spot: true})
	b.SeedMarket(gateway.Market{Symbol: "SOL/USDT", Active: true, Spot: true}) // not common with a

	venues := map[string]gateway.ExchangeGateway{"venue-a": a, "venue-b": b}
	s := New(venues, "USDT", Bounds{MinGross: dec("0"), MaxGross: dec("100")}, zerolog.Nop())

	require.NoError(t, s.Init(context.Background()))

	pairs := s.commonPairs
	assert.ElementsMatch(t, []string{"BTC/USDT"}, pairs[pairKey{"venue-a", "venue-b"}])
	assert.ElementsMatch(t, []string{"BTC/USDT"}, pairs[pairKey{"venue-b", "venue-a"}])
}

func TestScanOnceProducesOpportunityWithinBounds(t *testing.T) {
	cheap := newVenue("cheap")
	pricey := newVenue("pricey")

	cheap.SeedMarket(gateway.Market{Symbol: "BTC/USDT", Active: true, Spot: true})
	pricey.SeedMarket(gateway.Market{Symbol: "BTC/USDT", Active: true, Spot: true})

	cheap.SeedTicker(gateway.Ticker{Symbol: "BTC/USDT", Ask: dec("100"), Bid: dec("99")})
	pricey.SeedTicker(gateway.Ticker{Symbol: "BTC/USDT", Ask: dec("106"), Bid: dec("105")})

	venues := map[string]gateway.ExchangeGateway{"cheap": cheap, "pricey": pricey}
	s := New(venues, "USDT", Bounds{MinGross: dec("0.1"), MaxGross: dec("10")}, zerolog.Nop())
	require.NoError(t, s.Init(context.Background()))

	opps, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, opps)

	var found bool
	for _, o := range opps {
		if o.BuyVenue == "cheap" && o.SellVenue == "pricey" {
			found = true
			assert.True(t, o.BuyPrice.Equal(dec("100")))
			assert.True(t, o.SellPrice.Equal(dec("105")))
			assert.True(t, o.GrossPct.GreaterThan(dec("0")))
		}
	}
	assert.True(t, found, "expected a cheap->pricey opportunity")
}

func TestScanOnceRejectsOutOfBoundsSpread(t *testing.T) {
	a := newVenue("a")
	b := newVenue("b")
	a.SeedMarket(gateway.Market{Symbol: "BTC/USDT", Active: true, Spot: true})
	b.SeedMarket(gateway.Market{Symbol: "BTC/USDT", Active: true, Spot: true})

	a.SeedTicker(gateway.Ticker{Symbol: "BTC/USDT", Ask: dec("100"), Bid: dec("99")})
	b.SeedTicker(gateway.Ticker{Symbol: "BTC/USDT", Ask: dec("100.05"), Bid: dec("100.04")})

	venues := map[string]gateway.ExchangeGateway{"a": a, "b": b}
	// spread is well under 1%, MinGross excludes it
	s := New(venues, "USDT", Bounds{MinGross: dec("1"), MaxGross: dec("10")}, zerolog.Nop())
	require.NoError(t, s.Init(context.Background()))

	opps, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestScanOnceSkipsInvertedBook(t *testing.T) {
	a := newVenue("a")
	b := newVenue("b")
	a.SeedMarket(gateway.Market{Symbol: "BTC/USDT", Active: true, Spot: true})
	b.SeedMarket(gateway.Market{Symbol: "BTC/USDT", Active: true, Spot: true})

	// a's ask is above b's bid in both directions: no crossing spread
	a.SeedTicker(gateway.Ticker{Symbol: "BTC/USDT", Ask: dec("100"), Bid: dec("99")})
	b.SeedTicker(gateway.Ticker{Symbol: "BTC/USDT", Ask: dec("100.5"), Bid: dec("99.5")})

	venues := map[string]gateway.ExchangeGateway{"a": a, "b": b}
	s := New(venues, "USDT", Bounds{MinGross: dec("0"), MaxGross: dec("10")}, zerolog.Nop())
	require.NoError(t, s.Init(context.Background()))

	opps, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opps)
}
