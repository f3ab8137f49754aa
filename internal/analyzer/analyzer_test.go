package analyzer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
)

func newTestVenue(t *testing.T, id string, ask, bid string) *gateway.SimGateway {
	t.Helper()
	sim := gateway.NewSimGateway(id, gateway.DefaultFeeConfig())
	sim.SeedMarket(gateway.Market{Symbol: "BTC/USDT", Active: true, Spot: true, TakerFeePct: dec("0.1")})
	sim.SeedTicker(gateway.Ticker{Symbol: "BTC/USDT", Ask: dec(ask), Bid: dec(bid)})
	sim.SeedOrderBook(gateway.OrderBook{
		Symbol: "BTC/USDT",
		Asks:   []gateway.OrderBookLevel{{Price: dec(ask), Amount: dec("10")}},
		Bids:   []gateway.OrderBookLevel{{Price: dec(bid), Amount: dec("10")}},
	})
	sim.SeedCurrency(gateway.Currency{
		Asset: "BTC",
		Networks: map[string]gateway.CurrencyNetwork{
			"BEP20": {Name: "BEP20(BSC)", Active: true, Withdraw: true, Deposit: true, Fee: dec("0.0001"), FeeCurrency: "BTC"},
		},
	})
	return sim
}

func marketsOfVenues(t *testing.T, venues map[string]gateway.ExchangeGateway) MarketsOf {
	t.Helper()
	cache := make(map[string]map[string]gateway.Market)
	for id, gw := range venues {
		m, err := gw.LoadMarkets(context.Background())
		require.NoError(t, err)
		cache[id] = m
	}
	return func(venue, symbol string) (gateway.Market, bool) {
		m, ok := cache[venue][symbol]
		return m, ok
	}
}

func TestAnalyzeSelectsStableEnrichedOpportunity(t *testing.T) {
	cheap := newTestVenue(t, "cheap", "100", "99")
	pricey := newTestVenue(t, "pricey", "106", "105")

	venues := map[string]gateway.ExchangeGateway{"cheap": cheap, "pricey": pricey}
	policy := NewPolicy()
	cfg := Config{TopN: 5, TradeNotional: dec("100"), MinLiquidity: dec("1"), SlippagePct: dec("5")}
	a := New(1, policy, cfg, venues, marketsOfVenues(t, venues), nil, zerolog.Nop())

	opp := &model.Opportunity{BuyVenue: "cheap", SellVenue: "pricey", Symbol: "BTC/USDT", BuyPrice: dec("100"), SellPrice: dec("105"), GrossPct: dec("5")}

	selected, err := a.Analyze(context.Background(), []*model.Opportunity{opp})
	require.NoError(t, err)
	require.NotNil(t, selected)
	assert.Equal(t, "BEP20", selected.ChosenNetwork.NormalizedName)
	assert.True(t, selected.IsLiquid)
	assert.True(t, selected.NetPct.LessThan(selected.GrossPct), "fees must reduce net below gross")
}

func TestAnalyzeRequiresStabilityAcrossCycles(t *testing.T) {
	cheap := newTestVenue(t, "cheap", "100", "99")
	pricey := newTestVenue(t, "pricey", "106", "105")
	venues := map[string]gateway.ExchangeGateway{"cheap": cheap, "pricey": pricey}
	policy := NewPolicy()
	cfg := Config{TopN: 5, TradeNotional: dec("100"), MinLiquidity: dec("1"), SlippagePct: dec("5")}
	a := New(2, policy, cfg, venues, marketsOfVenues(t, venues), nil, zerolog.Nop())

	opp := &model.Opportunity{BuyVenue: "cheap", SellVenue: "pricey", Symbol: "BTC/USDT", BuyPrice: dec("100"), SellPrice: dec("105"), GrossPct: dec("5")}

	selected, err := a.Analyze(context.Background(), []*model.Opportunity{opp})
	require.NoError(t, err)
	assert.Nil(t, selected, "must not select before reaching STABILITY_CYCLES")
}

func TestAnalyzeRejectsLeveragedTokenSymbols(t *testing.T) {
	cheap := gateway.NewSimGateway("cheap", gateway.DefaultFeeConfig())
	pricey := gateway.NewSimGateway("pricey", gateway.DefaultFeeConfig())
	venues := map[string]gateway.ExchangeGateway{"cheap": cheap, "pricey": pricey}
	policy := NewPolicy()
	cfg := Config{TopN: 5, TradeNotional: dec("100"), MinLiquidity: dec("1"), SlippagePct: dec("5")}
	a := New(1, policy, cfg, venues, marketsOfVenues(t, venues), nil, zerolog.Nop())

	opp := &model.Opportunity{BuyVenue: "cheap", SellVenue: "pricey", Symbol: "BTC3L/USDT", BuyPrice: dec("100"), SellPrice: dec("105"), GrossPct: dec("5")}

	selected, err := a.Analyze(context.Background(), []*model.Opportunity{opp})
	require.NoError(t, err)
	assert.Nil(t, selected)
}

func TestAnalyzeRejectsPathBlacklistedNetwork(t *testing.T) {
	cheap := newTestVenue(t, "cheap", "100", "99")
	pricey := newTestVenue(t, "pricey", "106", "105")
	venues := map[string]gateway.ExchangeGateway{"cheap": cheap, "pricey": pricey}
	policy := NewPolicy()
	policy.BlacklistPath("BTC", "cheap", "pricey", "BEP20")
	cfg := Config{TopN: 5, TradeNotional: dec("100"), MinLiquidity: dec("1"), SlippagePct: dec("5")}
	a := New(1, policy, cfg, venues, marketsOfVenues(t, venues), nil, zerolog.Nop())

	opp := &model.Opportunity{BuyVenue: "cheap", SellVenue: "pricey", Symbol: "BTC/USDT", BuyPrice: dec("100"), SellPrice: dec("105"), GrossPct: dec("5")}

	selected, err := a.Analyze(context.Background(), []*model.Opportunity{opp})
	require.NoError(t, err)
	assert.Nil(t, selected, "the only feasible network is blacklisted on this path")
}
