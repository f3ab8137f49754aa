package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrade/spotarb/internal/analyzer"
	"github.com/axiomtrade/spotarb/internal/balancemgr"
	"github.com/axiomtrade/spotarb/internal/executor"
	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/rebalancer"
	"github.com/axiomtrade/spotarb/internal/scanner"
	"github.com/axiomtrade/spotarb/internal/tradelog"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// buildPipeline wires a full scanner -> analyzer -> executor chain over
// two SimGateways with a durable profitable spread on one symbol, the
// same shape executor_test.go's buildHappyPathExecutor uses for the
// executor alone.
func buildPipeline(t *testing.T, stabilityCycles int) (*scanner.Scanner, *analyzer.Analyzer, *executor.Executor, *gateway.SimGateway, *gateway.SimGateway) {
	t.Helper()

	alpha := gateway.NewSimGateway("alpha", gateway.DefaultFeeConfig())
	alpha.SeedMarket(gateway.Market{Symbol: "FOO/USDT", Active: true, Spot: true, TakerFeePct: dec("0.1")})
	alpha.SeedTicker(gateway.Ticker{Symbol: "FOO/USDT", Ask: dec("10"), Bid: dec("10")})
	alpha.SeedOrderBook(gateway.OrderBook{
		Symbol: "FOO/USDT",
		Asks:   []gateway.OrderBookLevel{{Price: dec("10"), Amount: dec("100")}},
		Bids:   []gateway.OrderBookLevel{{Price: dec("10"), Amount: dec("100")}},
	})
	alpha.SeedCurrency(gateway.Currency{
		Asset: "FOO",
		Networks: map[string]gateway.CurrencyNetwork{
			"BEP20": {Name: "BEP20(BSC)", Active: true, Withdraw: true, Deposit: true, Fee: dec("0.0001"), FeeCurrency: "FOO"},
		},
	})
	alpha.SeedBalance(gateway.AccountTrading, gateway.Balance{Asset: "USDT", Free: dec("1000"), Total: dec("1000")})
	alpha.SeedBalance(gateway.AccountTrading, gateway.Balance{Asset: "FOO", Free: dec("1000"), Total: dec("1000")})

	beta := gateway.NewSimGateway("beta", gateway.DefaultFeeConfig())
	beta.SeedMarket(gateway.Market{Symbol: "FOO/USDT", Active: true, Spot: true, TakerFeePct: dec("0.1")})
	beta.SeedTicker(gateway.Ticker{Symbol: "FOO/USDT", Ask: dec("12"), Bid: dec("12")})
	beta.SeedOrderBook(gateway.OrderBook{
		Symbol: "FOO/USDT",
		Asks:   []gateway.OrderBookLevel{{Price: dec("12"), Amount: dec("100")}},
		Bids:   []gateway.OrderBookLevel{{Price: dec("12"), Amount: dec("100")}},
	})
	beta.SeedCurrency(gateway.Currency{
		Asset: "FOO",
		Networks: map[string]gateway.CurrencyNetwork{
			"BEP20": {Name: "BEP20(BSC)", Active: true, Withdraw: true, Deposit: true, Fee: dec("0.0001"), FeeCurrency: "FOO"},
		},
	})

	venues := map[string]gateway.ExchangeGateway{"alpha": alpha, "beta": beta}

	sc := scanner.New(venues, "USDT", scanner.Bounds{MinGross: dec("0.1"), MaxGross: dec("50")}, zerolog.Nop())
	require.NoError(t, sc.Init(context.Background()))

	marketsCache := map[string]map[string]gateway.Market{}
	for id, gw := range venues {
		m, err := gw.LoadMarkets(context.Background())
		require.NoError(t, err)
		marketsCache[id] = m
	}
	marketsOf := func(venue, symbol string) (gateway.Market, bool) {
		m, ok := marketsCache[venue][symbol]
		return m, ok
	}

	policy := analyzer.NewPolicy()
	anCfg := analyzer.Config{TopN: 1, TradeNotional: dec("500"), MinLiquidity: dec("1"), SlippagePct: dec("5")}
	an := analyzer.New(stabilityCycles, policy, anCfg, venues, marketsOf, nil, zerolog.Nop())

	oracle := balancemgr.NewTickerOracle(alpha, time.Minute)
	balances := balancemgr.New(venues, oracle, "USDT", nil, nil, zerolog.Nop())

	rbCfg := rebalancer.Config{
		QuoteAsset:        "USDT",
		MinLiquidity:      dec("0"),
		SlippagePct:       dec("5"),
		OrderWait:         gateway.OrderWaitConfig{MaxAttempts: 3, Delay: 5 * time.Millisecond},
		JITArrival:        balancemgr.ArrivalWaitConfig{CheckInterval: 5 * time.Millisecond, MaxWait: 200 * time.Millisecond},
		CrossVenueArrival: balancemgr.ArrivalWaitConfig{CheckInterval: 5 * time.Millisecond, MaxWait: 300 * time.Millisecond},
	}
	rb := rebalancer.New(venues, balances, policy, nil, func(string) map[string]gateway.Market { return nil }, func(string, string) (gateway.Currency, bool) { return gateway.Currency{}, false }, rbCfg, zerolog.Nop())

	exCfg := executor.Config{
		QuoteAsset:         "USDT",
		TradeAmount:        dec("500"),
		MinEffectiveTrade:  dec("100"),
		JITMinConversion:   dec("10"),
		PreferCostBasedBuy: true,
		OrderWait:          rbCfg.OrderWait,
		JITArrival:         rbCfg.JITArrival,
		CrossVenueArrival:  rbCfg.CrossVenueArrival,
	}
	ex := executor.New(venues, balances, rb, marketsOf, nil, exCfg, nil, zerolog.Nop())

	return sc, an, ex, alpha, beta
}

func TestCycleExecutesSelectedOpportunityAndAppendsTradeLog(t *testing.T) {
	sc, an, ex, _, beta := buildPipeline(t, 1)

	dir := t.TempDir()
	tl, err := tradelog.Open(filepath.Join(dir, "trades.jsonl"), zerolog.Nop())
	require.NoError(t, err)
	defer tl.Close()

	s := New(sc, an, ex, tl, Config{CycleSleep: time.Millisecond}, zerolog.Nop())

	go func() {
		time.Sleep(30 * time.Millisecond)
		beta.SeedBalance(gateway.AccountWithdrawal, gateway.Balance{Asset: "FOO", Free: dec("50"), Total: dec("50")})
	}()

	traded, err := s.Cycle(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, traded)

	data, err := os.ReadFile(filepath.Join(dir, "trades.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"BuyVenue":"alpha"`)
	assert.Contains(t, string(data), `"Status":"COMPLETED_SUCCESS"`)
}

func TestCycleReturnsNoTradeWhenNoOpportunitySurvivesStability(t *testing.T) {
	// STABILITY_CYCLES=2 means a single cycle's observation is never
	// enough by itself for the opportunity to be selected.
	sc, an, ex, _, _ := buildPipeline(t, 2)
	s := New(sc, an, ex, nil, Config{CycleSleep: time.Millisecond}, zerolog.Nop())

	traded, err := s.Cycle(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, traded)
}

func TestRunStopsAfterConfiguredCycleCount(t *testing.T) {
	sc, an, ex, _, _ := buildPipeline(t, 1)
	s := New(sc, an, ex, nil, Config{CycleSleep: time.Millisecond, CycleCount: 1}, zerolog.Nop())

	err := s.Run(context.Background())
	assert.NoError(t, err)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	sc, an, ex, _, _ := buildPipeline(t, 1)
	s := New(sc, an, ex, nil, Config{CycleSleep: time.Second}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
