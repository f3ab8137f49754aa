package executor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrade/spotarb/internal/analyzer"
	"github.com/axiomtrade/spotarb/internal/balancemgr"
	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
	"github.com/axiomtrade/spotarb/internal/rebalancer"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestExecuteRejectsIlliquidOpportunity(t *testing.T) {
	e := New(nil, nil, nil, nil, nil, Config{}, nil, zerolog.Nop())
	opp := &model.Opportunity{BuyVenue: "alpha", SellVenue: "beta", Symbol: "FOO/USDT"}

	log, err := e.Execute(context.Background(), opp)
	require.Error(t, err)
	require.NotNil(t, log)
	assert.Equal(t, model.StateSetupErrorNoLiquidity, log.Status)
}

func TestExecuteRejectsMissingChosenNetwork(t *testing.T) {
	e := New(nil, nil, nil, nil, nil, Config{}, nil, zerolog.Nop())
	opp := &model.Opportunity{BuyVenue: "alpha", SellVenue: "beta", Symbol: "FOO/USDT", IsLiquid: true}

	log, err := e.Execute(context.Background(), opp)
	require.Error(t, err)
	assert.Equal(t, model.StateSetupErrorNoNetwork, log.Status)
}

func TestExecuteRejectsConcurrentExecutionOfSameIdentity(t *testing.T) {
	e := New(nil, nil, nil, nil, nil, Config{}, nil, zerolog.Nop())
	opp := &model.Opportunity{
		BuyVenue: "alpha", SellVenue: "beta", Symbol: "FOO/USDT",
		IsLiquid:      true,
		ChosenNetwork: &model.NetworkOption{VenueNetworkName: "ERC20", NormalizedName: "ERC20"},
	}

	require.True(t, e.tryAcquire(opp.ID()))
	defer e.release(opp.ID())

	_, err := e.Execute(context.Background(), opp)
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

// buildHappyPathExecutor wires a two-venue Executor over SimGateways where
// the sell venue's price comfortably clears the buy venue's, so the full
// buy -> transfer -> sell sequence lands on COMPLETED_SUCCESS.
func buildHappyPathExecutor(t *testing.T) (*Executor, *gateway.SimGateway, *gateway.SimGateway) {
	t.Helper()

	alpha := gateway.NewSimGateway("alpha", gateway.DefaultFeeConfig())
	alpha.SeedTicker(gateway.Ticker{Symbol: "FOO/USDT", Bid: dec("10"), Ask: dec("10")})
	alpha.SeedBalance(gateway.AccountTrading, gateway.Balance{Asset: "USDT", Free: dec("1000"), Total: dec("1000")})
	alpha.SeedBalance(gateway.AccountTrading, gateway.Balance{Asset: "FOO", Free: dec("1000"), Total: dec("1000")})

	beta := gateway.NewSimGateway("beta", gateway.DefaultFeeConfig())
	beta.SeedTicker(gateway.Ticker{Symbol: "FOO/USDT", Bid: dec("12"), Ask: dec("12")})

	venues := map[string]gateway.ExchangeGateway{"alpha": alpha, "beta": beta}
	oracle := balancemgr.NewTickerOracle(alpha, time.Minute)
	balances := balancemgr.New(venues, oracle, "USDT", nil, nil, zerolog.Nop())

	rbCfg := rebalancer.Config{
		QuoteAsset:  "USDT",
		MinLiquidity: dec("0"),
		SlippagePct: dec("5"),
		OrderWait:   gateway.OrderWaitConfig{MaxAttempts: 3, Delay: 5 * time.Millisecond},
		JITArrival:  balancemgr.ArrivalWaitConfig{CheckInterval: 5 * time.Millisecond, MaxWait: 200 * time.Millisecond},
		CrossVenueArrival: balancemgr.ArrivalWaitConfig{CheckInterval: 5 * time.Millisecond, MaxWait: 300 * time.Millisecond},
	}
	rb := rebalancer.New(venues, balances, analyzer.NewPolicy(), nil, func(string) map[string]gateway.Market { return nil }, func(string, string) (gateway.Currency, bool) { return gateway.Currency{}, false }, rbCfg, zerolog.Nop())

	cfg := Config{
		QuoteAsset:         "USDT",
		TradeAmount:        dec("500"),
		MinEffectiveTrade:  dec("100"),
		JITMinConversion:   dec("10"),
		PreferCostBasedBuy: true,
		OrderWait:          rbCfg.OrderWait,
		JITArrival:         rbCfg.JITArrival,
		CrossVenueArrival:  rbCfg.CrossVenueArrival,
	}

	e := New(venues, balances, rb, nil, nil, cfg, nil, zerolog.Nop())
	return e, alpha, beta
}

func TestExecuteHappyPathReachesCompletedSuccess(t *testing.T) {
	e, _, beta := buildHappyPathExecutor(t)

	opp := &model.Opportunity{
		BuyVenue: "alpha", SellVenue: "beta", Symbol: "FOO/USDT",
		BuyPrice: dec("10"), SellPrice: dec("12"), GrossPct: dec("20"),
		IsLiquid:      true,
		ChosenNetwork: &model.NetworkOption{VenueNetworkName: "ERC20", NormalizedName: "ERC20"},
	}

	// Simulate the on-chain transfer landing on the sell venue partway
	// through the executor's arrival wait.
	go func() {
		time.Sleep(30 * time.Millisecond)
		beta.SeedBalance(gateway.AccountWithdrawal, gateway.Balance{Asset: "FOO", Free: dec("50"), Total: dec("50")})
	}()

	log, err := e.Execute(context.Background(), opp)
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Equal(t, model.StateCompletedSuccess, log.Status)
	assert.True(t, log.FinalNetProfitQuote.GreaterThan(decimal.Zero), "expected a positive profit, got %s", log.FinalNetProfitQuote)
	assert.True(t, log.Details.State.Successful())
}

func TestExecuteTransferLegArrivalTimeoutIsTerminal(t *testing.T) {
	e, _, _ := buildHappyPathExecutor(t)
	// No goroutine seeds the arrival balance: the sell venue's withdrawal
	// account for FOO never increases, so the wait must time out.

	opp := &model.Opportunity{
		BuyVenue: "alpha", SellVenue: "beta", Symbol: "FOO/USDT",
		BuyPrice: dec("10"), SellPrice: dec("12"), GrossPct: dec("20"),
		IsLiquid:      true,
		ChosenNetwork: &model.NetworkOption{VenueNetworkName: "ERC20", NormalizedName: "ERC20"},
	}

	log, err := e.Execute(context.Background(), opp)
	require.Error(t, err)
	assert.Equal(t, model.StateTransferLegFailedArrival, log.Status)
	assert.True(t, log.Details.State.Failed())
}

func TestSeverityForEscalatesInFlightTransferFailures(t *testing.T) {
	assert.Equal(t, gateway.AlertSeverityCritical, severityFor(model.StateTransferLegFailedArrival))
	assert.Equal(t, gateway.AlertSeverityWarning, severityFor(model.StateTransferLegFailedNoNetwork), "no withdrawal was ever placed, so this isn't in-flight")
	assert.Equal(t, gateway.AlertSeverityWarning, severityFor(model.StateBuyLegFailed))
}

func TestDecimalMax(t *testing.T) {
	assert.True(t, decimalMax(dec("1"), dec("2")).Equal(dec("2")))
	assert.True(t, decimalMax(dec("5"), dec("2")).Equal(dec("5")))
}

func TestBuildLogComputesProfitOnlyForCompletedStates(t *testing.T) {
	e := New(nil, nil, nil, nil, nil, Config{QuoteAsset: "USDT"}, nil, zerolog.Nop())
	opp := &model.Opportunity{BuyVenue: "alpha", SellVenue: "beta", Symbol: "FOO/USDT"}

	failed := &model.TradeExecutionDetails{State: model.StateBuyLegFailed}
	log := e.buildLog(opp, failed, dec("500"))
	assert.True(t, log.FinalNetProfitQuote.IsZero(), "a failed attempt records no profit figure")

	succeeded := &model.TradeExecutionDetails{
		State:           model.StateCompletedSuccess,
		SellFilledQty:   dec("50"),
		SellFilledPrice: dec("12"),
	}
	log = e.buildLog(opp, succeeded, dec("500"))
	assert.True(t, log.FinalNetProfitQuote.Equal(dec("100")), "50*12 - 500 = 100, got %s", log.FinalNetProfitQuote)
	assert.True(t, log.FinalNetProfitPct.Equal(dec("20")))
}
