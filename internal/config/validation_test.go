package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// validConfig returns a configuration that passes every validator, for
// tests to mutate a single field away from.
func validConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:         "spotarb",
			Environment:  "development",
			LogLevel:     "info",
			MetricsPort:  9100,
			TradeLogPath: "data/trades.jsonl",
		},
		Trading: TradingConfig{
			QuoteAsset:            "USDT",
			DryRun:                true,
			MinGrossPct:           dec("0.3"),
			MaxGrossPct:           dec("10"),
			MinNetPct:             dec("0.1"),
			MinLiquidity:          dec("500"),
			SlippagePct:           dec("0.5"),
			TradeAmount:           dec("100"),
			MinEffectiveTrade:     dec("20"),
			StabilityCycles:       3,
			TopN:                  1,
			CycleCount:            0,
			CycleSleep:            10 * time.Second,
			JITFundingWait:        2 * time.Minute,
			BaseAssetTransferWait: 6 * time.Minute,
			OrderWaitMaxAttempts:  5,
		},
		Venues: map[string]VenueConfig{
			"alpha": {Kind: "sim"},
			"beta":  {Kind: "sim"},
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresQuoteAsset(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.QuoteAsset = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trading.quote_asset")
}

func TestValidateRequiresAtLeastTwoVenues(t *testing.T) {
	cfg := validConfig()
	cfg.Venues = map[string]VenueConfig{"alpha": {Kind: "sim"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venues")
}

func TestValidateRejectsInvalidEnvironment(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "staging-ish"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.environment")
}

func TestValidateRejectsNonPositiveTradeAmount(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.TradeAmount = dec("0")
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trading.trade_amount")
}

func TestValidateRejectsMinEffectiveTradeAboveTradeAmount(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.MinEffectiveTrade = dec("200")
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trading.min_effective_trade")
}

func TestValidateRejectsBaseAssetTransferWaitBelowThreeXJIT(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.BaseAssetTransferWait = cfg.Trading.JITFundingWait // equal, not >= 3x
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_asset_transfer_wait")
}

func TestValidateRequiresLiveCredentialsOutsideDryRun(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.DryRun = false
	cfg.Venues["alpha"] = VenueConfig{Kind: "binance"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestValidateAllowsBinanceVenueInDryRunWithoutCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Venues["alpha"] = VenueConfig{Kind: "binance"}
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsEnforcedWhitelistWithNoEntries(t *testing.T) {
	cfg := validConfig()
	cfg.Network.EnforceWhitelist = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network.whitelist")
}

func TestValidateRejectsNegativeStaticFee(t *testing.T) {
	cfg := validConfig()
	cfg.Network.StaticFees = []StaticFeeConfig{{Asset: "FOO", Network: "ERC20", FeeNative: dec("-1")}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network.static_fees")
}

func TestValidateProductionRejectsTestnetVenue(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "production"
	cfg.Venues["alpha"] = VenueConfig{Kind: "sim", Testnet: true}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "testnet")
}

func TestValidationErrorsFormatsMultipleFailures(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "first"},
		{Field: "b", Message: "second"},
	}
	msg := errs.Error()
	assert.Contains(t, msg, "2 error(s)")
	assert.Contains(t, msg, "a: first")
	assert.Contains(t, msg, "b: second")
}

func TestValidationErrorsEmptyIsEmptyString(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "", errs.Error())
}
