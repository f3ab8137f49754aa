package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func equalWithinEpsilon(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(dec("0.00000001"))
}

func TestExchangeBalanceValidate(t *testing.T) {
	b := &ExchangeBalance{
		Venue: "binance",
		Assets: map[string]AssetBalance{
			"BTC":  {Asset: "BTC", Free: dec("1"), Locked: dec("0"), Total: dec("1"), USDValue: dec("60000")},
			"USDT": {Asset: "USDT", Free: dec("100"), Locked: dec("0"), Total: dec("100"), USDValue: dec("100")},
		},
		TotalUSD: dec("60100"),
	}
	assert.NoError(t, b.Validate(equalWithinEpsilon))
}

func TestExchangeBalanceValidateMismatch(t *testing.T) {
	b := &ExchangeBalance{
		Assets: map[string]AssetBalance{
			"BTC": {Asset: "BTC", Free: dec("1"), Total: dec("1"), USDValue: dec("60000")},
		},
		TotalUSD: dec("1"),
	}
	assert.Error(t, b.Validate(equalWithinEpsilon))
}

func TestExchangeBalanceValidateFreeExceedsTotal(t *testing.T) {
	b := &ExchangeBalance{
		Assets: map[string]AssetBalance{
			"BTC": {Asset: "BTC", Free: dec("2"), Total: dec("1"), USDValue: dec("60000")},
		},
		TotalUSD: dec("60000"),
	}
	assert.Error(t, b.Validate(equalWithinEpsilon))
}

func TestExchangeBalanceFree(t *testing.T) {
	b := &ExchangeBalance{Assets: map[string]AssetBalance{"BTC": {Free: dec("1.5")}}}
	assert.True(t, b.Free("BTC").Equal(dec("1.5")))
	assert.True(t, b.Free("ETH").Equal(decimal.Zero))
}
