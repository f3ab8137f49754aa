package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AssetBalance is a single currency balance on one venue.
type AssetBalance struct {
	Asset    string
	Free     decimal.Decimal
	Locked   decimal.Decimal
	Total    decimal.Decimal
	USDValue decimal.Decimal
}

// ExchangeBalance is a full venue snapshot produced by the BalanceManager.
type ExchangeBalance struct {
	Venue    string
	Assets   map[string]AssetBalance
	TotalUSD decimal.Decimal
}

// Validate enforces total_usd = sum(asset.usd_value) within Epsilon, and
// per-asset free <= total.
func (b *ExchangeBalance) Validate(equal func(a, c decimal.Decimal) bool) error {
	sum := decimal.Zero
	for asset, ab := range b.Assets {
		if ab.Free.GreaterThan(ab.Total) {
			return fmt.Errorf("model: asset %s free %s exceeds total %s", asset, ab.Free, ab.Total)
		}
		sum = sum.Add(ab.USDValue)
	}
	if !equal(sum, b.TotalUSD) {
		return fmt.Errorf("model: total_usd %s does not match sum of asset usd values %s", b.TotalUSD, sum)
	}
	return nil
}

// Free returns the free balance of asset on this venue, or zero if absent.
func (b *ExchangeBalance) Free(asset string) decimal.Decimal {
	if ab, ok := b.Assets[asset]; ok {
		return ab.Free
	}
	return decimal.Zero
}
