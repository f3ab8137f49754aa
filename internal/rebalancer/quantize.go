package rebalancer

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/money"
)

// fallbackQuantum is used when neither currency-level nor market-level
// precision can be resolved for an asset (§4.4.1).
var fallbackQuantum = money.QuantumFromDecimalPlaces(8)

// InferQuantum resolves the rounding quantum for asset on one venue, in
// priority order: published currency precision, then any market's amount
// precision involving asset, then the 1e-8 fallback.
func InferQuantum(currency *gateway.Currency, markets map[string]gateway.Market, asset string) decimal.Decimal {
	if currency != nil && currency.Precision.IsPositive() {
		return interpretPrecision(currency.Precision, currency.PrecisionMode)
	}

	for symbol, m := range markets {
		if !involvesAsset(symbol, asset) {
			continue
		}
		if m.AmountPrecision.IsPositive() {
			return interpretPrecision(m.AmountPrecision, m.PrecisionMode)
		}
	}

	return fallbackQuantum
}

func involvesAsset(symbol, asset string) bool {
	parts := strings.SplitN(symbol, "/", 2)
	return len(parts) == 2 && (parts[0] == asset || parts[1] == asset)
}

// interpretPrecision converts a published precision value into a rounding
// quantum according to mode. HEURISTIC treats values >= 1 as a decimal-place
// count and anything smaller as an already-expressed tick size, which is
// the common shape venues publish when they don't declare a mode.
func interpretPrecision(value decimal.Decimal, mode gateway.PrecisionMode) decimal.Decimal {
	switch mode {
	case gateway.PrecisionTickSize:
		return value
	case gateway.PrecisionDecimalPlaces:
		return money.QuantumFromDecimalPlaces(int32(value.IntPart()))
	default:
		if value.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return money.QuantumFromDecimalPlaces(int32(value.IntPart()))
		}
		return value
	}
}

// Quantize rounds amount down to asset's inferred quantum on the venue
// described by currency/markets, per the round-trip law in §4.4.1.
func Quantize(currency *gateway.Currency, markets map[string]gateway.Market, asset string, amount decimal.Decimal) decimal.Decimal {
	return money.QuantizeDown(amount, InferQuantum(currency, markets, asset))
}
