// Package leverage filters leveraged/derivative token symbols out of the
// spot arbitrage universe — tokens like BTCUP, ETH3L, or BTCBULL track a
// multiple of an underlying's move rather than the underlying itself, and
// trading them as if they were spot BTC or ETH would silently corrupt the
// pipeline's price comparisons.
package leverage

import "regexp"

// patterns enumerates the known leveraged-token naming conventions (§6).
// Any match marks the symbol as leveraged, so the order does not matter;
// the last pattern also covers the 1-5 range of the first.
var patterns = []*regexp.Regexp{
	// Numeric-leverage short/long suffix, e.g. BTC3L, ETH5S.
	regexp.MustCompile(`(?i)^[A-Z0-9]{1,10}[1-5][SL]$`),
	// Rebalancing up/down tokens, e.g. BTCUP, ETHDOWN.
	regexp.MustCompile(`(?i)^[A-Z0-9]{1,10}(UP|DOWN)$`),
	// Bull/bear tokens, e.g. BTCBULL, ETHBEAR.
	regexp.MustCompile(`(?i)^[A-Z0-9]{1,10}(BULL|BEAR)$`),
	// Any other digit+L/S leverage suffix not covered by the narrower
	// 1-5 range above.
	regexp.MustCompile(`(?i)^[A-Z0-9]{1,10}[0-9][SL]$`),
}

// IsLeveraged reports whether base matches a known leveraged-token naming
// convention. base should be the bare asset code (e.g. "BTC3L"), not a
// full "BASE/QUOTE" symbol.
func IsLeveraged(base string) bool {
	for _, p := range patterns {
		if p.MatchString(base) {
			return true
		}
	}
	return false
}
