package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NetworkOption describes one withdrawal/deposit rail for a currency on a
// venue, after alias normalization.
type NetworkOption struct {
	VenueNetworkName string // the venue's own label, e.g. "BEP20(BSC)"
	NormalizedName   string // canonical rail identity, e.g. "BEP20"
	WithdrawEnabled  bool
	DepositEnabled   bool
	FeeNative        decimal.Decimal
	FeeCurrency      string // asset FeeNative is denominated in; may differ from the withdrawn asset
	MinWithdraw      decimal.Decimal
	ArrivalEstimate  string // operator-facing only; not used for control flow
}

// DefaultNormalizedName is the sentinel used when a venue's network label
// cannot be mapped to a known rail. Per the data-model invariant, two
// options both carrying this name are never considered a match.
const DefaultNormalizedName = "UNKNOWN"

// Matches reports whether two network options refer to the same rail.
// DEFAULT/UNKNOWN normalized names never constitute a match, even against
// each other.
func (n NetworkOption) Matches(other NetworkOption) bool {
	if n.NormalizedName == DefaultNormalizedName || other.NormalizedName == DefaultNormalizedName {
		return false
	}
	return n.NormalizedName == other.NormalizedName
}

// Validate enforces fee_native >= 0.
func (n NetworkOption) Validate() error {
	if n.FeeNative.IsNegative() {
		return fmt.Errorf("model: network %s has a negative fee_native", n.VenueNetworkName)
	}
	return nil
}
