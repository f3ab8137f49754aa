// Package model holds the data model shared by every pipeline stage:
// opportunities, balances, transfer networks, and trade/execution logs.
// Types here are snapshotted, never mutated in place by more than one
// component at a time — each stage either produces a fresh value or
// enriches a copy.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityID identifies an opportunity by its (buy venue, sell venue,
// symbol) triple — the spec's identity for the stability table and the
// active-trades set.
type OpportunityID struct {
	BuyVenue  string
	SellVenue string
	Symbol    string
}

func (id OpportunityID) String() string {
	return fmt.Sprintf("%s|%s|%s", id.BuyVenue, id.SellVenue, id.Symbol)
}

// Opportunity is the central tuple the pipeline passes from the Scanner
// through the Analyzer to the Executor, accumulating enrichment fields as
// it goes.
type Opportunity struct {
	BuyVenue  string
	SellVenue string
	Symbol    string
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	GrossPct  decimal.Decimal

	// Enrichment fields, populated by the Analyzer.
	BuyFeePct           decimal.Decimal
	SellFeePct          decimal.Decimal
	WithdrawalFeeQuote  decimal.Decimal
	NetPct              decimal.Decimal
	PotentialNetworks   []NetworkOption
	ChosenNetwork       *NetworkOption
	StabilityCount      int
	IsStable            bool
	IsLiquid            bool
}

// ID returns the opportunity's identity tuple.
func (o *Opportunity) ID() OpportunityID {
	return OpportunityID{BuyVenue: o.BuyVenue, SellVenue: o.SellVenue, Symbol: o.Symbol}
}

// Validate enforces the construction-time invariant: 0 < buy < sell and
// gross_pct within [minGross, maxGross].
func (o *Opportunity) Validate(minGross, maxGross decimal.Decimal) error {
	if !o.BuyPrice.IsPositive() {
		return fmt.Errorf("model: buy price must be positive, got %s", o.BuyPrice)
	}
	if !o.SellPrice.IsPositive() {
		return fmt.Errorf("model: sell price must be positive, got %s", o.SellPrice)
	}
	if !o.BuyPrice.LessThan(o.SellPrice) {
		return fmt.Errorf("model: buy price %s must be < sell price %s", o.BuyPrice, o.SellPrice)
	}
	if o.GrossPct.LessThan(minGross) || o.GrossPct.GreaterThan(maxGross) {
		return fmt.Errorf("model: gross pct %s outside [%s, %s]", o.GrossPct, minGross, maxGross)
	}
	return nil
}

// TradeNotional is the configured quote-denominated size per arbitrage
// attempt; carried alongside an Opportunity during enrichment/selection
// so the depth check and executor share the same value.
type TradeNotional = decimal.Decimal

// Clone returns a deep-enough copy for safe mutation by a single caller
// (slices are copied; ChosenNetwork is copied by value).
func (o *Opportunity) Clone() *Opportunity {
	c := *o
	if o.PotentialNetworks != nil {
		c.PotentialNetworks = append([]NetworkOption(nil), o.PotentialNetworks...)
	}
	if o.ChosenNetwork != nil {
		n := *o.ChosenNetwork
		c.ChosenNetwork = &n
	}
	return &c
}

// Timestamped pairs a value with its observation time, used for the
// per-venue ticker cache.
type Timestamped[T any] struct {
	Value T
	At    time.Time
}
