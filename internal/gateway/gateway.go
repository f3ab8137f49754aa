// Package gateway defines the ExchangeGateway capability (§6) that the
// rest of the pipeline depends on, plus the two concrete implementations:
// a live adapter over a real venue client and a deterministic simulator
// used under DRY_RUN.
package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeGateway is the venue-agnostic capability every other component
// consumes. Implementations are expected to be safe for concurrent calls;
// the pipeline shares one instance per venue across a cycle's fan-out.
type ExchangeGateway interface {
	// Venue returns this gateway's configured venue id, used as a map key
	// and a log field everywhere up the stack.
	Venue() string

	LoadMarkets(ctx context.Context) (map[string]Market, error)
	FetchTickers(ctx context.Context, symbols []string) (map[string]Ticker, error)
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)

	FetchBalance(ctx context.Context, kind AccountKind) (map[string]Balance, error)
	FetchCurrencies(ctx context.Context) (map[string]Currency, error)

	CreateMarketBuyOrder(ctx context.Context, symbol string, baseAmount decimal.Decimal) (Order, error)
	CreateMarketBuyOrderWithCost(ctx context.Context, symbol string, quoteCost decimal.Decimal) (Order, error)
	CreateMarketSellOrder(ctx context.Context, symbol string, baseAmount decimal.Decimal) (Order, error)
	FetchOrder(ctx context.Context, orderID, symbol string) (Order, error)
	CancelOrder(ctx context.Context, orderID, symbol string) (Order, error)

	// Transfer moves funds between account-type purposes on the same
	// venue. Returns ErrNotSupported if the venue has no such concept
	// (§6: "optional; signal absence").
	Transfer(ctx context.Context, asset string, amount decimal.Decimal, fromKind, toKind AccountKind) error
	Withdraw(ctx context.Context, asset string, amount decimal.Decimal, address, tag, network string) (string, error)

	// FetchDepositAddress and CreateDepositAddress return ErrNotSupported
	// when the venue has no deposit-address API at all.
	FetchDepositAddress(ctx context.Context, asset, network string) (DepositAddress, error)
	CreateDepositAddress(ctx context.Context, asset, network string) (DepositAddress, error)

	// Capabilities reports which optional calls this venue honors.
	Capabilities() Capabilities

	// SetTimeout overrides the per-call timeout used internally for
	// requests this gateway issues.
	SetTimeout(d time.Duration)
}

// Capabilities mirrors the ExchangeGateway's has_* capability flags (§6).
type Capabilities struct {
	HasTransfer             bool
	HasFetchDepositAddress  bool
	HasCreateDepositAddress bool
	HasOrderBook            bool
	HasCostBasedMarketBuy   bool
}

// ErrNotSupported is returned by an optional capability a venue lacks.
var ErrNotSupported = notSupportedError{}

type notSupportedError struct{}

func (notSupportedError) Error() string { return "gateway: operation not supported by this venue" }
