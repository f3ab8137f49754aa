package gateway

import (
	"time"

	"github.com/shopspring/decimal"
)

// PrecisionMode selects how a currency's published precision value is
// interpreted (§4.4.1).
type PrecisionMode string

const (
	PrecisionTickSize    PrecisionMode = "TICK_SIZE"
	PrecisionDecimalPlaces PrecisionMode = "DECIMAL_PLACES"
	PrecisionHeuristic   PrecisionMode = "HEURISTIC"
)

// Market describes one tradable symbol as returned by LoadMarkets.
type Market struct {
	Symbol         string
	Active         bool
	Spot           bool
	TakerFeePct    decimal.Decimal
	AmountPrecision decimal.Decimal // interpreted per PrecisionMode
	PrecisionMode  PrecisionMode
	MinAmount      decimal.Decimal
	MinCost        decimal.Decimal
}

// Ticker is one symbol's latest price snapshot.
type Ticker struct {
	Symbol string
	Last   decimal.Decimal
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Close  decimal.Decimal
}

// BestAsk returns ask, falling back to last then close, per the price
// fallback rule; the zero value and ok=false mean no usable price exists.
func (t Ticker) BestAsk() (decimal.Decimal, bool) {
	return firstPositive(t.Ask, t.Last, t.Close)
}

// BestBid returns bid, falling back to last then close.
func (t Ticker) BestBid() (decimal.Decimal, bool) {
	return firstPositive(t.Bid, t.Last, t.Close)
}

func firstPositive(vals ...decimal.Decimal) (decimal.Decimal, bool) {
	for _, v := range vals {
		if v.IsPositive() {
			return v, true
		}
	}
	return decimal.Zero, false
}

// OrderBookLevel is one (price, amount) level of a book side.
type OrderBookLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// OrderBook is a depth-limited snapshot of both sides of a symbol's book.
type OrderBook struct {
	Symbol string
	Bids   []OrderBookLevel
	Asks   []OrderBookLevel
}

// AccountKind distinguishes the purpose a balance or transfer is for
// (trading vs. withdrawal), per venue-specific account-type strings.
type AccountKind string

const (
	AccountTrading   AccountKind = "trading"
	AccountWithdrawal AccountKind = "withdrawal"
)

// Balance is one venue's balance for a single asset, for one account kind.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Used   decimal.Decimal
	Total  decimal.Decimal
}

// CurrencyNetwork is one network entry from fetch_currencies, before alias
// normalization.
type CurrencyNetwork struct {
	Name            string // venue's raw label, e.g. "BEP20(BSC)"
	Active           bool
	Withdraw         bool
	Deposit          bool
	Fee              decimal.Decimal
	FeeCurrency      string
	MinWithdrawal    decimal.Decimal
}

// Currency is one asset's metadata from fetch_currencies.
type Currency struct {
	Asset          string
	Precision      decimal.Decimal
	PrecisionMode  PrecisionMode
	Networks       map[string]CurrencyNetwork
}

// OrderSide mirrors the venue-facing buy/sell distinction.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus is the venue-reported lifecycle position of an order, used
// by the executor's fetch-with-retry classification (§4.5.2).
type OrderStatus string

const (
	OrderStatusClosed  OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusOpen    OrderStatus = "open"
	OrderStatusPartial OrderStatus = "partial"
	OrderStatusOther   OrderStatus = "other"
)

// Order is the normalized result of create_market_*_order and fetch_order.
type Order struct {
	ID           string
	Symbol       string
	Side         OrderSide
	Status       OrderStatus
	Filled       decimal.Decimal
	Remaining    decimal.Decimal
	Amount       decimal.Decimal
	Cost         decimal.Decimal
	Average      decimal.Decimal
	FeeAmount    decimal.Decimal
	FeeCurrency  string
	Timestamp    time.Time
}

// DepositAddress is the result of fetch/create_deposit_address.
type DepositAddress struct {
	Asset   string
	Network string // venue's raw network label on the returned address
	Address string
	Tag     string
}
