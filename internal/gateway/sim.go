package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeConfig configures a SimGateway's paper-trading fill simulation.
type FeeConfig struct {
	Maker        decimal.Decimal
	Taker        decimal.Decimal
	BaseSlippage decimal.Decimal
	MarketImpact decimal.Decimal
	MaxSlippage  decimal.Decimal
}

// DefaultFeeConfig mirrors the teacher's Binance-like paper-trading
// defaults.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		Maker:        decimal.NewFromFloat(0.001),
		Taker:        decimal.NewFromFloat(0.001),
		BaseSlippage: decimal.NewFromFloat(0.0005),
		MarketImpact: decimal.NewFromFloat(0.0001),
		MaxSlippage:  decimal.NewFromFloat(0.003),
	}
}

// SimGateway is the DRY_RUN / paper-trading implementation of
// ExchangeGateway. It never makes a mutating network call; every
// operation is served from in-memory, operator-seeded state, per the
// configuration bundle's DRY_RUN contract (§6). Order ids are
// deterministic: a name-based UUID of the venue and the order's sequence
// number on this gateway. Withdrawal ids and created deposit addresses
// are random.
type SimGateway struct {
	venue string
	fees  FeeConfig
	caps  Capabilities

	mu         sync.Mutex
	markets    map[string]Market
	tickers    map[string]Ticker
	books      map[string]OrderBook
	balances   map[AccountKind]map[string]Balance
	currencies map[string]Currency
	orders     map[string]Order
	addresses  map[string]DepositAddress // key: asset|network
}

// NewSimGateway builds an empty simulator for venue; seed data via the
// Seed* methods before use.
func NewSimGateway(venue string, fees FeeConfig) *SimGateway {
	return &SimGateway{
		venue:   venue,
		fees:    fees,
		caps:    Capabilities{HasTransfer: true, HasFetchDepositAddress: true, HasCreateDepositAddress: true, HasOrderBook: true, HasCostBasedMarketBuy: true},
		markets: make(map[string]Market),
		tickers: make(map[string]Ticker),
		books:   make(map[string]OrderBook),
		balances: map[AccountKind]map[string]Balance{
			AccountTrading:    make(map[string]Balance),
			AccountWithdrawal: make(map[string]Balance),
		},
		currencies: make(map[string]Currency),
		orders:     make(map[string]Order),
		addresses:  make(map[string]DepositAddress),
	}
}

func (s *SimGateway) Venue() string { return s.venue }

// SeedMarket registers one tradable symbol.
func (s *SimGateway) SeedMarket(m Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.Symbol] = m
}

// SeedTicker registers a price snapshot for a symbol.
func (s *SimGateway) SeedTicker(t Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickers[t.Symbol] = t
}

// SeedOrderBook registers a depth snapshot for a symbol.
func (s *SimGateway) SeedOrderBook(b OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[b.Symbol] = b
}

// SeedBalance sets the free/used/total balance for asset under kind.
func (s *SimGateway) SeedBalance(kind AccountKind, bal Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[kind][bal.Asset] = bal
}

// SeedCurrency registers network metadata for an asset.
func (s *SimGateway) SeedCurrency(c Currency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currencies[c.Asset] = c
}

// SeedDepositAddress pre-registers the address returned for (asset, network).
func (s *SimGateway) SeedDepositAddress(addr DepositAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[addr.Asset+"|"+addr.Network] = addr
}

func (s *SimGateway) LoadMarkets(_ context.Context) (map[string]Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Market, len(s.markets))
	for k, v := range s.markets {
		out[k] = v
	}
	return out, nil
}

func (s *SimGateway) FetchTickers(_ context.Context, symbols []string) (map[string]Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(symbols) == 0 {
		out := make(map[string]Ticker, len(s.tickers))
		for k, v := range s.tickers {
			out[k] = v
		}
		return out, nil
	}
	out := make(map[string]Ticker, len(symbols))
	for _, sym := range symbols {
		if t, ok := s.tickers[sym]; ok {
			out[sym] = t
		}
	}
	return out, nil
}

func (s *SimGateway) FetchTicker(_ context.Context, symbol string) (Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickers[symbol]
	if !ok {
		return Ticker{}, fmt.Errorf("gateway(sim): no ticker seeded for %s on %s", symbol, s.venue)
	}
	return t, nil
}

func (s *SimGateway) FetchOrderBook(_ context.Context, symbol string, depth int) (OrderBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[symbol]
	if !ok {
		return OrderBook{Symbol: symbol}, nil
	}
	if len(b.Bids) > depth {
		b.Bids = b.Bids[:depth]
	}
	if len(b.Asks) > depth {
		b.Asks = b.Asks[:depth]
	}
	return b, nil
}

func (s *SimGateway) FetchBalance(_ context.Context, kind AccountKind) (map[string]Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Balance, len(s.balances[kind]))
	for k, v := range s.balances[kind] {
		out[k] = v
	}
	return out, nil
}

func (s *SimGateway) FetchCurrencies(_ context.Context) (map[string]Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Currency, len(s.currencies))
	for k, v := range s.currencies {
		out[k] = v
	}
	return out, nil
}

// fill simulates a market order's execution price with slippage and
// market impact and records the closed order with its taker fee. It moves
// no balance: seeded balances are left as they are by buys and sells.
func (s *SimGateway) fill(symbol string, side OrderSide, baseAmount decimal.Decimal) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickers[symbol]
	if !ok {
		return Order{}, fmt.Errorf("gateway(sim): no ticker for %s on %s", symbol, s.venue)
	}
	ref, ok := t.BestAsk()
	if side == OrderSideSell {
		ref, ok = t.BestBid()
	}
	if !ok {
		return Order{}, fmt.Errorf("gateway(sim): no usable price for %s on %s", symbol, s.venue)
	}

	impact := s.fees.MarketImpact.Mul(baseAmount)
	slip := s.fees.BaseSlippage.Add(impact)
	if slip.GreaterThan(s.fees.MaxSlippage) {
		slip = s.fees.MaxSlippage
	}
	adj := decimal.NewFromInt(1).Add(slip)
	if side == OrderSideSell {
		adj = decimal.NewFromInt(1).Sub(slip)
	}
	avg := ref.Mul(adj)

	cost := avg.Mul(baseAmount)
	fee := cost.Mul(s.fees.Taker)

	order := Order{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/order/%d", s.venue, len(s.orders)+1))).String(),
		Symbol:    symbol,
		Side:      side,
		Status:    OrderStatusClosed,
		Filled:    baseAmount,
		Remaining: decimal.Zero,
		Amount:    baseAmount,
		Cost:      cost,
		Average:   avg,
		FeeAmount: fee,
		Timestamp: time.Now(),
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *SimGateway) CreateMarketBuyOrder(_ context.Context, symbol string, baseAmount decimal.Decimal) (Order, error) {
	return s.fill(symbol, OrderSideBuy, baseAmount)
}

func (s *SimGateway) CreateMarketBuyOrderWithCost(_ context.Context, symbol string, quoteCost decimal.Decimal) (Order, error) {
	s.mu.Lock()
	t, ok := s.tickers[symbol]
	s.mu.Unlock()
	if !ok {
		return Order{}, fmt.Errorf("gateway(sim): no ticker for %s on %s", symbol, s.venue)
	}
	ask, ok := t.BestAsk()
	if !ok || ask.IsZero() {
		return Order{}, fmt.Errorf("gateway(sim): no usable ask for %s on %s", symbol, s.venue)
	}
	baseAmount := quoteCost.Div(ask)
	return s.fill(symbol, OrderSideBuy, baseAmount)
}

func (s *SimGateway) CreateMarketSellOrder(_ context.Context, symbol string, baseAmount decimal.Decimal) (Order, error) {
	return s.fill(symbol, OrderSideSell, baseAmount)
}

func (s *SimGateway) FetchOrder(_ context.Context, orderID, _ string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("gateway(sim): order %s not found on %s", orderID, s.venue)
	}
	return o, nil
}

func (s *SimGateway) CancelOrder(_ context.Context, orderID, _ string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("gateway(sim): order %s not found on %s", orderID, s.venue)
	}
	if o.Status == OrderStatusClosed {
		return o, nil
	}
	o.Status = OrderStatusCanceled
	s.orders[orderID] = o
	return o, nil
}

func (s *SimGateway) Transfer(_ context.Context, asset string, amount decimal.Decimal, fromKind, toKind AccountKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.balances[fromKind][asset]
	to := s.balances[toKind][asset]
	if from.Free.LessThan(amount) {
		return fmt.Errorf("gateway(sim): insufficient %s free balance in %s on %s", asset, fromKind, s.venue)
	}
	from.Free = from.Free.Sub(amount)
	from.Total = from.Total.Sub(amount)
	to.Free = to.Free.Add(amount)
	to.Total = to.Total.Add(amount)
	to.Asset, from.Asset = asset, asset
	s.balances[fromKind][asset] = from
	s.balances[toKind][asset] = to
	return nil
}

func (s *SimGateway) Withdraw(_ context.Context, asset string, amount decimal.Decimal, _, _, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balances[AccountWithdrawal][asset]
	if bal.Free.LessThan(amount) {
		return "", fmt.Errorf("gateway(sim): insufficient %s withdrawal balance on %s", asset, s.venue)
	}
	bal.Free = bal.Free.Sub(amount)
	bal.Total = bal.Total.Sub(amount)
	s.balances[AccountWithdrawal][asset] = bal
	return uuid.NewString(), nil
}

func (s *SimGateway) FetchDepositAddress(_ context.Context, asset, network string) (DepositAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.addresses[asset+"|"+network]
	if !ok {
		return DepositAddress{}, ErrNotSupported
	}
	return addr, nil
}

func (s *SimGateway) CreateDepositAddress(ctx context.Context, asset, network string) (DepositAddress, error) {
	s.mu.Lock()
	_, exists := s.addresses[asset+"|"+network]
	s.mu.Unlock()
	if exists {
		return s.FetchDepositAddress(ctx, asset, network)
	}
	addr := DepositAddress{Asset: asset, Network: network, Address: "sim-" + uuid.NewString()}
	s.SeedDepositAddress(addr)
	return addr, nil
}

func (s *SimGateway) Capabilities() Capabilities { return s.caps }

func (s *SimGateway) SetTimeout(time.Duration) {
	// No network calls are ever made; nothing to bound.
}
