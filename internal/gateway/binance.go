package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/money"
)

// BinanceGateway is the live ExchangeGateway adapter over go-binance/v2.
// Every call is wrapped in the shared retry policy and the venue's
// circuit breaker; a credential failure permanently disables the venue
// via the breaker's auth latch.
type BinanceGateway struct {
	venue   string
	client  *binance.Client
	log     zerolog.Logger
	breaker *VenueBreaker
	retry   RetryConfig
	alerts  *AlertManager
}

// BinanceConfig holds one venue's Binance-compatible credentials.
type BinanceConfig struct {
	Venue     string
	APIKey    string
	SecretKey string
	Testnet   bool
}

// NewBinanceGateway constructs a live gateway for one Binance-compatible
// venue. The client itself does no retrying or breaking; that is layered
// on top here so every call site gets the same policy uniformly.
func NewBinanceGateway(cfg BinanceConfig, log zerolog.Logger, alerts *AlertManager) *BinanceGateway {
	binance.UseTestnet = cfg.Testnet
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	return &BinanceGateway{
		venue:   cfg.Venue,
		client:  client,
		log:     log.With().Str("venue", cfg.Venue).Logger(),
		breaker: NewVenueBreaker(cfg.Venue, DefaultBreakerSettings()),
		retry:   DefaultRetryConfig(),
		alerts:  alerts,
	}
}

func (g *BinanceGateway) Venue() string { return g.venue }

// call wraps one venue round trip with retry-then-breaker. Auth failures
// are classified by string match against Binance's well-known signature
// rejection codes, matching the error-handling design's fatal-auth rule.
func (g *BinanceGateway) call(ctx context.Context, name string, op func() error) error {
	return g.breaker.Do(func() error {
		err := WithRetry(ctx, g.log, g.retry, op)
		if isAuthError(err) {
			g.alerts.SendAlert(ctx, Alert{
				Severity: AlertSeverityCritical,
				Category: AlertCategoryAuth,
				Message:  "venue credential rejected, disabling venue",
				Err:      err,
				Venue:    g.venue,
				Context:  map[string]any{"operation": name},
			})
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return err
	})
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "invalid api-key") ||
		strings.Contains(s, "signature for this request is not valid") ||
		strings.Contains(s, "api-key format invalid") ||
		strings.Contains(s, "unauthorized")
}

func (g *BinanceGateway) LoadMarkets(ctx context.Context) (map[string]Market, error) {
	var info *binance.ExchangeInfo
	err := g.call(ctx, "load_markets", func() error {
		var innerErr error
		info, innerErr = g.client.NewExchangeInfoService().Do(ctx)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]Market, len(info.Symbols))
	for _, sym := range info.Symbols {
		m := Market{
			Symbol:        sym.Symbol,
			Active:        sym.Status == "TRADING",
			Spot:          sym.IsSpotTradingAllowed,
			TakerFeePct:   decimal.NewFromFloat(0.1),
			PrecisionMode: PrecisionDecimalPlaces,
			AmountPrecision: decimal.NewFromInt(int64(sym.BaseAssetPrecision)),
		}
		if f := sym.LotSizeFilter(); f != nil {
			if v, err := decimal.NewFromString(f.MinQuantity); err == nil {
				m.MinAmount = v
			}
		}
		if f := sym.MinNotionalFilter(); f != nil {
			if v, err := decimal.NewFromString(f.MinNotional); err == nil {
				m.MinCost = v
			}
		}
		out[sym.Symbol] = m
	}
	return out, nil
}

func (g *BinanceGateway) FetchTickers(ctx context.Context, symbols []string) (map[string]Ticker, error) {
	var prices []*binance.BookTicker
	err := g.call(ctx, "fetch_tickers", func() error {
		var innerErr error
		prices, innerErr = g.client.NewListBookTickersService().Do(ctx)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}

	out := make(map[string]Ticker)
	for _, p := range prices {
		if len(want) > 0 && !want[p.Symbol] {
			continue
		}
		bid, _ := money.ParseAmount(p.BidPrice)
		ask, _ := money.ParseAmount(p.AskPrice)
		out[p.Symbol] = Ticker{Symbol: p.Symbol, Bid: bid, Ask: ask}
	}
	return out, nil
}

func (g *BinanceGateway) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	tickers, err := g.FetchTickers(ctx, []string{symbol})
	if err != nil {
		return Ticker{}, err
	}
	t, ok := tickers[symbol]
	if !ok {
		return Ticker{}, fmt.Errorf("gateway(binance): no ticker for %s on %s", symbol, g.venue)
	}
	return t, nil
}

func (g *BinanceGateway) FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error) {
	var resp *binance.DepthResponse
	err := g.call(ctx, "fetch_order_book", func() error {
		var innerErr error
		resp, innerErr = g.client.NewDepthService().Symbol(symbol).Limit(depth).Do(ctx)
		return innerErr
	})
	if err != nil {
		return OrderBook{}, err
	}

	book := OrderBook{Symbol: symbol}
	for _, b := range resp.Bids {
		price, _ := money.ParseAmount(b.Price)
		amount, _ := money.ParseAmount(b.Quantity)
		book.Bids = append(book.Bids, OrderBookLevel{Price: price, Amount: amount})
	}
	for _, a := range resp.Asks {
		price, _ := money.ParseAmount(a.Price)
		amount, _ := money.ParseAmount(a.Quantity)
		book.Asks = append(book.Asks, OrderBookLevel{Price: price, Amount: amount})
	}
	return book, nil
}

func (g *BinanceGateway) FetchBalance(ctx context.Context, kind AccountKind) (map[string]Balance, error) {
	out := make(map[string]Balance)

	if kind == AccountTrading {
		var acct *binance.Account
		err := g.call(ctx, "fetch_balance_trading", func() error {
			var innerErr error
			acct, innerErr = g.client.NewGetAccountService().Do(ctx)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		for _, b := range acct.Balances {
			free, _ := money.ParseAmount(b.Free)
			locked, _ := money.ParseAmount(b.Locked)
			if free.IsZero() && locked.IsZero() {
				continue
			}
			out[b.Asset] = Balance{Asset: b.Asset, Free: free, Used: locked, Total: free.Add(locked)}
		}
		return out, nil
	}

	var assets []*binance.FundingAsset
	err := g.call(ctx, "fetch_balance_funding", func() error {
		var innerErr error
		assets, innerErr = g.client.NewFundingWalletService().Do(ctx)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		free, _ := money.ParseAmount(a.Free)
		locked, _ := money.ParseAmount(a.Locked)
		if free.IsZero() && locked.IsZero() {
			continue
		}
		out[a.Asset] = Balance{Asset: a.Asset, Free: free, Used: locked, Total: free.Add(locked)}
	}
	return out, nil
}

func (g *BinanceGateway) FetchCurrencies(ctx context.Context) (map[string]Currency, error) {
	var coins []*binance.CoinInfo
	err := g.call(ctx, "fetch_currencies", func() error {
		var innerErr error
		coins, innerErr = g.client.NewGetAllCoinsInfoService().Do(ctx)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]Currency, len(coins))
	for _, c := range coins {
		cur := Currency{Asset: c.Coin, PrecisionMode: PrecisionDecimalPlaces, Precision: decimal.NewFromInt(8), Networks: make(map[string]CurrencyNetwork, len(c.NetworkList))}
		for _, n := range c.NetworkList {
			fee, _ := money.ParseAmount(n.WithdrawFee)
			minWithdraw, _ := money.ParseAmount(n.WithdrawMin)
			cur.Networks[n.Network] = CurrencyNetwork{
				Name:          n.Network,
				Active:        true,
				Withdraw:      n.WithdrawEnable,
				Deposit:       n.DepositEnable,
				Fee:           fee,
				FeeCurrency:   c.Coin,
				MinWithdrawal: minWithdraw,
			}
		}
		out[c.Coin] = cur
	}
	return out, nil
}

func (g *BinanceGateway) CreateMarketBuyOrder(ctx context.Context, symbol string, baseAmount decimal.Decimal) (Order, error) {
	return g.createMarketOrder(ctx, symbol, binance.SideTypeBuy, baseAmount, decimal.Zero)
}

func (g *BinanceGateway) CreateMarketBuyOrderWithCost(ctx context.Context, symbol string, quoteCost decimal.Decimal) (Order, error) {
	return g.createMarketOrder(ctx, symbol, binance.SideTypeBuy, decimal.Zero, quoteCost)
}

func (g *BinanceGateway) CreateMarketSellOrder(ctx context.Context, symbol string, baseAmount decimal.Decimal) (Order, error) {
	return g.createMarketOrder(ctx, symbol, binance.SideTypeSell, baseAmount, decimal.Zero)
}

func (g *BinanceGateway) createMarketOrder(ctx context.Context, symbol string, side binance.SideType, baseAmount, quoteCost decimal.Decimal) (Order, error) {
	var resp *binance.CreateOrderResponse
	err := g.call(ctx, "create_market_order", func() error {
		svc := g.client.NewCreateOrderService().Symbol(symbol).Side(side).Type(binance.OrderTypeMarket)
		if quoteCost.IsPositive() {
			svc = svc.QuoteOrderQty(quoteCost.String())
		} else {
			svc = svc.Quantity(baseAmount.String())
		}
		var innerErr error
		resp, innerErr = svc.Do(ctx)
		return innerErr
	})
	if err != nil {
		if side == binance.SideTypeBuy {
			g.alerts.SendAlert(ctx, Alert{Severity: AlertSeverityWarning, Category: AlertCategoryOrder, Message: "buy order placement failed", Err: err, Venue: g.venue, Context: map[string]any{"symbol": symbol}})
		} else {
			g.alerts.SendAlert(ctx, Alert{Severity: AlertSeverityWarning, Category: AlertCategoryOrder, Message: "sell order placement failed", Err: err, Venue: g.venue, Context: map[string]any{"symbol": symbol}})
		}
		return Order{}, err
	}
	return convertBinanceCreateOrder(resp), nil
}

func convertBinanceCreateOrder(resp *binance.CreateOrderResponse) Order {
	filled, _ := money.ParseAmount(resp.ExecutedQuantity)
	cost, _ := money.ParseAmount(resp.CummulativeQuoteQuantity)
	avg := decimal.Zero
	if filled.IsPositive() {
		avg = cost.Div(filled)
	}

	feeAmount := decimal.Zero
	feeCurrency := ""
	for _, f := range resp.Fills {
		amt, _ := money.ParseAmount(f.Commission)
		feeAmount = feeAmount.Add(amt)
		feeCurrency = f.CommissionAsset
	}

	return Order{
		ID:          fmt.Sprintf("%d", resp.OrderID),
		Symbol:      resp.Symbol,
		Side:        orderSideFrom(resp.Side),
		Status:      orderStatusFromBinance(string(resp.Status)),
		Filled:      filled,
		Amount:      filled,
		Cost:        cost,
		Average:     avg,
		FeeAmount:   feeAmount,
		FeeCurrency: feeCurrency,
		Timestamp:   time.Now(),
	}
}

func orderSideFrom(s binance.SideType) OrderSide {
	if s == binance.SideTypeSell {
		return OrderSideSell
	}
	return OrderSideBuy
}

func orderStatusFromBinance(status string) OrderStatus {
	switch status {
	case "FILLED":
		return OrderStatusClosed
	case "CANCELED", "EXPIRED", "REJECTED":
		return OrderStatusCanceled
	case "PARTIALLY_FILLED":
		return OrderStatusPartial
	case "NEW":
		return OrderStatusOpen
	default:
		return OrderStatusOther
	}
}

func (g *BinanceGateway) FetchOrder(ctx context.Context, orderID, symbol string) (Order, error) {
	var resp *binance.Order
	err := g.call(ctx, "fetch_order", func() error {
		var innerErr error
		resp, innerErr = g.client.NewGetOrderService().Symbol(symbol).OrigClientOrderID(orderID).Do(ctx)
		return innerErr
	})
	if err != nil {
		return Order{}, err
	}
	filled, _ := money.ParseAmount(resp.ExecutedQuantity)
	amount, _ := money.ParseAmount(resp.OrigQuantity)
	cost, _ := money.ParseAmount(resp.CummulativeQuoteQuantity)
	avg := decimal.Zero
	if filled.IsPositive() {
		avg = cost.Div(filled)
	}
	return Order{
		ID:        fmt.Sprintf("%d", resp.OrderID),
		Symbol:    resp.Symbol,
		Side:      orderSideFrom(resp.Side),
		Status:    orderStatusFromBinance(string(resp.Status)),
		Filled:    filled,
		Remaining: amount.Sub(filled),
		Amount:    amount,
		Cost:      cost,
		Average:   avg,
		Timestamp: time.Now(),
	}, nil
}

func (g *BinanceGateway) CancelOrder(ctx context.Context, orderID, symbol string) (Order, error) {
	err := g.call(ctx, "cancel_order", func() error {
		_, innerErr := g.client.NewCancelOrderService().Symbol(symbol).OrigClientOrderID(orderID).Do(ctx)
		return innerErr
	})
	if err != nil {
		return Order{}, err
	}
	return g.FetchOrder(ctx, orderID, symbol)
}

func (g *BinanceGateway) Transfer(ctx context.Context, asset string, amount decimal.Decimal, fromKind, toKind AccountKind) error {
	transferType := universalTransferType(fromKind, toKind)
	return g.call(ctx, "transfer", func() error {
		_, innerErr := g.client.NewUniversalTransferService().
			Type(transferType).
			Asset(asset).
			Amount(amount.String()).
			Do(ctx)
		return innerErr
	})
}

func universalTransferType(fromKind, toKind AccountKind) binance.UniversalTransferType {
	if fromKind == AccountTrading && toKind == AccountWithdrawal {
		return binance.UniversalTransferType("MAIN_FUNDING")
	}
	return binance.UniversalTransferType("FUNDING_MAIN")
}

func (g *BinanceGateway) Withdraw(ctx context.Context, asset string, amount decimal.Decimal, address, tag, network string) (string, error) {
	var id string
	err := g.call(ctx, "withdraw", func() error {
		svc := g.client.NewCreateWithdrawService().Coin(asset).Address(address).Amount(amount.String())
		if network != "" {
			svc = svc.Network(network)
		}
		if tag != "" {
			svc = svc.AddressTag(tag)
		}
		resp, innerErr := svc.Do(ctx)
		if innerErr != nil {
			return innerErr
		}
		id = resp.ID
		return nil
	})
	return id, err
}

func (g *BinanceGateway) FetchDepositAddress(ctx context.Context, asset, network string) (DepositAddress, error) {
	var resp *binance.GetDepositAddressResponse
	err := g.call(ctx, "fetch_deposit_address", func() error {
		var innerErr error
		resp, innerErr = g.client.NewGetDepositAddressService().Coin(asset).Network(network).Do(ctx)
		return innerErr
	})
	if err != nil {
		return DepositAddress{}, err
	}
	return DepositAddress{Asset: asset, Network: network, Address: resp.Address, Tag: resp.Tag}, nil
}

func (g *BinanceGateway) CreateDepositAddress(ctx context.Context, asset, network string) (DepositAddress, error) {
	// Binance does not expose an address-creation endpoint distinct from
	// fetch; a fetch implicitly provisions one on first request.
	return g.FetchDepositAddress(ctx, asset, network)
}

func (g *BinanceGateway) Capabilities() Capabilities {
	return Capabilities{
		HasTransfer:             true,
		HasFetchDepositAddress:  true,
		HasCreateDepositAddress: false,
		HasOrderBook:            true,
		HasCostBasedMarketBuy:   true,
	}
}

func (g *BinanceGateway) SetTimeout(d time.Duration) {
	g.client.HTTPClient.Timeout = d
}
