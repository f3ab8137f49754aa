// Package rebalancer encapsulates the fund-movement primitives the
// Executor relies on: same-venue account transfers, cross-venue
// withdrawals, liquidation into the quote asset, and the higher-level
// "ensure enough quote is on this venue" orchestration (§4.4).
package rebalancer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/axiomtrade/spotarb/internal/analyzer"
	"github.com/axiomtrade/spotarb/internal/balancemgr"
	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
)

// venueAsset keys the memo/tag requirement table.
type venueAsset struct {
	Venue string
	Asset string
}

// MarketsByVenue resolves the full market set a venue currently reports.
type MarketsByVenue func(venue string) map[string]gateway.Market

// CurrencyByVenue resolves one asset's currency metadata on a venue.
type CurrencyByVenue func(venue, asset string) (gateway.Currency, bool)

// Config bundles the tunables Rebalancer consults.
type Config struct {
	QuoteAsset          string
	MinLiquidity        decimal.Decimal
	SlippagePct         decimal.Decimal
	MinInternalTransfer map[string]decimal.Decimal // per-venue floor; a quantized deficit below it makes InternalTransfer fail
	OrderWait           gateway.OrderWaitConfig
	JITArrival          balancemgr.ArrivalWaitConfig
	CrossVenueArrival   balancemgr.ArrivalWaitConfig
}

// Rebalancer implements InternalTransfer, TransferBetweenVenues,
// ConvertToQuote, and EnsureQuoteForTrade (§4.4).
type Rebalancer struct {
	venues      map[string]gateway.ExchangeGateway
	balances    *balancemgr.Manager
	policy      *analyzer.Policy
	prices      analyzer.PriceOracle
	markets     MarketsByVenue
	currencies  CurrencyByVenue
	requireTag  map[venueAsset]bool
	cfg         Config
	group       singleflight.Group
	log         zerolog.Logger
	observer    ConversionObserver
}

// ConversionObserver lets a caller (the Executor) watch consolidation
// fills ConvertToQuote makes on its behalf, without Rebalancer importing
// the executor package (§9: redesigned from a callback-into-the-executor
// into an observer the caller supplies).
type ConversionObserver interface {
	OnConversion(ctx context.Context, venue, asset string, result ConvertResult)
}

// SetObserver installs o as the receiver of every future ConvertToQuote
// fill. Passing nil disables notification.
func (r *Rebalancer) SetObserver(o ConversionObserver) {
	r.observer = o
}

// New builds a Rebalancer.
func New(venues map[string]gateway.ExchangeGateway, balances *balancemgr.Manager, policy *analyzer.Policy, prices analyzer.PriceOracle, markets MarketsByVenue, currencies CurrencyByVenue, cfg Config, log zerolog.Logger) *Rebalancer {
	return &Rebalancer{
		venues:     venues,
		balances:   balances,
		policy:     policy,
		prices:     prices,
		markets:    markets,
		currencies: currencies,
		requireTag: make(map[venueAsset]bool),
		cfg:        cfg,
		log:        log,
	}
}

// RequireTag marks asset as needing a memo/tag on venue's deposit
// addresses; its absence is a hard failure during acquisition (§4.4.2).
func (r *Rebalancer) RequireTag(venue, asset string) {
	r.requireTag[venueAsset{venue, asset}] = true
}

func (r *Rebalancer) quantize(venue, asset string, amount decimal.Decimal) decimal.Decimal {
	currency, _ := r.currencies(venue, asset)
	return Quantize(&currency, r.markets(venue), asset, amount)
}

// InternalTransfer ensures toKind holds at least requiredInTarget of asset
// on venue, moving the deficit from fromKind if needed (§4.4).
func (r *Rebalancer) InternalTransfer(ctx context.Context, venue, asset string, requiredInTarget decimal.Decimal, fromKind, toKind gateway.AccountKind) error {
	gw, ok := r.venues[venue]
	if !ok {
		return fmt.Errorf("rebalancer: unknown venue %s", venue)
	}

	targetBalances, err := gw.FetchBalance(ctx, toKind)
	if err != nil {
		return fmt.Errorf("rebalancer: fetch_balance(%s, %s): %w", venue, toKind, err)
	}
	if targetBalances[asset].Free.GreaterThanOrEqual(requiredInTarget) {
		return nil
	}

	if fromKind == toKind {
		return fmt.Errorf("rebalancer: %s free balance of %s on %s is insufficient and source/target purposes are identical", asset, venue, toKind)
	}

	deficit := requiredInTarget.Sub(targetBalances[asset].Free)
	quantizedDeficit := r.quantize(venue, asset, deficit)
	if floor, ok := r.cfg.MinInternalTransfer[venue]; ok && quantizedDeficit.LessThan(floor) {
		return fmt.Errorf("rebalancer: deficit %s below %s's minimum internal-transfer amount %s", quantizedDeficit, venue, floor)
	}

	sourceBalances, err := gw.FetchBalance(ctx, fromKind)
	if err != nil {
		return fmt.Errorf("rebalancer: fetch_balance(%s, %s): %w", venue, fromKind, err)
	}
	if sourceBalances[asset].Free.LessThan(quantizedDeficit) {
		return fmt.Errorf("rebalancer: %s free balance of %s on %s cannot cover deficit %s", fromKind, asset, venue, quantizedDeficit)
	}

	err = gw.Transfer(ctx, asset, quantizedDeficit, fromKind, toKind)
	if err == nil {
		return nil
	}
	if errors.Is(err, gateway.ErrNotSupported) {
		refreshed, refreshErr := gw.FetchBalance(ctx, toKind)
		if refreshErr == nil && refreshed[asset].Free.GreaterThanOrEqual(requiredInTarget) {
			return nil
		}
	}
	return fmt.Errorf("rebalancer: transfer(%s, %s, %s->%s) on %s: %w", asset, quantizedDeficit, fromKind, toKind, venue, err)
}

// TransferBetweenVenues withdraws asset from fromVenue to toVenue,
// selecting and resolving a network unless networkOverride is given
// (§4.4). It is deduped by (asset, from, to, quantized amount).
func (r *Rebalancer) TransferBetweenVenues(ctx context.Context, asset, fromVenue, toVenue string, amount decimal.Decimal, networkOverride *model.NetworkOption) (*model.RebalanceOperation, error) {
	fromGw, ok := r.venues[fromVenue]
	if !ok {
		return nil, fmt.Errorf("rebalancer: unknown venue %s", fromVenue)
	}
	toGw, ok := r.venues[toVenue]
	if !ok {
		return nil, fmt.Errorf("rebalancer: unknown venue %s", toVenue)
	}

	quantized := r.quantize(fromVenue, asset, amount)
	key := model.NewRebalanceKey(model.RebalanceCrossVenue, asset, fromVenue, toVenue, quantized)

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		op := &model.RebalanceOperation{Key: key, Kind: model.RebalanceCrossVenue, Asset: asset, From: fromVenue, To: toVenue, Amount: quantized, StartedAt: time.Now()}

		if err := r.InternalTransfer(ctx, fromVenue, asset, quantized, gateway.AccountTrading, gateway.AccountWithdrawal); err != nil {
			op.Err = fmt.Errorf("ensure withdrawal balance: %w", err)
			return op, op.Err
		}

		chosen := networkOverride
		if chosen == nil {
			candidates, err := analyzer.SelectNetworks(ctx, asset, fromVenue, toVenue, fromGw, toGw, r.policy, &quantized, r.prices)
			if err != nil {
				op.Err = err
				return op, err
			}
			if len(candidates) == 0 {
				op.Err = fmt.Errorf("rebalancer: no feasible network for %s from %s to %s", asset, fromVenue, toVenue)
				return op, op.Err
			}
			chosen = &candidates[0]
		}

		requireTag := r.requireTag[venueAsset{toVenue, asset}]
		addr, err := AcquireDepositAddress(ctx, toGw, asset, chosen.VenueNetworkName, requireTag)
		if err != nil {
			op.Err = fmt.Errorf("acquire deposit address: %w", err)
			return op, op.Err
		}

		if _, err := fromGw.Withdraw(ctx, asset, quantized, addr.Address, addr.Tag, chosen.VenueNetworkName); err != nil {
			op.Err = fmt.Errorf("withdraw: %w", err)
			return op, op.Err
		}

		op.Done = true
		return op, nil
	})

	op, _ := v.(*model.RebalanceOperation)
	return op, err
}

// ConvertResult is the outcome of a successful or accepted-partial
// ConvertToQuote.
type ConvertResult struct {
	FilledBase decimal.Decimal
	Cost       decimal.Decimal
	Order      gateway.Order
}

// ConvertToQuote sells amount of asset into the configured quote currency
// on venue (§4.4), after min-amount/min-cost and depth checks.
func (r *Rebalancer) ConvertToQuote(ctx context.Context, venue, asset string, amount decimal.Decimal) (ConvertResult, error) {
	gw, ok := r.venues[venue]
	if !ok {
		return ConvertResult{}, fmt.Errorf("rebalancer: unknown venue %s", venue)
	}
	symbol := asset + "/" + r.cfg.QuoteAsset

	markets := r.markets(venue)
	market, ok := markets[symbol]
	if !ok {
		return ConvertResult{}, fmt.Errorf("rebalancer: no market %s on %s", symbol, venue)
	}

	quantized := r.quantize(venue, asset, amount)
	if quantized.LessThan(market.MinAmount) {
		return ConvertResult{}, fmt.Errorf("rebalancer: %s amount %s below min_amount %s on %s", asset, quantized, market.MinAmount, venue)
	}

	ticker, err := gw.FetchTicker(ctx, symbol)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("rebalancer: fetch_ticker(%s): %w", symbol, err)
	}
	bid, ok := ticker.BestBid()
	if !ok {
		return ConvertResult{}, fmt.Errorf("rebalancer: no usable bid for %s on %s", symbol, venue)
	}

	notional := quantized.Mul(bid)
	if notional.LessThan(market.MinCost) {
		return ConvertResult{}, fmt.Errorf("rebalancer: %s notional %s below min_cost %s on %s", asset, notional, market.MinCost, venue)
	}

	depthResult, err := analyzer.CheckDepth(ctx, gw, symbol, gateway.OrderSideSell, quantized, bid, r.cfg.SlippagePct, r.cfg.MinLiquidity)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("rebalancer: depth check failed for %s on %s: %w", symbol, venue, err)
	}
	if !depthResult.Pass {
		return ConvertResult{}, fmt.Errorf("rebalancer: depth check rejected %s sell of %s on %s: %s", symbol, quantized, venue, depthResult.Reason)
	}

	order, err := gw.CreateMarketSellOrder(ctx, symbol, quantized)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("rebalancer: create_market_sell_order(%s, %s) on %s: %w", symbol, quantized, venue, err)
	}

	final, err := gateway.FetchOrderUntilTerminal(ctx, gw, order.ID, symbol, r.cfg.OrderWait)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("rebalancer: order fetch for %s on %s: %w", order.ID, venue, err)
	}

	if final.Status == gateway.OrderStatusCanceled && final.Filled.IsZero() {
		return ConvertResult{}, fmt.Errorf("rebalancer: sell order %s on %s canceled with zero fill", order.ID, venue)
	}

	result := ConvertResult{FilledBase: final.Filled, Cost: final.Cost, Order: final}
	if r.observer != nil {
		r.observer.OnConversion(ctx, venue, asset, result)
	}
	return result, nil
}

// EnsureQuoteForTrade walks candidate source venues for enough free quote
// to cover needed plus the configured buffers, transferring from the
// first that qualifies; failing that, it attempts a JIT conversion on a
// source venue holding a configured liquid asset (§4.4).
func (r *Rebalancer) EnsureQuoteForTrade(ctx context.Context, targetVenue string, neededOnTarget, reserveBuffer, transferFeeBuffer, jitMinConversion decimal.Decimal, jitLiquidAssets []string, balances map[string]model.ExchangeBalance, preferredSource *string) (*model.RebalanceOperation, error) {
	order := candidateOrder(balances, targetVenue, preferredSource)
	threshold := neededOnTarget.Add(transferFeeBuffer)

	for _, venue := range order {
		freeQuote := balances[venue].Free(r.cfg.QuoteAsset)
		netFree := freeQuote.Sub(reserveBuffer)
		if netFree.GreaterThanOrEqual(threshold) {
			return r.TransferBetweenVenues(ctx, r.cfg.QuoteAsset, venue, targetVenue, threshold, nil)
		}
	}

	for _, venue := range order {
		gw, ok := r.venues[venue]
		if !ok {
			continue
		}
		for _, asset := range jitLiquidAssets {
			ab, ok := balances[venue].Assets[asset]
			if !ok || !ab.Free.IsPositive() {
				continue
			}
			if ab.USDValue.LessThan(jitMinConversion) {
				continue
			}
			symbol := asset + "/" + r.cfg.QuoteAsset
			ticker, err := gw.FetchTicker(ctx, symbol)
			if err != nil {
				continue
			}
			bid, ok := ticker.BestBid()
			if !ok {
				continue
			}
			takerFeePct := decimal.NewFromFloat(0.1)
			if markets := r.markets(venue); markets != nil {
				if m, ok := markets[symbol]; ok && m.TakerFeePct.IsPositive() {
					takerFeePct = m.TakerFeePct
				}
			}
			estimatedYield := ab.Free.Mul(bid).Mul(decimal.NewFromInt(1).Sub(takerFeePct.Div(decimal.NewFromInt(100))))
			if estimatedYield.LessThan(threshold) {
				continue
			}

			if _, err := r.ConvertToQuote(ctx, venue, asset, ab.Free); err != nil {
				r.log.Warn().Err(err).Str("venue", venue).Str("asset", asset).Msg("JIT conversion failed, trying next candidate")
				continue
			}
			return r.TransferBetweenVenues(ctx, r.cfg.QuoteAsset, venue, targetVenue, threshold, nil)
		}
	}

	return nil, fmt.Errorf("rebalancer: no source venue could fund %s with %s on %s", threshold, r.cfg.QuoteAsset, targetVenue)
}

// candidateOrder returns every venue but targetVenue, with preferredSource
// (when supplied and eligible) first, otherwise sorted for determinism.
func candidateOrder(balances map[string]model.ExchangeBalance, targetVenue string, preferredSource *string) []string {
	var rest []string
	for venue := range balances {
		if venue == targetVenue {
			continue
		}
		if preferredSource != nil && venue == *preferredSource {
			continue
		}
		rest = append(rest, venue)
	}
	sort.Strings(rest)

	if preferredSource != nil {
		if _, ok := balances[*preferredSource]; ok && *preferredSource != targetVenue {
			return append([]string{*preferredSource}, rest...)
		}
	}
	return rest
}
