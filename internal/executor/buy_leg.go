package executor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
	"github.com/axiomtrade/spotarb/internal/rebalancer"
)

// runBuyLeg places the opportunity's buy order and records the resulting
// net base amount after fees (§4.5 Buy leg).
func (e *Executor) runBuyLeg(ctx context.Context, opp *model.Opportunity, details *model.TradeExecutionDetails, targetCost decimal.Decimal) error {
	details.State = model.StateBuyLegPending

	buyVenue := opp.BuyVenue
	gw, ok := e.venues[buyVenue]
	if !ok {
		return e.failAt(details, model.StateBuyLegFailed, fmt.Errorf("executor: unknown buy venue %s", buyVenue))
	}
	base := baseAssetOf(opp.Symbol, e.cfg.QuoteAsset)

	freeQuote, err := e.balances.AccountFree(ctx, buyVenue, e.cfg.QuoteAsset, gateway.AccountTrading)
	if err != nil {
		return e.failAt(details, model.StateBuyLegFailed, fmt.Errorf("executor: read trading-account %s balance on %s: %w", e.cfg.QuoteAsset, buyVenue, err))
	}

	if freeQuote.LessThan(targetCost) {
		freeQuote = e.localConvert(ctx, buyVenue, base, freeQuote, targetCost)
	}

	if freeQuote.LessThan(targetCost) {
		if err := e.jitFund(ctx, buyVenue, targetCost); err != nil {
			return e.failAt(details, model.StateJITFundingFailedNoSource, err)
		}
	}

	if err := e.rebalancer.InternalTransfer(ctx, buyVenue, e.cfg.QuoteAsset, targetCost, gateway.AccountWithdrawal, gateway.AccountTrading); err != nil {
		return e.failAt(details, model.StateBuyLegFailed, fmt.Errorf("executor: ensure trading-account %s on %s: %w", e.cfg.QuoteAsset, buyVenue, err))
	}

	order, err := e.placeBuy(ctx, gw, buyVenue, opp.Symbol, base, targetCost, opp.BuyPrice)
	if err != nil {
		return e.failAt(details, model.StateBuyLegFailed, err)
	}

	final, err := gateway.FetchOrderUntilTerminal(ctx, gw, order.ID, opp.Symbol, e.cfg.OrderWait)
	if err != nil {
		return e.failAt(details, model.StateBuyLegFailed, fmt.Errorf("executor: buy order fetch on %s: %w", buyVenue, err))
	}

	if final.Status != gateway.OrderStatusClosed || final.Filled.IsZero() {
		e.bestEffortCancel(ctx, gw, final)
		return e.failAt(details, model.StateBuyLegFailedNoFill, fmt.Errorf("executor: buy order %s on %s ended %s with zero/partial fill", final.ID, buyVenue, final.Status))
	}

	details.BuyOrderID = final.ID
	details.BuyFilledQty = final.Filled
	details.BuyFilledPrice = final.Average
	details.BuyFeePaid = final.FeeAmount
	details.BuyFeeCurrency = final.FeeCurrency

	netBase := final.Filled
	if final.FeeCurrency == base {
		netBase = final.Filled.Sub(final.FeeAmount)
	}
	details.NetBaseAfterBuyFee = netBase
	details.State = model.StateBuyLegFilled
	return nil
}

// localConvert liquidates venue's other holdings (excluding base and the
// quote asset) worth at least JIT_MIN_CONVERSION into quote, stopping as
// soon as freeQuote covers targetCost (§4.5: "first attempt local
// conversion of other assets on the same venue").
func (e *Executor) localConvert(ctx context.Context, venue, base string, freeQuote, targetCost decimal.Decimal) decimal.Decimal {
	snapshot := e.balances.Snapshot(ctx, true)
	bal, ok := snapshot[venue]
	if !ok {
		return freeQuote
	}
	for asset, ab := range bal.Assets {
		if freeQuote.GreaterThanOrEqual(targetCost) {
			break
		}
		if asset == base || asset == e.cfg.QuoteAsset {
			continue
		}
		if !ab.Free.IsPositive() || ab.USDValue.LessThan(e.cfg.JITMinConversion) {
			continue
		}
		result, err := e.rebalancer.ConvertToQuote(ctx, venue, asset, ab.Free)
		if err != nil {
			e.log.Warn().Err(err).Str("venue", venue).Str("asset", asset).Msg("local conversion failed, trying next asset")
			continue
		}
		freeQuote = freeQuote.Add(result.Cost)
	}
	return freeQuote
}

// jitFund invokes EnsureQuoteForTrade and waits for the resulting transfer
// to arrive on venue's withdrawal account (§4.5: "call EnsureQuoteForTrade
// and then wait for arrival").
func (e *Executor) jitFund(ctx context.Context, venue string, targetCost decimal.Decimal) error {
	balances := e.balances.Snapshot(ctx, true)
	op, err := e.rebalancer.EnsureQuoteForTrade(ctx, venue, targetCost, e.cfg.ReserveBuffer, e.cfg.TransferFeeBuffer, e.cfg.JITMinConversion, e.cfg.JITLiquidAssets, balances, nil)
	if err != nil {
		return fmt.Errorf("executor: JIT funding of %s on %s: %w", targetCost, venue, err)
	}
	if op == nil {
		return fmt.Errorf("executor: JIT funding of %s on %s produced no operation", targetCost, venue)
	}
	if _, err := e.balances.WaitForArrival(ctx, venue, e.cfg.QuoteAsset, gateway.AccountWithdrawal, op.Amount, e.cfg.JITArrival); err != nil {
		return fmt.Errorf("executor: JIT funding arrival wait on %s: %w", venue, err)
	}
	return nil
}

// placeBuy prefers a cost-based market buy when the venue supports it and
// is not denylisted, otherwise computes and quantizes a base-amount order
// from the opportunity's buy price (§9 Open Question 1).
func (e *Executor) placeBuy(ctx context.Context, gw gateway.ExchangeGateway, venue, symbol, base string, targetCost, buyPrice decimal.Decimal) (gateway.Order, error) {
	if e.cfg.PreferCostBasedBuy && gw.Capabilities().HasCostBasedMarketBuy && !e.cfg.CostBasedBuyDenylist[venue] {
		order, err := gw.CreateMarketBuyOrderWithCost(ctx, symbol, targetCost)
		if err != nil {
			return gateway.Order{}, fmt.Errorf("executor: create_market_buy_order_with_cost(%s, %s) on %s: %w", symbol, targetCost, venue, err)
		}
		return order, nil
	}

	amount := targetCost
	if buyPrice.IsPositive() {
		amount = targetCost.Div(buyPrice)
	}

	var currency gateway.Currency
	if e.currencies != nil {
		currency, _ = e.currencies(venue, base)
	}
	var markets map[string]gateway.Market
	if e.markets != nil {
		if m, ok := e.markets(venue, symbol); ok {
			markets = map[string]gateway.Market{symbol: m}
		}
	}
	quantized := rebalancer.Quantize(&currency, markets, base, amount)

	order, err := gw.CreateMarketBuyOrder(ctx, symbol, quantized)
	if err != nil {
		return gateway.Order{}, fmt.Errorf("executor: create_market_buy_order(%s, %s) on %s: %w", symbol, quantized, venue, err)
	}
	return order, nil
}
