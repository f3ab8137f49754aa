package executor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
	"github.com/axiomtrade/spotarb/internal/money"
)

// runSellLeg moves the arrived base amount into the trading account,
// validates it against the venue's minimum, places the sell, and
// classifies the completed attempt (§4.5 Sell leg).
func (e *Executor) runSellLeg(ctx context.Context, opp *model.Opportunity, details *model.TradeExecutionDetails, initialBuyCost decimal.Decimal) error {
	details.State = model.StateSellLegPending

	sellVenue := opp.SellVenue
	gw, ok := e.venues[sellVenue]
	if !ok {
		return e.failAt(details, model.StateSellLegFailed, fmt.Errorf("executor: unknown sell venue %s", sellVenue))
	}
	base := baseAssetOf(opp.Symbol, e.cfg.QuoteAsset)

	if err := e.rebalancer.InternalTransfer(ctx, sellVenue, base, details.TransferAmount, gateway.AccountWithdrawal, gateway.AccountTrading); err != nil {
		return e.failAt(details, model.StateSellLegFailed, fmt.Errorf("executor: move arrived %s to trading account on %s: %w", base, sellVenue, err))
	}

	// The trading-account free balance is authoritative for the sale
	// amount (§4.5): it may differ slightly from the arrived amount once
	// other concurrent activity on the account is accounted for.
	saleAmount, err := e.balances.AccountFree(ctx, sellVenue, base, gateway.AccountTrading)
	if err != nil {
		return e.failAt(details, model.StateSellLegFailed, fmt.Errorf("executor: read trading-account %s balance on %s: %w", base, sellVenue, err))
	}

	var market gateway.Market
	if e.markets != nil {
		market, _ = e.markets(sellVenue, opp.Symbol)
	}
	if saleAmount.LessThan(market.MinAmount) {
		return e.failAt(details, model.StateSellLegFailedMinAmount, fmt.Errorf("executor: sale amount %s below min_amount %s on %s", saleAmount, market.MinAmount, sellVenue))
	}

	order, err := gw.CreateMarketSellOrder(ctx, opp.Symbol, saleAmount)
	if err != nil {
		return e.failAt(details, model.StateSellLegFailed, fmt.Errorf("executor: create_market_sell_order(%s, %s) on %s: %w", opp.Symbol, saleAmount, sellVenue, err))
	}

	final, err := gateway.FetchOrderUntilTerminal(ctx, gw, order.ID, opp.Symbol, e.cfg.OrderWait)
	if err != nil {
		return e.failAt(details, model.StateSellLegFailed, fmt.Errorf("executor: sell order fetch on %s: %w", sellVenue, err))
	}
	if final.Status == gateway.OrderStatusCanceled && final.Filled.IsZero() {
		return e.failAt(details, model.StateSellLegFailed, fmt.Errorf("executor: sell order %s on %s canceled with zero fill", final.ID, sellVenue))
	}
	if final.Status == gateway.OrderStatusOpen || final.Status == gateway.OrderStatusPartial {
		e.bestEffortCancel(ctx, gw, final)
		return e.failAt(details, model.StateSellLegFailed, fmt.Errorf("executor: sell order %s on %s still %s after all fetch attempts", final.ID, sellVenue, final.Status))
	}

	details.SellOrderID = final.ID
	details.SellFilledQty = final.Filled
	details.SellFilledPrice = final.Average
	details.SellFeePaid = final.FeeAmount
	details.SellFeeCurrency = final.FeeCurrency

	quoteReceived := final.Filled.Mul(final.Average)
	if final.FeeCurrency == e.cfg.QuoteAsset {
		quoteReceived = quoteReceived.Sub(final.FeeAmount)
	}

	details.State = classifyOutcome(final.Status == gateway.OrderStatusClosed, quoteReceived, initialBuyCost)
	return nil
}

// classifyOutcome implements the terminal classification rule: a non-closed
// terminal status yields an unknown-profit result; otherwise profit
// relative to the initial buy cost decides success vs. loss, with an
// epsilon-tolerant equality so a dead-even fill isn't misclassified as a
// loss by residual decimal noise.
func classifyOutcome(closed bool, quoteReceived, initialBuyCost decimal.Decimal) model.ExecutionState {
	if !closed {
		return model.StateCompletedUnknownProfit
	}
	if quoteReceived.GreaterThan(initialBuyCost) && !money.EqualWithinEpsilon(quoteReceived, initialBuyCost) {
		return model.StateCompletedSuccess
	}
	return model.StateCompletedLoss
}
