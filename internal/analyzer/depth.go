package analyzer

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/gateway"
)

// DepthResult is the outcome of one order-book depth check (§4.3.2).
type DepthResult struct {
	Pass           bool
	VisibleLiquidity decimal.Decimal
	FillPrice      decimal.Decimal
	Reason         string
}

const depthLevels = 20

// CheckDepth fetches up to depthLevels of venue/symbol's book on the given
// side and verifies amountBase can be filled within slippagePct of
// targetPrice, with total visible liquidity at least minLiquidity. A venue
// without order-book support defaults to pass.
func CheckDepth(ctx context.Context, gw gateway.ExchangeGateway, symbol string, side gateway.OrderSide, amountBase, targetPrice, slippagePct, minLiquidity decimal.Decimal) (DepthResult, error) {
	if !gw.Capabilities().HasOrderBook {
		return DepthResult{Pass: true, Reason: "venue has no order-book support, defaulting to pass"}, nil
	}

	book, err := gw.FetchOrderBook(ctx, symbol, depthLevels)
	if err != nil {
		return DepthResult{}, fmt.Errorf("analyzer: fetch_order_book(%s): %w", symbol, err)
	}

	levels := book.Asks
	if side == gateway.OrderSideSell {
		levels = book.Bids
	}

	visible := decimal.Zero
	for _, l := range levels {
		visible = visible.Add(l.Price.Mul(l.Amount))
	}
	if visible.LessThan(minLiquidity) {
		return DepthResult{Pass: false, VisibleLiquidity: visible, Reason: "visible liquidity below MIN_LIQUIDITY"}, nil
	}

	slipFrac := slippagePct.Div(decimal.NewFromInt(100))
	lowerBound := targetPrice.Mul(decimal.NewFromInt(1).Sub(slipFrac))
	upperBound := targetPrice.Mul(decimal.NewFromInt(1).Add(slipFrac))

	remaining := amountBase
	filledQuote := decimal.Zero
	filledBase := decimal.Zero
	for _, l := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if l.Price.LessThan(lowerBound) || l.Price.GreaterThan(upperBound) {
			continue
		}
		take := l.Amount
		if take.GreaterThan(remaining) {
			take = remaining
		}
		filledQuote = filledQuote.Add(take.Mul(l.Price))
		filledBase = filledBase.Add(take)
		remaining = remaining.Sub(take)
	}

	if remaining.GreaterThan(decimal.Zero) {
		return DepthResult{Pass: false, VisibleLiquidity: visible, Reason: "amount not fully coverable within slippage band"}, nil
	}

	fillPrice := filledQuote.Div(filledBase)
	if fillPrice.LessThan(lowerBound) || fillPrice.GreaterThan(upperBound) {
		return DepthResult{Pass: false, VisibleLiquidity: visible, FillPrice: fillPrice, Reason: "volume-weighted fill price outside slippage band"}, nil
	}

	return DepthResult{Pass: true, VisibleLiquidity: visible, FillPrice: fillPrice}, nil
}
