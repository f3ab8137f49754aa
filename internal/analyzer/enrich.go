package analyzer

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
)

// defaultTakerFeePct is used when a venue's market metadata has no taker
// rate on file (§4.3: "default 0.1% if absent").
var defaultTakerFeePct = decimal.NewFromFloat(0.1)

func baseAsset(symbol, quote string) string {
	return strings.TrimSuffix(symbol, "/"+quote)
}

// MarketsOf resolves a venue+symbol to its market metadata, used to read
// the taker fee rate.
type MarketsOf func(venue, symbol string) (gateway.Market, bool)

// Enrich attaches fee, network, and net-profit fields to opp, mutating a
// clone and returning it. tradeNotional is the configured quote-sized
// trade amount used to express the withdrawal fee as a percentage.
func Enrich(ctx context.Context, opp *model.Opportunity, tradeNotional decimal.Decimal, markets MarketsOf, buyGw, sellGw gateway.ExchangeGateway, policy *Policy, prices PriceOracle) (*model.Opportunity, error) {
	out := opp.Clone()

	out.BuyFeePct = takerFeePct(markets, out.BuyVenue, out.Symbol)
	out.SellFeePct = takerFeePct(markets, out.SellVenue, out.Symbol)

	base := baseAsset(out.Symbol, quoteAssetSymbol(out.Symbol))

	networks, err := SelectNetworks(ctx, base, out.BuyVenue, out.SellVenue, buyGw, sellGw, policy, nil, prices)
	if err != nil {
		return nil, err
	}
	out.PotentialNetworks = networks

	if len(networks) == 0 {
		out.ChosenNetwork = nil
		out.WithdrawalFeeQuote = decimal.Zero
		out.NetPct = out.GrossPct.Sub(out.BuyFeePct).Sub(out.SellFeePct)
		return out, nil
	}

	chosen := networks[0]
	out.ChosenNetwork = &chosen
	recomputeNetPct(ctx, out, base, tradeNotional, prices)
	return out, nil
}

// quoteAssetSymbol extracts the quote leg from a "BASE/QUOTE" symbol.
func quoteAssetSymbol(symbol string) string {
	idx := strings.LastIndex(symbol, "/")
	if idx < 0 {
		return ""
	}
	return symbol[idx+1:]
}

func callOracle(ctx context.Context, prices PriceOracle, asset string) (decimal.Decimal, bool) {
	if prices == nil {
		return decimal.Zero, false
	}
	return prices(ctx, asset)
}

func takerFeePct(markets MarketsOf, venue, symbol string) decimal.Decimal {
	if markets == nil {
		return defaultTakerFeePct
	}
	m, ok := markets(venue, symbol)
	if !ok || m.TakerFeePct.IsZero() {
		return defaultTakerFeePct
	}
	return m.TakerFeePct
}

// recomputeNetPct converts the chosen network's fee to quote currency and
// recomputes net_pct, per the conversion-order rule (§4.3): buy_price if
// the fee is paid in the base asset, direct if paid in quote, else oracle.
func recomputeNetPct(ctx context.Context, opp *model.Opportunity, base string, tradeNotional decimal.Decimal, prices PriceOracle) {
	if opp.ChosenNetwork == nil {
		opp.WithdrawalFeeQuote = decimal.Zero
		opp.NetPct = opp.GrossPct.Sub(opp.BuyFeePct).Sub(opp.SellFeePct)
		return
	}

	feeCurrency := opp.ChosenNetwork.FeeCurrency
	feeNative := opp.ChosenNetwork.FeeNative

	var feeQuote decimal.Decimal
	switch {
	case feeCurrency == base:
		feeQuote = feeNative.Mul(opp.BuyPrice)
	case feeCurrency == "" || feeCurrency == quoteAssetSymbol(opp.Symbol):
		feeQuote = feeNative
	default:
		if price, ok := callOracle(ctx, prices, feeCurrency); ok {
			feeQuote = feeNative.Mul(price)
		} else {
			feeQuote = feeNative // no oracle price: treat as already quote-scaled rather than silently drop it
		}
	}

	opp.WithdrawalFeeQuote = feeQuote

	withdrawalFeePct := decimal.Zero
	if tradeNotional.IsPositive() {
		withdrawalFeePct = feeQuote.Div(tradeNotional).Mul(decimal.NewFromInt(100))
	}
	opp.NetPct = opp.GrossPct.Sub(opp.BuyFeePct).Sub(opp.SellFeePct).Sub(withdrawalFeePct)
}
