package analyzer

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
)

// PriceOracle converts amounts of asset into the configured quote currency,
// used by the selector to rank candidate networks by quote-denominated
// fee. ok is false when no price is available.
type PriceOracle func(ctx context.Context, asset string) (price decimal.Decimal, ok bool)

// SelectNetworks implements the network selector (§4.3.1): given an asset
// moving from fromVenue to toVenue, it returns the feasible transfer
// networks ranked cheapest-and-most-preferred first. An empty, nil-error
// result means no asset is currently movable between these venues.
func SelectNetworks(ctx context.Context, asset, fromVenue, toVenue string, fromGw, toGw gateway.ExchangeGateway, policy *Policy, amount *decimal.Decimal, prices PriceOracle) ([]model.NetworkOption, error) {
	if policy.AssetUnavailableBlacklist[venueAsset{fromVenue, asset}] || policy.AssetUnavailableBlacklist[venueAsset{toVenue, asset}] {
		return nil, nil
	}

	fromCurrencies, err := fromGw.FetchCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("analyzer: fetch_currencies(%s): %w", fromVenue, err)
	}
	toCurrencies, err := toGw.FetchCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("analyzer: fetch_currencies(%s): %w", toVenue, err)
	}

	restriction, restricted := policy.TokenNetworkRestriction[venueAsset{fromVenue, asset}]

	withdrawable := buildWithdrawable(asset, fromCurrencies[asset], policy, restriction, restricted)
	depositable := buildDepositable(asset, toCurrencies[asset])

	var candidates []model.NetworkOption
	for normalizedName, w := range withdrawable {
		d, ok := depositable[normalizedName]
		if !ok || normalizedName == model.DefaultNormalizedName {
			continue
		}
		if amount != nil && w.MinWithdraw.GreaterThan(*amount) {
			continue
		}
		candidates = append(candidates, model.NetworkOption{
			VenueNetworkName: d.VenueNetworkName,
			NormalizedName:   normalizedName,
			WithdrawEnabled:  true,
			DepositEnabled:   true,
			FeeNative:        w.FeeNative,
			FeeCurrency:      w.FeeCurrency,
			MinWithdraw:      w.MinWithdraw,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		feeI := feeInQuote(ctx, candidates[i].FeeCurrency, candidates[i].FeeNative, prices)
		feeJ := feeInQuote(ctx, candidates[j].FeeCurrency, candidates[j].FeeNative, prices)
		if !feeI.Equal(feeJ) {
			return feeI.LessThan(feeJ)
		}
		return policy.preferenceRank(asset, candidates[i].NormalizedName) < policy.preferenceRank(asset, candidates[j].NormalizedName)
	})

	return candidates, nil
}

type withdrawCandidate struct {
	FeeNative   decimal.Decimal
	FeeCurrency string
	MinWithdraw decimal.Decimal
}

// buildWithdrawable merges the static fee table (trusted) with live
// currency metadata, normalizing network names and discarding inactive or
// non-withdrawable entries (§4.3.1 step 3). Entries are not filtered on
// their fee: gateway.CurrencyNetwork has no marker for a fee the venue did
// not report, so such a live entry is kept with whatever Fee it carries.
func buildWithdrawable(asset string, currency gateway.Currency, policy *Policy, restriction map[string]bool, restricted bool) map[string]withdrawCandidate {
	out := make(map[string]withdrawCandidate)

	if static, ok := policy.StaticFees[asset]; ok {
		for normalizedName, entry := range static {
			if !entry.Active || !entry.Withdrawable {
				continue
			}
			if restricted && !restriction[normalizedName] {
				continue
			}
			feeCurrency := entry.FeeCurrency
			if feeCurrency == "" {
				feeCurrency = asset
			}
			out[normalizedName] = withdrawCandidate{FeeNative: entry.FeeNative, FeeCurrency: feeCurrency, MinWithdraw: entry.MinWithdraw}
		}
	}

	for _, net := range currency.Networks {
		if !net.Active || !net.Withdraw {
			continue
		}
		normalizedName := NormalizeNetworkName(net.Name)
		if normalizedName == model.DefaultNormalizedName {
			continue
		}
		if restricted && !restriction[normalizedName] {
			continue
		}
		if _, exists := out[normalizedName]; exists {
			continue // static table wins
		}
		feeCurrency := net.FeeCurrency
		if feeCurrency == "" {
			feeCurrency = asset
		}
		out[normalizedName] = withdrawCandidate{FeeNative: net.Fee, FeeCurrency: feeCurrency, MinWithdraw: net.MinWithdrawal}
	}

	return out
}

type depositCandidate struct {
	VenueNetworkName string
}

// buildDepositable keeps only active, depositable networks, recording the
// destination venue's native network code (§4.3.1 step 4).
func buildDepositable(asset string, currency gateway.Currency) map[string]depositCandidate {
	out := make(map[string]depositCandidate)
	for _, net := range currency.Networks {
		if !net.Active || !net.Deposit {
			continue
		}
		normalizedName := NormalizeNetworkName(net.Name)
		if normalizedName == model.DefaultNormalizedName {
			continue
		}
		out[normalizedName] = depositCandidate{VenueNetworkName: net.Name}
	}
	return out
}

// feeInQuote converts a network fee (denominated in asset) to quote
// currency using the supplied oracle, or returns the fee unconverted (as a
// same-scale fallback) when no price is available.
func feeInQuote(ctx context.Context, asset string, feeNative decimal.Decimal, prices PriceOracle) decimal.Decimal {
	if prices == nil {
		return feeNative
	}
	price, ok := prices(ctx, asset)
	if !ok {
		return feeNative
	}
	return feeNative.Mul(price)
}
