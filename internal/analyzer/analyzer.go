// Package analyzer tracks opportunity stability across scan cycles,
// enriches survivors with fees and a feasible transfer network, applies
// the whitelist/blacklist walk, and selects a single depth-checked winner
// (§4.3).
package analyzer

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/leverage"
	"github.com/axiomtrade/spotarb/internal/model"
)

// Config bundles the tunables the Analyzer consults each cycle.
type Config struct {
	TopN          int
	TradeNotional decimal.Decimal
	MinLiquidity  decimal.Decimal
	SlippagePct   decimal.Decimal
}

// Analyzer is the stateful stability-tracking, enrichment, and selection
// stage between the Scanner and the Executor.
type Analyzer struct {
	stability *StabilityTable
	policy    *Policy
	cfg       Config
	venues    map[string]gateway.ExchangeGateway
	markets   MarketsOf
	prices    PriceOracle
	log       zerolog.Logger
}

// New builds an Analyzer. stabilityCycles is the number of consecutive
// observations required before an opportunity is eligible for selection.
func New(stabilityCycles int, policy *Policy, cfg Config, venues map[string]gateway.ExchangeGateway, markets MarketsOf, prices PriceOracle, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		stability: NewStabilityTable(stabilityCycles),
		policy:    policy,
		cfg:       cfg,
		venues:    venues,
		markets:   markets,
		prices:    prices,
		log:       log,
	}
}

// Analyze runs one full cycle over the scanner's candidates and returns at
// most one selected opportunity, or nil if none survive.
func (a *Analyzer) Analyze(ctx context.Context, opps []*model.Opportunity) (*model.Opportunity, error) {
	filtered := a.filter(opps)

	ids := make([]model.OpportunityID, 0, len(filtered))
	byID := make(map[model.OpportunityID]*model.Opportunity, len(filtered))
	for _, o := range filtered {
		id := o.ID()
		ids = append(ids, id)
		byID[id] = o
	}
	counts := a.stability.Observe(ids)

	var stable []*model.Opportunity
	for id, count := range counts {
		if count < a.stability.cycles {
			continue
		}
		if o, ok := byID[id]; ok {
			o.StabilityCount = count
			o.IsStable = true
			stable = append(stable, o)
		}
	}

	sort.Slice(stable, func(i, j int) bool { return stable[i].GrossPct.GreaterThan(stable[j].GrossPct) })
	if a.cfg.TopN > 0 && len(stable) > a.cfg.TopN {
		stable = stable[:a.cfg.TopN]
	}

	var survivors []*model.Opportunity
	for _, o := range stable {
		buyGw, ok := a.venues[o.BuyVenue]
		if !ok {
			continue
		}
		sellGw, ok := a.venues[o.SellVenue]
		if !ok {
			continue
		}
		enriched, err := Enrich(ctx, o, a.cfg.TradeNotional, a.markets, buyGw, sellGw, a.policy, a.prices)
		if err != nil {
			a.log.Warn().Err(err).Str("opportunity", o.ID().String()).Msg("enrichment failed, dropping candidate")
			continue
		}
		walked := a.walk(ctx, enriched)
		if walked == nil {
			continue
		}
		survivors = append(survivors, walked)
	}

	sort.Slice(survivors, func(i, j int) bool { return survivors[i].NetPct.GreaterThan(survivors[j].NetPct) })

	for _, candidate := range survivors {
		ok, err := a.passesDepthCheck(ctx, candidate)
		if err != nil {
			a.log.Warn().Err(err).Str("opportunity", candidate.ID().String()).Msg("depth check failed")
			continue
		}
		if !ok {
			continue
		}
		candidate.IsLiquid = true
		a.stability.Remove(candidate.ID())
		return candidate, nil
	}
	return nil, nil
}

// filter drops leveraged-token symbols and globally-blacklisted (venue,
// asset) pairs before stability tracking (§4.3 step 1).
func (a *Analyzer) filter(opps []*model.Opportunity) []*model.Opportunity {
	out := make([]*model.Opportunity, 0, len(opps))
	for _, o := range opps {
		base := baseAsset(o.Symbol, quoteAssetSymbol(o.Symbol))
		if leverage.IsLeveraged(base) {
			continue
		}
		if a.policy.GloballyBlacklistedAssets[venueAsset{o.BuyVenue, base}] {
			continue
		}
		if a.policy.GloballyBlacklistedAssets[venueAsset{o.SellVenue, base}] {
			continue
		}
		out = append(out, o)
	}
	return out
}

// walk iterates opp's ranked networks, skipping blacklisted paths and, if
// whitelist enforcement is on, paths absent from the whitelist. The first
// surviving network becomes the chosen one (§4.3).
func (a *Analyzer) walk(ctx context.Context, opp *model.Opportunity) *model.Opportunity {
	base := baseAsset(opp.Symbol, quoteAssetSymbol(opp.Symbol))
	provisional := opp.ChosenNetwork

	for i := range opp.PotentialNetworks {
		candidate := opp.PotentialNetworks[i]
		key := pathKey{Asset: base, From: opp.BuyVenue, To: opp.SellVenue, Network: candidate.NormalizedName}
		if a.policy.PathBlacklist[key] {
			continue
		}
		if a.policy.EnforceWhitelist && !a.policy.Whitelist[key] {
			continue
		}
		opp.ChosenNetwork = &candidate
		if provisional == nil || provisional.NormalizedName != candidate.NormalizedName {
			recomputeNetPct(ctx, opp, base, a.cfg.TradeNotional, a.prices)
		}
		return opp
	}
	return nil
}

func (a *Analyzer) passesDepthCheck(ctx context.Context, opp *model.Opportunity) (bool, error) {
	buyGw, ok := a.venues[opp.BuyVenue]
	if !ok {
		return false, nil
	}
	sellGw, ok := a.venues[opp.SellVenue]
	if !ok {
		return false, nil
	}

	amountBase := decimal.Zero
	if opp.BuyPrice.IsPositive() {
		amountBase = a.cfg.TradeNotional.Div(opp.BuyPrice)
	}

	buyResult, err := CheckDepth(ctx, buyGw, opp.Symbol, gateway.OrderSideBuy, amountBase, opp.BuyPrice, a.cfg.SlippagePct, a.cfg.MinLiquidity)
	if err != nil {
		return false, err
	}
	if !buyResult.Pass {
		return false, nil
	}

	sellResult, err := CheckDepth(ctx, sellGw, opp.Symbol, gateway.OrderSideSell, amountBase, opp.SellPrice, a.cfg.SlippagePct, a.cfg.MinLiquidity)
	if err != nil {
		return false, err
	}
	return sellResult.Pass, nil
}
