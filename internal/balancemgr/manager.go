package balancemgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
)

// StaticPrices is an operator-curated fallback price table, consulted
// only after the cache and a direct ticker fetch both miss (§4.1).
type StaticPrices map[string]decimal.Decimal

// Manager aggregates balances across every configured venue and, when
// asked, prices each asset in quote terms.
type Manager struct {
	venues       map[string]gateway.ExchangeGateway
	oracle       *TickerOracle
	quoteAsset   string
	stablecoins  map[string]bool
	staticPrices StaticPrices
	accountKinds []gateway.AccountKind
	log          zerolog.Logger
}

// New builds a Manager over venues, using oracle for non-quote pricing
// and staticPrices as the last-resort fallback.
func New(venues map[string]gateway.ExchangeGateway, oracle *TickerOracle, quoteAsset string, stablecoins []string, staticPrices StaticPrices, log zerolog.Logger) *Manager {
	stable := make(map[string]bool, len(stablecoins)+1)
	stable[quoteAsset] = true
	for _, s := range stablecoins {
		stable[s] = true
	}
	return &Manager{
		venues:       venues,
		oracle:       oracle,
		quoteAsset:   quoteAsset,
		stablecoins:  stable,
		staticPrices: staticPrices,
		accountKinds: []gateway.AccountKind{gateway.AccountTrading, gateway.AccountWithdrawal},
		log:          log,
	}
}

// Snapshot aggregates every venue's balance independently; a failing
// venue is dropped from the result with a logged warning rather than
// failing the whole snapshot (§4.1: "a failure in one venue does not
// prevent returning the snapshot for the others").
func (m *Manager) Snapshot(ctx context.Context, withUSDValues bool) map[string]model.ExchangeBalance {
	results := make(map[string]model.ExchangeBalance, len(m.venues))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for venueID, gw := range m.venues {
		venueID, gw := venueID, gw
		g.Go(func() error {
			bal, err := m.snapshotVenue(gctx, venueID, gw, withUSDValues)
			if err != nil {
				m.log.Warn().Err(err).Str("venue", venueID).Msg("failed to snapshot venue balance")
				return nil
			}
			mu.Lock()
			results[venueID] = bal
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *Manager) snapshotVenue(ctx context.Context, venueID string, gw gateway.ExchangeGateway, withUSDValues bool) (model.ExchangeBalance, error) {
	combined := make(map[string]model.AssetBalance)
	for _, kind := range m.accountKinds {
		balances, err := gw.FetchBalance(ctx, kind)
		if err != nil {
			return model.ExchangeBalance{}, fmt.Errorf("balancemgr: fetch_balance(%s, %s): %w", venueID, kind, err)
		}
		for asset, b := range balances {
			existing := combined[asset]
			existing.Asset = asset
			existing.Free = existing.Free.Add(b.Free)
			existing.Total = existing.Total.Add(b.Total)
			combined[asset] = existing
		}
	}

	totalUSD := decimal.Zero
	if withUSDValues {
		for asset, b := range combined {
			usd := m.valueInQuote(ctx, venueID, asset, b.Total)
			b.USDValue = usd
			combined[asset] = b
			totalUSD = totalUSD.Add(usd)
		}
	}

	return model.ExchangeBalance{Venue: venueID, Assets: combined, TotalUSD: totalUSD}, nil
}

// valueInQuote prices amount of asset held on venueID in quote terms,
// following the fallback chain: stablecoin parity, cache, direct fetch,
// static table, else zero with a logged warning.
func (m *Manager) valueInQuote(ctx context.Context, venueID, asset string, amount decimal.Decimal) decimal.Decimal {
	if m.stablecoins[asset] {
		return amount
	}

	symbol := asset + "/" + m.quoteAsset
	if price, ok, err := m.oracle.Price(ctx, symbol); err == nil && ok {
		return amount.Mul(price)
	}

	if gw, ok := m.venues[venueID]; ok {
		if t, err := gw.FetchTicker(ctx, symbol); err == nil {
			if price, ok := t.BestBid(); ok {
				return amount.Mul(price)
			}
		}
	}

	if price, ok := m.staticPrices[asset]; ok {
		return amount.Mul(price)
	}

	m.log.Warn().Str("asset", asset).Str("venue", venueID).Msg("no price available, valuing at zero")
	return decimal.Zero
}

// AccountFree returns the free balance of asset in the given account kind
// on venueID, or zero and an error if the venue is unknown or the read
// fails.
func (m *Manager) AccountFree(ctx context.Context, venueID, asset string, kind gateway.AccountKind) (decimal.Decimal, error) {
	gw, ok := m.venues[venueID]
	if !ok {
		return decimal.Zero, fmt.Errorf("balancemgr: unknown venue %s", venueID)
	}
	balances, err := gw.FetchBalance(ctx, kind)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balancemgr: account_free(%s, %s, %s): %w", venueID, asset, kind, err)
	}
	return balances[asset].Free, nil
}
