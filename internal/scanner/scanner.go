// Package scanner loads market metadata and, each cycle, turns per-venue
// ticker snapshots into gross arbitrage opportunities (§4.2).
package scanner

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/leverage"
	"github.com/axiomtrade/spotarb/internal/model"
)

// Bounds are the configured gross-opportunity admission thresholds.
type Bounds struct {
	MinGross decimal.Decimal
	MaxGross decimal.Decimal
}

// pairKey identifies one ordered (buy venue, sell venue) relationship's
// common-symbol set.
type pairKey struct {
	buyVenue, sellVenue string
}

// Scanner is stateless between calls aside from the common-pair set
// computed once at Init.
type Scanner struct {
	venues      map[string]gateway.ExchangeGateway
	quoteAsset  string
	bounds      Bounds
	log         zerolog.Logger

	mu         sync.RWMutex
	commonPairs map[pairKey][]string // symbols common to both venues, spot + quoted in quoteAsset + not leveraged
}

// New builds a Scanner over venues; call Init before the first Scan.
func New(venues map[string]gateway.ExchangeGateway, quoteAsset string, bounds Bounds, log zerolog.Logger) *Scanner {
	return &Scanner{venues: venues, quoteAsset: quoteAsset, bounds: bounds, log: log}
}

// Init loads markets on every venue concurrently and computes, for each
// ordered pair of venues, the common spot-symbol set quoted in quoteAsset
// and not a leveraged-token symbol.
func (s *Scanner) Init(ctx context.Context) error {
	type loaded struct {
		venue   string
		markets map[string]gateway.Market
	}

	results := make([]loaded, 0, len(s.venues))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for venueID, gw := range s.venues {
		venueID, gw := venueID, gw
		g.Go(func() error {
			markets, err := gw.LoadMarkets(gctx)
			if err != nil {
				return fmt.Errorf("scanner: load_markets(%s): %w", venueID, err)
			}
			mu.Lock()
			results = append(results, loaded{venue: venueID, markets: markets})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	spotSets := make(map[string]map[string]bool, len(results))
	for _, r := range results {
		set := make(map[string]bool)
		for symbol, m := range r.markets {
			if !m.Active || !m.Spot {
				continue
			}
			if !hasQuoteSuffix(symbol, s.quoteAsset) {
				continue
			}
			base := baseOf(symbol, s.quoteAsset)
			if leverage.IsLeveraged(base) {
				continue
			}
			set[symbol] = true
		}
		spotSets[r.venue] = set
	}

	pairs := make(map[pairKey][]string)
	for buyVenue, buySet := range spotSets {
		for sellVenue, sellSet := range spotSets {
			if buyVenue == sellVenue {
				continue
			}
			var common []string
			for symbol := range buySet {
				if sellSet[symbol] {
					common = append(common, symbol)
				}
			}
			if len(common) > 0 {
				pairs[pairKey{buyVenue, sellVenue}] = common
			}
		}
	}

	s.mu.Lock()
	s.commonPairs = pairs
	s.mu.Unlock()
	return nil
}

func hasQuoteSuffix(symbol, quote string) bool {
	n := len(symbol) - len(quote) - 1
	return n > 0 && symbol[n] == '/' && symbol[n+1:] == quote
}

func baseOf(symbol, quote string) string {
	return symbol[:len(symbol)-len(quote)-1]
}

// ScanOnce fetches tickers in bulk per venue and, for every common pair,
// generates gross opportunities for both directions.
func (s *Scanner) ScanOnce(ctx context.Context) ([]*model.Opportunity, error) {
	s.mu.RLock()
	pairs := s.commonPairs
	s.mu.RUnlock()

	neededSymbols := make(map[string]map[string]bool) // venue -> symbols
	for key, symbols := range pairs {
		for _, venue := range []string{key.buyVenue, key.sellVenue} {
			if neededSymbols[venue] == nil {
				neededSymbols[venue] = make(map[string]bool)
			}
			for _, sym := range symbols {
				neededSymbols[venue][sym] = true
			}
		}
	}

	results := make(map[string]map[string]gateway.Ticker, len(neededSymbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for venueID, symbolSet := range neededSymbols {
		venueID := venueID
		symbols := make([]string, 0, len(symbolSet))
		for sym := range symbolSet {
			symbols = append(symbols, sym)
		}
		gw, ok := s.venues[venueID]
		if !ok {
			continue
		}
		g.Go(func() error {
			tickers, err := gw.FetchTickers(gctx, symbols)
			if err != nil {
				s.log.Warn().Err(err).Str("venue", venueID).Msg("failed to fetch tickers, excluding venue from this cycle")
				return nil
			}
			mu.Lock()
			results[venueID] = tickers
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var opps []*model.Opportunity
	for key, symbols := range pairs {
		buyTickers, ok := results[key.buyVenue]
		if !ok {
			continue
		}
		sellTickers, ok := results[key.sellVenue]
		if !ok {
			continue
		}
		for _, symbol := range symbols {
			buyTicker, ok := buyTickers[symbol]
			if !ok {
				continue
			}
			sellTicker, ok := sellTickers[symbol]
			if !ok {
				continue
			}
			if opp := s.candidate(key.buyVenue, key.sellVenue, symbol, buyTicker, sellTicker); opp != nil {
				opps = append(opps, opp)
			}
		}
	}
	return opps, nil
}

// candidate evaluates one (buy venue, sell venue, symbol) direction
// against the gross-opportunity admission rule.
func (s *Scanner) candidate(buyVenue, sellVenue, symbol string, buyTicker, sellTicker gateway.Ticker) *model.Opportunity {
	ask, ok := buyTicker.BestAsk()
	if !ok || !ask.IsPositive() {
		return nil
	}
	bid, ok := sellTicker.BestBid()
	if !ok || !bid.IsPositive() {
		return nil
	}
	if !ask.LessThan(bid) {
		return nil
	}

	grossPct := bid.Sub(ask).Div(ask).Mul(decimal.NewFromInt(100))
	if grossPct.LessThan(s.bounds.MinGross) || grossPct.GreaterThan(s.bounds.MaxGross) {
		return nil
	}

	return &model.Opportunity{
		BuyVenue:  buyVenue,
		SellVenue: sellVenue,
		Symbol:    symbol,
		BuyPrice:  ask,
		SellPrice: bid,
		GrossPct:  grossPct,
	}
}
