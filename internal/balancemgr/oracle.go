// Package balancemgr aggregates per-venue account balances and prices
// them in the configured quote currency via a single-flighted ticker
// oracle (§4.1).
package balancemgr

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/axiomtrade/spotarb/internal/gateway"
)

// TickerOracle serves bulk-ticker lookups from a reference venue behind a
// TTL cache; concurrent callers during a refresh share the one in-flight
// fetch via singleflight.
type TickerOracle struct {
	referenceVenue gateway.ExchangeGateway
	ttl            time.Duration

	group singleflight.Group

	mu       sync.RWMutex
	tickers  map[string]gateway.Ticker
	fetchedAt time.Time
}

// NewTickerOracle builds an oracle backed by referenceVenue, refreshing
// its bulk-ticker snapshot at most once per ttl.
func NewTickerOracle(referenceVenue gateway.ExchangeGateway, ttl time.Duration) *TickerOracle {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &TickerOracle{referenceVenue: referenceVenue, ttl: ttl, tickers: make(map[string]gateway.Ticker)}
}

// Price returns the last-known price of symbol in quote terms, refreshing
// the shared snapshot if it's stale.
func (o *TickerOracle) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	if err := o.refreshIfStale(ctx); err != nil {
		return decimal.Zero, false, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.tickers[symbol]
	if !ok {
		return decimal.Zero, false, nil
	}
	price, ok := t.BestBid()
	return price, ok, nil
}

func (o *TickerOracle) refreshIfStale(ctx context.Context) error {
	o.mu.RLock()
	stale := time.Since(o.fetchedAt) > o.ttl
	o.mu.RUnlock()
	if !stale {
		return nil
	}

	_, err, _ := o.group.Do("refresh", func() (any, error) {
		o.mu.RLock()
		stillStale := time.Since(o.fetchedAt) > o.ttl
		o.mu.RUnlock()
		if !stillStale {
			return nil, nil
		}

		fresh, err := o.referenceVenue.FetchTickers(ctx, nil)
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.tickers = fresh
		o.fetchedAt = time.Now()
		o.mu.Unlock()
		return nil, nil
	})
	return err
}
