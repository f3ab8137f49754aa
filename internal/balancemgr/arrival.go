package balancemgr

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/gateway"
)

// ArrivalWaitConfig bounds one arrival poll (§4.5.1). Cross-venue
// base-asset transfers use a CheckInterval/MaxWait at least 3x that of
// JIT quote funding, per the spec's distinct-constants requirement.
type ArrivalWaitConfig struct {
	CheckInterval time.Duration
	MaxWait       time.Duration
}

// DefaultJITArrivalWait bounds a same-ecosystem quote-funding transfer.
func DefaultJITArrivalWait() ArrivalWaitConfig {
	return ArrivalWaitConfig{CheckInterval: 5 * time.Second, MaxWait: 2 * time.Minute}
}

// DefaultCrossVenueArrivalWait bounds an on-chain base-asset transfer;
// at least 3x DefaultJITArrivalWait per §4.5.1.
func DefaultCrossVenueArrivalWait() ArrivalWaitConfig {
	return ArrivalWaitConfig{CheckInterval: 15 * time.Second, MaxWait: 10 * time.Minute}
}

// WaitForArrival captures venue/asset/kind's current balance, then polls
// until it has increased by at least expectedIncrease or MaxWait elapses.
// A poll that fails to read the balance does not reset the baseline; it
// simply retries on the next tick.
func (m *Manager) WaitForArrival(ctx context.Context, venueID, asset string, kind gateway.AccountKind, expectedIncrease decimal.Decimal, cfg ArrivalWaitConfig) (decimal.Decimal, error) {
	initial, err := m.AccountFree(ctx, venueID, asset, kind)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balancemgr: arrival wait: initial balance read failed: %w", err)
	}

	deadline := time.Now().Add(cfg.MaxWait)
	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return decimal.Zero, fmt.Errorf("balancemgr: arrival wait timed out after %s for %s on %s", cfg.MaxWait, asset, venueID)
			}
			current, err := m.AccountFree(ctx, venueID, asset, kind)
			if err != nil {
				continue // baseline unaffected, just retry next tick
			}
			increase := current.Sub(initial)
			if increase.GreaterThanOrEqual(expectedIncrease) {
				return increase, nil
			}
		}
	}
}
