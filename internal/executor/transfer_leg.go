package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
	"github.com/axiomtrade/spotarb/internal/rebalancer"
)

// runTransferLeg withdraws the bought base asset from the buy venue to the
// sell venue over the already-chosen network (no re-selection, §4.5
// Transfer leg) and waits for its arrival.
func (e *Executor) runTransferLeg(ctx context.Context, opp *model.Opportunity, details *model.TradeExecutionDetails) error {
	details.State = model.StateTransferLegPending
	base := baseAssetOf(opp.Symbol, e.cfg.QuoteAsset)

	op, err := e.rebalancer.TransferBetweenVenues(ctx, base, opp.BuyVenue, opp.SellVenue, details.NetBaseAfterBuyFee, opp.ChosenNetwork)
	if err != nil {
		return e.failAt(details, classifyTransferFailure(err), err)
	}

	details.TransferID = op.Key
	details.TransferNetwork = *opp.ChosenNetwork
	details.TransferAmount = op.Amount
	details.TransferInitiatedAt = op.StartedAt

	expectedArrival := op.Amount
	if opp.ChosenNetwork.FeeCurrency == base {
		expectedArrival = op.Amount.Sub(opp.ChosenNetwork.FeeNative)
	}
	details.ExpectedArrival = expectedArrival
	details.State = model.StateTransferLegInitiatedWaiting

	increase, err := e.balances.WaitForArrival(ctx, opp.SellVenue, base, gateway.AccountWithdrawal, expectedArrival, e.cfg.CrossVenueArrival)
	if err != nil {
		return e.failAt(details, model.StateTransferLegFailedArrival, fmt.Errorf("executor: arrival wait on %s for %s: %w", opp.SellVenue, base, err))
	}

	details.TransferArrivedAt = time.Now()
	details.TransferAmount = increase
	return nil
}

// classifyTransferFailure maps a TransferBetweenVenues error onto one of
// the named TRANSFER_LEG_FAILED_* states (§4.5), falling back to the
// no-network bucket for errors raised before a deposit address was even
// sought (e.g. insufficient withdrawal-account balance).
func classifyTransferFailure(err error) model.ExecutionState {
	if errors.Is(err, rebalancer.ErrTagRequired) {
		return model.StateTransferLegFailedNoAddress
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "acquire deposit address"):
		return model.StateTransferLegFailedNoAddress
	case strings.Contains(msg, "no feasible network"):
		return model.StateTransferLegFailedNoNetwork
	default:
		return model.StateTransferLegFailedNoNetwork
	}
}
