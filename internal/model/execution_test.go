package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionStateTerminal(t *testing.T) {
	assert.False(t, StatePending.Terminal())
	assert.False(t, StateBuyLegPending.Terminal())
	assert.False(t, StateTransferLegInitiatedWaiting.Terminal())
	assert.True(t, StateCompletedSuccess.Terminal())
	assert.True(t, StateBuyLegFailed.Terminal())
	assert.True(t, StateTransferLegFailedArrival.Terminal())
}

func TestExecutionStateSuccessful(t *testing.T) {
	assert.True(t, StateCompletedSuccess.Successful())
	assert.False(t, StateCompletedLoss.Successful())
	assert.False(t, StateSellLegFailed.Successful())
	assert.False(t, StatePending.Successful())
}

func TestExecutionStateFailed(t *testing.T) {
	assert.True(t, StateSellLegFailed.Failed())
	assert.True(t, StateBuyLegFailedNoFill.Failed())
	assert.False(t, StateCompletedLoss.Failed(), "a completed loss is not a pipeline failure")
	assert.False(t, StateCompletedUnknownProfit.Failed())
	assert.False(t, StatePending.Failed())
}

func TestAdvanceAndFail(t *testing.T) {
	details := &TradeExecutionDetails{State: StateBuyLegFilled}

	advanced := Advance(details)
	assert.NoError(t, advanced.Err)
	assert.Equal(t, StateBuyLegFilled, advanced.Details.State)

	details.State = StateSellLegFailed
	failed := Fail(details, assert.AnError)
	assert.Error(t, failed.Err)
	assert.True(t, failed.Details.State.Terminal())
}

func TestCompletedArbitrageLogAppendError(t *testing.T) {
	log := &CompletedArbitrageLog{}
	log.AppendError("buy leg timed out")
	log.AppendError("cancel attempt failed")

	assert.Equal(t, []string{"buy leg timed out", "cancel attempt failed"}, log.ErrorMessages)
}
