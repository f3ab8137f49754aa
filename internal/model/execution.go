package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionState is the executor's state-machine position (§4.5). States
// advance strictly forward except for the terminal set.
type ExecutionState string

const (
	StatePending                    ExecutionState = "PENDING"
	StateBuyLegPending              ExecutionState = "BUY_LEG_PENDING"
	StateBuyLegFilled               ExecutionState = "BUY_LEG_FILLED"
	StateTransferLegPending         ExecutionState = "TRANSFER_LEG_PENDING"
	StateTransferLegInitiatedWaiting ExecutionState = "TRANSFER_LEG_INITIATED_WAITING_ARRIVAL"
	StateSellLegPending              ExecutionState = "SELL_LEG_PENDING"

	StateCompletedSuccess       ExecutionState = "COMPLETED_SUCCESS"
	StateCompletedLoss          ExecutionState = "COMPLETED_LOSS"
	StateCompletedUnknownProfit ExecutionState = "COMPLETED_UNKNOWN_PROFIT"

	StateSetupErrorNoLiquidity   ExecutionState = "SETUP_ERROR_NO_LIQUIDITY"
	StateSetupErrorNoNetwork     ExecutionState = "SETUP_ERROR_NO_NETWORK"
	StateBuyLegFailed            ExecutionState = "BUY_LEG_FAILED"
	StateBuyLegFailedNoFill      ExecutionState = "BUY_LEG_FAILED_NO_FILL"
	StateJITFundingFailedNoSource ExecutionState = "JIT_FUNDING_FAILED_NO_SOURCE"
	StateJITFundingFailedArrival  ExecutionState = "JIT_FUNDING_FAILED_ARRIVAL_TIMEOUT"
	StateTransferLegFailedNoNetwork ExecutionState = "TRANSFER_LEG_FAILED_NO_NETWORK"
	StateTransferLegFailedNoAddress ExecutionState = "TRANSFER_LEG_FAILED_NO_ADDRESS"
	StateTransferLegFailedArrival   ExecutionState = "TRANSFER_LEG_FAILED_ARRIVAL_TIMEOUT"
	StateSellLegFailed              ExecutionState = "SELL_LEG_FAILED"
	StateSellLegFailedMinAmount     ExecutionState = "SELL_LEG_FAILED_MIN_AMOUNT"
)

// Terminal reports whether a state has no further transitions.
func (s ExecutionState) Terminal() bool {
	switch s {
	case StateCompletedSuccess, StateCompletedLoss, StateCompletedUnknownProfit,
		StateSetupErrorNoLiquidity, StateSetupErrorNoNetwork,
		StateBuyLegFailed, StateBuyLegFailedNoFill,
		StateJITFundingFailedNoSource, StateJITFundingFailedArrival,
		StateTransferLegFailedNoNetwork, StateTransferLegFailedNoAddress, StateTransferLegFailedArrival,
		StateSellLegFailed, StateSellLegFailedMinAmount:
		return true
	default:
		return false
	}
}

// Successful reports whether a terminal state represents a completed
// three-leg arbitrage with a definitively positive profit.
func (s ExecutionState) Successful() bool {
	return s == StateCompletedSuccess
}

// Failed reports whether a terminal state represents an execution that
// never reached a completed leg sequence.
func (s ExecutionState) Failed() bool {
	return s.Terminal() && s != StateCompletedSuccess && s != StateCompletedLoss && s != StateCompletedUnknownProfit
}

// TradeExecutionDetails accumulates the observed facts of one arbitrage
// attempt as the executor's state machine advances.
type TradeExecutionDetails struct {
	OpportunityID OpportunityID

	BuyOrderID      string
	BuyFilledQty    decimal.Decimal
	BuyFilledPrice  decimal.Decimal
	BuyFeePaid      decimal.Decimal
	BuyFeeCurrency  string

	// NetBaseAfterBuyFee is BuyFilledQty minus BuyFeePaid when the fee was
	// paid in the base asset, else BuyFilledQty unchanged (§4.5 buy leg).
	NetBaseAfterBuyFee decimal.Decimal

	TransferID          string
	TransferNetwork     NetworkOption
	TransferAmount      decimal.Decimal
	ExpectedArrival     decimal.Decimal
	TransferInitiatedAt time.Time
	TransferArrivedAt   time.Time

	SellOrderID     string
	SellFilledQty   decimal.Decimal
	SellFilledPrice decimal.Decimal
	SellFeePaid     decimal.Decimal
	SellFeeCurrency string

	State        ExecutionState
	Diagnostics  string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Result is the explicit advance/fail outcome of a single executor step,
// replacing exception-based control flow: a step either advances the
// machine to a new non-terminal/terminal state, or fails with diagnostics
// attached to the current state.
type Result struct {
	Details *TradeExecutionDetails
	Err      error
}

// Advance returns a successful result carrying details at their new state.
func Advance(details *TradeExecutionDetails) Result {
	return Result{Details: details}
}

// Fail returns a failed result; details.State should already reflect the
// terminal failure state and details.Diagnostics the cause.
func Fail(details *TradeExecutionDetails, err error) Result {
	return Result{Details: details, Err: err}
}

// CompletedArbitrageLog is the durable, append-only record of one finished
// attempt (successful or not), written by internal/tradelog. ErrorMessages
// only ever grows across an attempt's lifetime; earlier diagnostics are
// never discarded when a later leg also fails.
type CompletedArbitrageLog struct {
	OpportunityID OpportunityID

	BuyVenue  string
	SellVenue string
	Symbol    string

	InitialBuyCostQuote       decimal.Decimal
	NetBaseAfterBuyFee        decimal.Decimal
	BaseReceivedOnSellVenue   decimal.Decimal
	QuoteReceived             decimal.Decimal
	FinalNetProfitQuote       decimal.Decimal
	FinalNetProfitPct         decimal.Decimal

	GrossPct decimal.Decimal
	NetPct   decimal.Decimal

	Details       TradeExecutionDetails
	Status        ExecutionState
	ErrorMessages []string

	RecordedAt time.Time
}

// AppendError records an additional diagnostic without discarding prior
// ones, per the append-only error_messages invariant.
func (l *CompletedArbitrageLog) AppendError(msg string) {
	l.ErrorMessages = append(l.ErrorMessages, msg)
}
