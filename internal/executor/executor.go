// Package executor drives a single opportunity through the three-leg
// buy -> transfer -> sell state machine (§4.5): a buy on the opportunity's
// buy venue, an on-chain transfer of the base asset to the sell venue, and
// a sell there. Every step returns an explicit advance/fail result
// (model.Result) instead of raising an exception into the caller — per
// REDESIGN FLAGS §9, no leg-failure class ever unwinds the stack.
//
// The Executor never rolls back a leg that already happened: a failure
// after the buy leg leaves the base asset wherever it landed, and recovery
// is operator-driven from the trade log (§7).
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/axiomtrade/spotarb/internal/balancemgr"
	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
	"github.com/axiomtrade/spotarb/internal/rebalancer"
)

// Config bundles the tunables the Executor consults on every attempt.
type Config struct {
	QuoteAsset        string
	TradeAmount       decimal.Decimal
	MinEffectiveTrade decimal.Decimal
	JITMinConversion  decimal.Decimal
	ReserveBuffer     decimal.Decimal
	TransferFeeBuffer decimal.Decimal
	JITLiquidAssets   []string

	// CostBasedBuyDenylist lists venues whose cost-based market buy is not
	// trusted even when advertised, per §9 Open Question 1.
	CostBasedBuyDenylist map[string]bool
	PreferCostBasedBuy   bool

	// RetryPartialBuyRemainder documents, but does not implement, the
	// alternative policy of re-buying a partial fill's remainder (§9 Open
	// Question 2). Left false: partial fills are accepted once closed.
	RetryPartialBuyRemainder bool

	// HoldOnExhaustedOpenOrder documents, but does not implement, holding
	// an order open and re-entering the wait loop instead of cancelling it
	// (§9 Open Question 3).
	HoldOnExhaustedOpenOrder bool

	OrderWait         gateway.OrderWaitConfig
	JITArrival        balancemgr.ArrivalWaitConfig
	CrossVenueArrival balancemgr.ArrivalWaitConfig
}

// MarketsOf resolves venue+symbol market metadata, used to quantize a
// price-derived buy amount when cost-based buys are unavailable.
type MarketsOf func(venue, symbol string) (gateway.Market, bool)

// CurrencyOf resolves venue+asset currency metadata, used to quantize the
// amount handed to InternalTransfer/quantize helpers.
type CurrencyOf func(venue, asset string) (gateway.Currency, bool)

// Executor is the three-leg trade orchestrator (§4.5).
type Executor struct {
	venues     map[string]gateway.ExchangeGateway
	balances   *balancemgr.Manager
	rebalancer *rebalancer.Rebalancer
	markets    MarketsOf
	currencies CurrencyOf
	cfg        Config
	alerts     *gateway.AlertManager
	log        zerolog.Logger

	mu     sync.Mutex
	active map[model.OpportunityID]bool
}

// New builds an Executor.
func New(venues map[string]gateway.ExchangeGateway, balances *balancemgr.Manager, rb *rebalancer.Rebalancer, markets MarketsOf, currencies CurrencyOf, cfg Config, alerts *gateway.AlertManager, log zerolog.Logger) *Executor {
	return &Executor{
		venues:     venues,
		balances:   balances,
		rebalancer: rb,
		markets:    markets,
		currencies: currencies,
		cfg:        cfg,
		alerts:     alerts,
		log:        log,
		active:     make(map[model.OpportunityID]bool),
	}
}

// ErrAlreadyActive is returned when the opportunity's identity already has
// an in-flight execution (§5: at-most-one execution per identity).
var ErrAlreadyActive = errors.New("executor: opportunity already has an execution in flight")

// Execute runs one opportunity through the full state machine and returns
// the terminal CompletedArbitrageLog. The returned error is non-nil iff
// the execution finished in a failure state, including precondition and
// concurrency-guard rejections. A precondition rejection still returns a
// log recording the setup failure; a concurrency-guard rejection
// (ErrAlreadyActive) returns no log.
func (e *Executor) Execute(ctx context.Context, opp *model.Opportunity) (*model.CompletedArbitrageLog, error) {
	id := opp.ID()

	if !opp.IsLiquid {
		return e.setupFailure(opp, model.StateSetupErrorNoLiquidity, fmt.Errorf("executor: opportunity %s is not marked liquid", id))
	}
	if opp.ChosenNetwork == nil {
		return e.setupFailure(opp, model.StateSetupErrorNoNetwork, fmt.Errorf("executor: opportunity %s has no chosen transfer network", id))
	}

	if !e.tryAcquire(id) {
		return nil, ErrAlreadyActive
	}
	defer e.release(id)

	details := &model.TradeExecutionDetails{
		OpportunityID: id,
		State:         model.StatePending,
		StartedAt:     time.Now(),
	}

	initialBuyCost := decimalMax(e.cfg.TradeAmount, e.cfg.MinEffectiveTrade)

	if err := e.runBuyLeg(ctx, opp, details, initialBuyCost); err != nil {
		return e.finish(opp, details, initialBuyCost, err)
	}
	if err := e.runTransferLeg(ctx, opp, details); err != nil {
		return e.finish(opp, details, initialBuyCost, err)
	}
	if err := e.runSellLeg(ctx, opp, details, initialBuyCost); err != nil {
		return e.finish(opp, details, initialBuyCost, err)
	}

	return e.finish(opp, details, initialBuyCost, nil)
}

func (e *Executor) tryAcquire(id model.OpportunityID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[id] {
		return false
	}
	e.active[id] = true
	return true
}

func (e *Executor) release(id model.OpportunityID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, id)
}

// setupFailure builds the terminal log for a precondition failure that
// never even entered the state machine proper.
func (e *Executor) setupFailure(opp *model.Opportunity, state model.ExecutionState, err error) (*model.CompletedArbitrageLog, error) {
	details := &model.TradeExecutionDetails{
		OpportunityID: opp.ID(),
		State:         state,
		Diagnostics:   err.Error(),
		StartedAt:     time.Now(),
		FinishedAt:    time.Now(),
	}
	return e.buildLog(opp, details, decimal.Zero), err
}

func baseAssetOf(symbol, quote string) string {
	return strings.TrimSuffix(symbol, "/"+quote)
}

// failAt marks details terminal at state with err's message as the
// diagnostic, and returns err unchanged — the single place every leg
// function funnels a failure through (§9: advance/fail result, no
// exception-based control flow).
func (e *Executor) failAt(details *model.TradeExecutionDetails, state model.ExecutionState, err error) error {
	details.State = state
	details.Diagnostics = err.Error()
	return err
}

func decimalMax(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// finish stamps details.FinishedAt, alerts on a failure, and builds the
// CompletedArbitrageLog the caller persists.
func (e *Executor) finish(opp *model.Opportunity, details *model.TradeExecutionDetails, initialBuyCost decimal.Decimal, runErr error) (*model.CompletedArbitrageLog, error) {
	details.FinishedAt = time.Now()
	log := e.buildLog(opp, details, initialBuyCost)

	if runErr != nil {
		log.AppendError(runErr.Error())
		if e.alerts != nil {
			e.alerts.SendAlert(context.Background(), gateway.Alert{
				Severity: severityFor(details.State),
				Category: gateway.AlertCategoryExecution,
				Message:  fmt.Sprintf("execution %s terminated in %s", opp.ID(), details.State),
				Err:      runErr,
				Venue:    opp.BuyVenue,
			})
		}
	}
	return log, runErr
}

func severityFor(state model.ExecutionState) gateway.AlertSeverity {
	if strings.Contains(string(state), "TRANSFER_LEG_FAILED") && state != model.StateTransferLegFailedNoNetwork {
		return gateway.AlertSeverityCritical // a withdrawal may already be in flight on-chain
	}
	return gateway.AlertSeverityWarning
}

func (e *Executor) buildLog(opp *model.Opportunity, details *model.TradeExecutionDetails, initialBuyCost decimal.Decimal) *model.CompletedArbitrageLog {
	quoteReceived := details.SellFilledQty.Mul(details.SellFilledPrice)
	if details.SellFeeCurrency == e.cfg.QuoteAsset {
		quoteReceived = quoteReceived.Sub(details.SellFeePaid)
	}

	finalProfit := decimal.Zero
	finalProfitPct := decimal.Zero
	if details.State.Successful() || details.State == model.StateCompletedLoss {
		finalProfit = quoteReceived.Sub(initialBuyCost)
		if initialBuyCost.IsPositive() {
			finalProfitPct = finalProfit.Div(initialBuyCost).Mul(decimal.NewFromInt(100))
		}
	}

	return &model.CompletedArbitrageLog{
		OpportunityID:           opp.ID(),
		BuyVenue:                opp.BuyVenue,
		SellVenue:               opp.SellVenue,
		Symbol:                  opp.Symbol,
		InitialBuyCostQuote:     initialBuyCost,
		NetBaseAfterBuyFee:      details.NetBaseAfterBuyFee,
		BaseReceivedOnSellVenue: details.TransferAmount,
		QuoteReceived:           quoteReceived,
		FinalNetProfitQuote:     finalProfit,
		FinalNetProfitPct:       finalProfitPct,
		GrossPct:                opp.GrossPct,
		NetPct:                  opp.NetPct,
		Details:                 *details,
		Status:                  details.State,
		RecordedAt:              time.Now(),
	}
}

// bestEffortCancel attempts to cancel order, logging but never returning
// an error: a cancellation failure must not mask the original fault.
func (e *Executor) bestEffortCancel(ctx context.Context, gw gateway.ExchangeGateway, order gateway.Order) {
	if order.ID == "" {
		return
	}
	if _, err := gw.CancelOrder(ctx, order.ID, order.Symbol); err != nil {
		e.log.Warn().Err(err).Str("venue", gw.Venue()).Str("order_id", order.ID).Msg("best-effort order cancel failed")
	}
}
