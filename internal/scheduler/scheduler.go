// Package scheduler drives the single logical cycle loop (§5): scan for
// gross opportunities, analyze them down to at most one stable winner,
// and execute that winner — never more than one execution in flight at a
// time. Per REDESIGN FLAGS, there is no process-wide mutable
// configuration or hidden logging singleton here: every dependency is
// threaded through the constructor.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/axiomtrade/spotarb/internal/analyzer"
	"github.com/axiomtrade/spotarb/internal/executor"
	"github.com/axiomtrade/spotarb/internal/metrics"
	"github.com/axiomtrade/spotarb/internal/scanner"
	"github.com/axiomtrade/spotarb/internal/tradelog"
)

// Config bundles the cycle-level tunables (§6 "timings").
type Config struct {
	// CycleSleep is the delay between the end of one cycle and the start
	// of the next.
	CycleSleep time.Duration

	// PostTradeCooldown is an additional delay applied only after a cycle
	// that executed a trade, win or lose, before the next scan begins.
	PostTradeCooldown time.Duration

	// CycleCount bounds the number of cycles run; 0 means run until the
	// context is canceled.
	CycleCount int
}

// Scheduler is the top-level driver gluing Scanner, Analyzer, Executor,
// and the trade log together into one repeating cycle.
type Scheduler struct {
	scanner  *scanner.Scanner
	analyzer *analyzer.Analyzer
	executor *executor.Executor
	log      *tradelog.Store
	cfg      Config
	logger   zerolog.Logger
}

// New builds a Scheduler. log may be nil to run without trade-log
// recording (e.g. a smoke test).
func New(sc *scanner.Scanner, an *analyzer.Analyzer, ex *executor.Executor, log *tradelog.Store, cfg Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		scanner:  sc,
		analyzer: an,
		executor: ex,
		log:      log,
		cfg:      cfg,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run repeats Cycle until ctx is canceled or cfg.CycleCount cycles have
// run (CycleCount == 0 means forever). A cycle's own error never stops
// the loop; it is logged and the scheduler moves on to the next cycle
// after the configured sleep, matching the teacher's "continue running
// despite errors" step-loop policy.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("cycle_sleep", s.cfg.CycleSleep).
		Int("cycle_count", s.cfg.CycleCount).
		Msg("scheduler starting")

	for n := 1; s.cfg.CycleCount == 0 || n <= s.cfg.CycleCount; n++ {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler context canceled, shutting down")
			return ctx.Err()
		default:
		}

		traded, err := s.Cycle(ctx, n)
		if err != nil {
			s.logger.Error().Err(err).Int("cycle", n).Msg("cycle failed")
		}

		sleep := s.cfg.CycleSleep
		if traded {
			sleep += s.cfg.PostTradeCooldown
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler context canceled, shutting down")
			return ctx.Err()
		case <-time.After(sleep):
		}
	}

	s.logger.Info().Msg("scheduler reached configured cycle count, stopping")
	return nil
}

// Cycle runs one scan -> analyze -> execute pass. It returns traded=true
// iff an execution was attempted this cycle (regardless of outcome),
// which the caller uses to apply the post-trade cooldown.
func (s *Scheduler) Cycle(ctx context.Context, n int) (traded bool, err error) {
	start := time.Now()
	defer func() {
		metrics.CyclesRun.Inc()
		metrics.CycleDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	opps, err := s.scanner.ScanOnce(ctx)
	if err != nil {
		return false, err
	}

	selected, err := s.analyzer.Analyze(ctx, opps)
	if err != nil {
		return false, err
	}
	if selected == nil {
		s.logger.Debug().Int("cycle", n).Int("candidates", len(opps)).Msg("no opportunity selected this cycle")
		return false, nil
	}

	metrics.OpportunitiesFound.Inc()
	s.logger.Info().
		Int("cycle", n).
		Str("buy_venue", selected.BuyVenue).
		Str("sell_venue", selected.SellVenue).
		Str("symbol", selected.Symbol).
		Msg("executing selected opportunity")

	result, execErr := s.executor.Execute(ctx, selected)

	if result == nil {
		// A nil result means the concurrency guard rejected the attempt
		// before it ever became a recordable trade (precondition
		// rejections still return a log); there is nothing to append to
		// the trade log.
		return false, execErr
	}

	metrics.RecordExecution(string(result.Status))

	if s.log != nil {
		if appendErr := s.log.Append(ctx, result); appendErr != nil {
			s.logger.Error().Err(appendErr).Msg("failed to append trade log entry")
		}
	}

	return true, execErr
}
