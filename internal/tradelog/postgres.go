package tradelog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/axiomtrade/spotarb/internal/model"
)

// pgxPool is the slice of *pgxpool.Pool that PostgresSink needs. Accepting
// it as an interface lets tests substitute pgxmock without a live database.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// postgresBreakerSettings mirrors the teacher's database circuit breaker
// thresholds: faster recovery than an exchange call since a local
// Postgres outage is usually short-lived.
var postgresBreakerSettings = gobreaker.Settings{
	Name:        "tradelog_postgres",
	MaxRequests: 5,
	Interval:    10 * time.Second,
	Timeout:     15 * time.Second,
	ReadyToTrip: func(counts gobreaker.Counts) bool {
		return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
	},
}

// PostgresSink mirrors every completed trade to a `trades` table,
// best-effort, behind a circuit breaker so a database outage degrades to
// skipped mirror writes instead of blocking trade recording.
type PostgresSink struct {
	pool    pgxPool
	breaker *gobreaker.CircuitBreaker
}

// NewPostgresSink connects to databaseURL and ensures the destination
// table exists.
func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("tradelog: parse database url: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tradelog: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tradelog: ping database: %w", err)
	}

	sink := &PostgresSink{
		pool:    pool,
		breaker: gobreaker.NewCircuitBreaker(postgresBreakerSettings),
	}

	if _, err := pool.Exec(ctx, createTradesTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tradelog: create trades table: %w", err)
	}

	return sink, nil
}

const createTradesTableSQL = `
CREATE TABLE IF NOT EXISTS trades (
	id SERIAL PRIMARY KEY,
	buy_venue TEXT NOT NULL,
	sell_venue TEXT NOT NULL,
	symbol TEXT NOT NULL,
	gross_pct NUMERIC NOT NULL,
	net_pct NUMERIC NOT NULL,
	final_net_profit_quote NUMERIC NOT NULL,
	status TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
)`

// Write inserts entry, tripping the breaker on repeated failure rather
// than letting a slow/unreachable database stall the caller.
func (s *PostgresSink) Write(ctx context.Context, entry *model.CompletedArbitrageLog) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		_, execErr := s.pool.Exec(ctx, `
			INSERT INTO trades (buy_venue, sell_venue, symbol, gross_pct, net_pct, final_net_profit_quote, status, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			entry.BuyVenue, entry.SellVenue, entry.Symbol,
			entry.GrossPct.String(), entry.NetPct.String(), entry.FinalNetProfitQuote.String(),
			string(entry.Status), entry.RecordedAt,
		)
		return nil, execErr
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return fmt.Errorf("tradelog: postgres circuit breaker open")
		}
		return fmt.Errorf("tradelog: insert trade: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
