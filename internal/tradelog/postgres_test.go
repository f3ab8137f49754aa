package tradelog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/axiomtrade/spotarb/internal/model"
)

// These exercise PostgresSink's query shape against a mocked driver, so
// they run under a plain `go test ./...` with no Docker daemon; the
// container-backed round trip lives in postgres_integration_test.go.

func newMockSink(t *testing.T) (*PostgresSink, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return &PostgresSink{
		pool:    mock,
		breaker: gobreaker.NewCircuitBreaker(postgresBreakerSettings),
	}, mock
}

func TestPostgresSinkWriteInsertsExpectedRow(t *testing.T) {
	sink, mock := newMockSink(t)

	entry := &model.CompletedArbitrageLog{
		BuyVenue:            "alpha",
		SellVenue:           "beta",
		Symbol:              "BTCUSDT",
		GrossPct:            decimal.NewFromFloat(0.8),
		NetPct:              decimal.NewFromFloat(0.3),
		FinalNetProfitQuote: decimal.NewFromFloat(1.5),
		Status:              model.StateCompletedSuccess,
		RecordedAt:          time.Unix(1700000000, 0).UTC(),
	}

	mock.ExpectExec("INSERT INTO trades").
		WithArgs("alpha", "beta", "BTCUSDT", "0.8", "0.3", "1.5", string(model.StateCompletedSuccess), entry.RecordedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, sink.Write(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkWritePropagatesDriverError(t *testing.T) {
	sink, mock := newMockSink(t)

	entry := &model.CompletedArbitrageLog{
		BuyVenue:   "alpha",
		SellVenue:  "beta",
		Symbol:     "BTCUSDT",
		GrossPct:   decimal.Zero,
		NetPct:     decimal.Zero,
		RecordedAt: time.Unix(1700000000, 0).UTC(),
	}

	mock.ExpectExec("INSERT INTO trades").
		WillReturnError(errors.New("connection reset by peer"))

	err := sink.Write(context.Background(), entry)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
