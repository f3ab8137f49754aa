package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RebalanceKind distinguishes the funding paths described in §4.4.
type RebalanceKind string

const (
	RebalanceInternalTransfer RebalanceKind = "INTERNAL_TRANSFER"
	RebalanceCrossVenue       RebalanceKind = "CROSS_VENUE_WITHDRAWAL"
	RebalanceConvertToQuote   RebalanceKind = "CONVERT_TO_QUOTE"
)

// RebalanceOperation tracks one in-flight funding action so the Scheduler
// can dedupe concurrent requests for the same (asset, from, to,
// quantized_amount) tuple (§5).
type RebalanceOperation struct {
	Key       string // dedup key, see NewRebalanceKey
	Kind      RebalanceKind
	Asset     string
	From      string // account purpose for INTERNAL_TRANSFER, source venue otherwise
	To        string // account purpose for INTERNAL_TRANSFER, destination venue otherwise
	Amount    decimal.Decimal
	StartedAt time.Time
	Done      bool
	Err       error
}

// NewRebalanceKey builds the dedup key for an in-flight operation. Two
// operations against the same (asset, from, to) under the same
// already-quantized amount are considered the same in-flight unit of work.
func NewRebalanceKey(kind RebalanceKind, asset, from, to string, quantizedAmount decimal.Decimal) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", kind, asset, from, to, quantizedAmount.String())
}

// NewRebalanceOperationID returns a synthetic identifier for dry-run/paper
// operations that never reach a real venue, mirroring the gateway's
// synthetic order ids.
func NewRebalanceOperationID() string {
	return uuid.NewString()
}
