package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// OrderWaitConfig bounds the order-status poll used after order
// submission (§4.5.2): a fixed number of attempts at a fixed delay, as
// opposed to WithRetry's exponential backoff, since an order's status is
// expected to settle quickly once it has even been accepted.
type OrderWaitConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultOrderWaitConfig mirrors a conservative post-submission poll.
func DefaultOrderWaitConfig() OrderWaitConfig {
	return OrderWaitConfig{MaxAttempts: 5, Delay: 2 * time.Second}
}

// FetchOrderUntilTerminal polls fetch_order for orderID/symbol, returning
// as soon as a terminal status (closed, canceled, or other-terminal) is
// observed. OrderNotFound is fatal after a single grace retry. On
// exhaustion it returns the last observed open/partial state so the
// caller can decide a cancellation policy.
func FetchOrderUntilTerminal(ctx context.Context, gw ExchangeGateway, orderID, symbol string, cfg OrderWaitConfig) (Order, error) {
	var last Order
	grantedGrace := false

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		order, err := gw.FetchOrder(ctx, orderID, symbol)
		if err != nil {
			if isOrderNotFound(err) && !grantedGrace {
				grantedGrace = true
				if waitErr := sleepOrCancel(ctx, cfg.Delay); waitErr != nil {
					return last, waitErr
				}
				continue
			}
			return Order{}, fmt.Errorf("gateway: fetch_order(%s, %s): %w", orderID, symbol, err)
		}

		last = order
		switch order.Status {
		case OrderStatusClosed, OrderStatusCanceled, OrderStatusOther:
			return order, nil
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if waitErr := sleepOrCancel(ctx, cfg.Delay); waitErr != nil {
			return last, waitErr
		}
	}

	return last, nil
}

func isOrderNotFound(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

func sleepOrCancel(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
