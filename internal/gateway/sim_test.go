package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSimGatewayMarketBuyAndSell(t *testing.T) {
	ctx := context.Background()
	sim := NewSimGateway("sim-a", DefaultFeeConfig())
	sim.SeedTicker(Ticker{Symbol: "BTC/USDT", Bid: dec("100"), Ask: dec("101")})

	order, err := sim.CreateMarketBuyOrder(ctx, "BTC/USDT", dec("1"))
	require.NoError(t, err)
	assert.Equal(t, OrderStatusClosed, order.Status)
	assert.True(t, order.Filled.Equal(dec("1")))
	assert.True(t, order.Average.GreaterThan(dec("101")), "buy fill should slip above the ask")

	fetched, err := sim.FetchOrder(ctx, order.ID, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, order.ID, fetched.ID)
}

func TestSimGatewayCostBasedBuy(t *testing.T) {
	ctx := context.Background()
	sim := NewSimGateway("sim-b", DefaultFeeConfig())
	sim.SeedTicker(Ticker{Symbol: "ETH/USDT", Ask: dec("2000")})

	order, err := sim.CreateMarketBuyOrderWithCost(ctx, "ETH/USDT", dec("1000"))
	require.NoError(t, err)
	assert.True(t, order.Filled.GreaterThan(decimal.Zero))
}

func TestSimGatewayTransferRequiresSufficientFreeBalance(t *testing.T) {
	ctx := context.Background()
	sim := NewSimGateway("sim-c", DefaultFeeConfig())
	sim.SeedBalance(AccountTrading, Balance{Asset: "USDT", Free: dec("50"), Total: dec("50")})

	err := sim.Transfer(ctx, "USDT", dec("100"), AccountTrading, AccountWithdrawal)
	assert.Error(t, err)

	err = sim.Transfer(ctx, "USDT", dec("50"), AccountTrading, AccountWithdrawal)
	require.NoError(t, err)

	bal, err := sim.FetchBalance(ctx, AccountWithdrawal)
	require.NoError(t, err)
	assert.True(t, bal["USDT"].Free.Equal(dec("50")))
}

func TestSimGatewayDepositAddressCreateThenFetch(t *testing.T) {
	ctx := context.Background()
	sim := NewSimGateway("sim-d", DefaultFeeConfig())

	_, err := sim.FetchDepositAddress(ctx, "USDT", "ERC20")
	assert.ErrorIs(t, err, ErrNotSupported)

	created, err := sim.CreateDepositAddress(ctx, "USDT", "ERC20")
	require.NoError(t, err)
	assert.NotEmpty(t, created.Address)

	fetched, err := sim.FetchDepositAddress(ctx, "USDT", "ERC20")
	require.NoError(t, err)
	assert.Equal(t, created.Address, fetched.Address)
}

func TestSimGatewayCancelOrderAfterClose(t *testing.T) {
	ctx := context.Background()
	sim := NewSimGateway("sim-e", DefaultFeeConfig())
	sim.SeedTicker(Ticker{Symbol: "BTC/USDT", Bid: dec("100"), Ask: dec("100")})

	order, err := sim.CreateMarketBuyOrder(ctx, "BTC/USDT", dec("1"))
	require.NoError(t, err)

	canceled, err := sim.CancelOrder(ctx, order.ID, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusClosed, canceled.Status, "a fully filled order stays closed, not canceled")
}
