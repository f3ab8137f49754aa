package rebalancer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/axiomtrade/spotarb/internal/analyzer"
	"github.com/axiomtrade/spotarb/internal/gateway"
	"github.com/axiomtrade/spotarb/internal/model"
)

// ErrTagRequired is returned when a venue's returned address lacks the
// memo/tag a configured asset requires (§4.4.2).
var ErrTagRequired = errors.New("rebalancer: deposit address is missing a required memo/tag")

// AcquireDepositAddress resolves a deposit address for asset on gw under
// requestedNetworkCode (the destination venue's native network label, as
// recorded by the network selector), following the spec's attempt order:
// explicit network, then no-hint-with-compatibility-check, then
// create-then-refetch. requireTag enforces the memo/tag hard-failure rule
// for assets configured to need one on this venue.
func AcquireDepositAddress(ctx context.Context, gw gateway.ExchangeGateway, asset, requestedNetworkCode string, requireTag bool) (gateway.DepositAddress, error) {
	if addr, err := gw.FetchDepositAddress(ctx, asset, requestedNetworkCode); err == nil {
		return finishAddress(addr, requireTag)
	}

	if addr, err := gw.FetchDepositAddress(ctx, asset, ""); err == nil {
		if CompatibleNetworks(addr.Network, requestedNetworkCode) {
			return finishAddress(addr, requireTag)
		}
	}

	if gw.Capabilities().HasCreateDepositAddress {
		if _, err := gw.CreateDepositAddress(ctx, asset, requestedNetworkCode); err != nil {
			return gateway.DepositAddress{}, fmt.Errorf("rebalancer: create_deposit_address(%s, %s, %s): %w", gw.Venue(), asset, requestedNetworkCode, err)
		}
		addr, err := gw.FetchDepositAddress(ctx, asset, requestedNetworkCode)
		if err != nil {
			return gateway.DepositAddress{}, fmt.Errorf("rebalancer: fetch_deposit_address after create(%s, %s, %s): %w", gw.Venue(), asset, requestedNetworkCode, err)
		}
		return finishAddress(addr, requireTag)
	}

	return gateway.DepositAddress{}, fmt.Errorf("rebalancer: no deposit address acquisition method succeeded for %s/%s on %s", asset, requestedNetworkCode, gw.Venue())
}

func finishAddress(addr gateway.DepositAddress, requireTag bool) (gateway.DepositAddress, error) {
	if requireTag && addr.Tag == "" {
		return gateway.DepositAddress{}, ErrTagRequired
	}
	return addr, nil
}

// CompatibleNetworks implements the §4.4.2 compatibility rule between a
// venue's returned network label and the one the caller requested.
func CompatibleNetworks(returnedRaw, requestedRaw string) bool {
	if strings.EqualFold(returnedRaw, "DEFAULT") {
		return true
	}
	if isGenericLabel(requestedRaw) {
		return false
	}
	return analyzer.NormalizeNetworkName(returnedRaw) == analyzer.NormalizeNetworkName(requestedRaw)
}

func isGenericLabel(raw string) bool {
	return raw == "" || strings.EqualFold(raw, "DEFAULT") || strings.EqualFold(raw, model.DefaultNormalizedName)
}
