package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkOptionMatches(t *testing.T) {
	erc20a := NetworkOption{NormalizedName: "ERC20"}
	erc20b := NetworkOption{NormalizedName: "ERC20"}
	bep20 := NetworkOption{NormalizedName: "BEP20"}
	unknownA := NetworkOption{NormalizedName: DefaultNormalizedName}
	unknownB := NetworkOption{NormalizedName: DefaultNormalizedName}

	assert.True(t, erc20a.Matches(erc20b))
	assert.False(t, erc20a.Matches(bep20))
	assert.False(t, unknownA.Matches(unknownB), "UNKNOWN must never match, even itself")
	assert.False(t, erc20a.Matches(unknownA))
}

func TestNetworkOptionValidate(t *testing.T) {
	ok := NetworkOption{VenueNetworkName: "ERC20", FeeNative: dec("0.001")}
	assert.NoError(t, ok.Validate())

	bad := NetworkOption{VenueNetworkName: "ERC20", FeeNative: dec("-0.001")}
	assert.Error(t, bad.Validate())
}
