package analyzer

import (
	"github.com/shopspring/decimal"
)

// venueAsset is a (venue, asset) pair, used as a map key for the
// asset-unavailable blacklist and token-network restriction tables.
type venueAsset struct {
	Venue string
	Asset string
}

// pathKey is a (asset, from venue, to venue, normalized network) tuple,
// used as a map key for the path blacklist and whitelist.
type pathKey struct {
	Asset   string
	From    string
	To      string
	Network string
}

// StaticFeeEntry is one operator-curated network fee record, trusted over
// live currency metadata when both name the same normalized network
// (§4.3.1 step 3).
type StaticFeeEntry struct {
	NormalizedName string
	FeeNative      decimal.Decimal
	FeeCurrency    string // empty means denominated in the withdrawn asset itself
	MinWithdraw    decimal.Decimal
	Active         bool
	Withdrawable   bool
	Depositable    bool
}

// Policy bundles every blacklist/whitelist/preference/static-fee input the
// network selector and whitelist walk consult (§4.3, §4.3.1, §6).
type Policy struct {
	// AssetUnavailableBlacklist marks a (venue, asset) pair entirely
	// off-limits for transfer-network selection.
	AssetUnavailableBlacklist map[venueAsset]bool

	// PathBlacklist marks a specific (asset, from, to, network) path as
	// forbidden during the whitelist/blacklist walk.
	PathBlacklist map[pathKey]bool

	// Whitelist, when EnforceWhitelist is set, restricts the walk to only
	// the listed (asset, from, to, network) paths.
	Whitelist        map[pathKey]bool
	EnforceWhitelist bool

	// TokenNetworkRestriction limits a (venue, asset) to a specific set of
	// normalized network names, when present.
	TokenNetworkRestriction map[venueAsset]map[string]bool

	// StaticFees is the operator-curated fee table, keyed by (asset,
	// normalized network name).
	StaticFees map[string]map[string]StaticFeeEntry

	// TokenPreference ranks normalized network names per asset; lower
	// index wins ties. GeneralPreference is the fallback ranking for
	// assets absent from TokenPreference.
	TokenPreference  map[string][]string
	GeneralPreference []string

	// GloballyBlacklistedAssets marks a (venue, asset) pair to be dropped
	// from consideration before stability tracking even begins (§4.3
	// step 1).
	GloballyBlacklistedAssets map[venueAsset]bool
}

// NewPolicy returns an empty, ready-to-populate Policy.
func NewPolicy() *Policy {
	return &Policy{
		AssetUnavailableBlacklist: make(map[venueAsset]bool),
		PathBlacklist:             make(map[pathKey]bool),
		Whitelist:                 make(map[pathKey]bool),
		TokenNetworkRestriction:   make(map[venueAsset]map[string]bool),
		StaticFees:                make(map[string]map[string]StaticFeeEntry),
		TokenPreference:           make(map[string][]string),
		GloballyBlacklistedAssets: make(map[venueAsset]bool),
	}
}

func (p *Policy) BlacklistAssetUnavailable(venue, asset string) {
	p.AssetUnavailableBlacklist[venueAsset{venue, asset}] = true
}

func (p *Policy) BlacklistPath(asset, from, to, network string) {
	p.PathBlacklist[pathKey{asset, from, to, network}] = true
}

func (p *Policy) AllowPath(asset, from, to, network string) {
	p.Whitelist[pathKey{asset, from, to, network}] = true
}

func (p *Policy) RestrictTokenNetworks(venue, asset string, networks ...string) {
	set := make(map[string]bool, len(networks))
	for _, n := range networks {
		set[n] = true
	}
	p.TokenNetworkRestriction[venueAsset{venue, asset}] = set
}

func (p *Policy) SetStaticFee(asset string, entry StaticFeeEntry) {
	if p.StaticFees[asset] == nil {
		p.StaticFees[asset] = make(map[string]StaticFeeEntry)
	}
	p.StaticFees[asset][entry.NormalizedName] = entry
}

func (p *Policy) BlacklistGlobally(venue, asset string) {
	p.GloballyBlacklistedAssets[venueAsset{venue, asset}] = true
}

// preferenceRank returns a rank for (asset, normalizedName): token-specific
// preference wins ties against general preference via an offset so a
// token-listed asset's worst rank still beats any general-only rank
// (§4.3.1 step 6).
func (p *Policy) preferenceRank(asset, normalizedName string) int {
	const tokenOffset = -1_000_000
	if ranks, ok := p.TokenPreference[asset]; ok {
		for i, n := range ranks {
			if n == normalizedName {
				return tokenOffset + i
			}
		}
	}
	for i, n := range p.GeneralPreference {
		if n == normalizedName {
			return i
		}
	}
	return len(p.GeneralPreference)
}
