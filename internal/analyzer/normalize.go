package analyzer

import (
	"regexp"
	"strings"

	"github.com/axiomtrade/spotarb/internal/model"
)

// railPattern maps a regex over a venue's raw network label to the
// canonical rail identity used to intersect withdrawal/deposit candidates
// across venues (§4.3.1).
type railPattern struct {
	match *regexp.Regexp
	name  string
}

var railPatterns = []railPattern{
	{regexp.MustCompile(`(?i)erc[\s-]?20|ethereum`), "ERC20"},
	{regexp.MustCompile(`(?i)bep[\s-]?20|bsc|bnb\s*smart\s*chain`), "BEP20"},
	{regexp.MustCompile(`(?i)trc[\s-]?20|tron`), "TRC20"},
	{regexp.MustCompile(`(?i)\bsol\b|solana`), "SOLANA"},
	{regexp.MustCompile(`(?i)matic|polygon`), "POLYGON"},
	{regexp.MustCompile(`(?i)arbitrum|\barb\b`), "ARBITRUM"},
	{regexp.MustCompile(`(?i)optimism|\bop\b`), "OPTIMISM"},
	{regexp.MustCompile(`(?i)avalanche|avax.?c`), "AVAXC"},
}

// NormalizeNetworkName maps a venue's raw network label to its canonical
// rail identity, or model.DefaultNormalizedName ("UNKNOWN") when nothing
// recognizable matches.
func NormalizeNetworkName(raw string) string {
	trimmed := strings.TrimSpace(raw)
	for _, p := range railPatterns {
		if p.match.MatchString(trimmed) {
			return p.name
		}
	}
	return model.DefaultNormalizedName
}
