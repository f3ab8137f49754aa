package gateway

import (
	"encoding/json"
	"fmt"
	"os"
)

// SimFixture is the on-disk seed data for one SimGateway (§6 DRY_RUN
// paper trading), loaded at startup for any venue configured with kind
// "sim". Each field mirrors one of SimGateway's Seed* methods, so loading
// a fixture is equivalent to calling every Seed* method by hand.
type SimFixture struct {
	Markets    []Market            `json:"markets"`
	Tickers    []Ticker            `json:"tickers"`
	OrderBooks []OrderBook         `json:"order_books"`
	Currencies []Currency          `json:"currencies"`
	Balances   []SimFixtureBalance `json:"balances"`
	Addresses  []DepositAddress    `json:"deposit_addresses"`
}

// SimFixtureBalance pairs a balance with the account kind it seeds.
type SimFixtureBalance struct {
	Kind    AccountKind `json:"kind"`
	Balance Balance     `json:"balance"`
}

// LoadFixture reads and parses a SimFixture from a JSON file on disk.
func LoadFixture(path string) (*SimFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gateway: read fixture %s: %w", path, err)
	}
	var fx SimFixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("gateway: parse fixture %s: %w", path, err)
	}
	return &fx, nil
}

// SeedFromFixture populates s with every entry in fx.
func (s *SimGateway) SeedFromFixture(fx SimFixture) {
	for _, m := range fx.Markets {
		s.SeedMarket(m)
	}
	for _, t := range fx.Tickers {
		s.SeedTicker(t)
	}
	for _, b := range fx.OrderBooks {
		s.SeedOrderBook(b)
	}
	for _, c := range fx.Currencies {
		s.SeedCurrency(c)
	}
	for _, b := range fx.Balances {
		s.SeedBalance(b.Kind, b.Balance)
	}
	for _, a := range fx.Addresses {
		s.SeedDepositAddress(a)
	}
}
