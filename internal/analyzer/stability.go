package analyzer

import (
	"sync"

	"github.com/axiomtrade/spotarb/internal/model"
)

// StabilityTable tracks how many consecutive scans have observed each
// opportunity identity; an identity absent from a scan is evicted (§4.3).
type StabilityTable struct {
	mu     sync.Mutex
	cycles int
	counts map[model.OpportunityID]int
}

// NewStabilityTable builds a table requiring cycles consecutive
// observations before an identity is considered stable.
func NewStabilityTable(cycles int) *StabilityTable {
	if cycles < 1 {
		cycles = 1
	}
	return &StabilityTable{cycles: cycles, counts: make(map[model.OpportunityID]int)}
}

// Observe increments the count for every identity present in seen and
// evicts every previously tracked identity absent from it, returning the
// updated count per identity.
func (t *StabilityTable) Observe(seen []model.OpportunityID) map[model.OpportunityID]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	present := make(map[model.OpportunityID]bool, len(seen))
	for _, id := range seen {
		present[id] = true
		t.counts[id]++
	}
	for id := range t.counts {
		if !present[id] {
			delete(t.counts, id)
		}
	}

	out := make(map[model.OpportunityID]int, len(t.counts))
	for id, c := range t.counts {
		out[id] = c
	}
	return out
}

// IsStable reports whether id has reached the configured observation
// threshold.
func (t *StabilityTable) IsStable(id model.OpportunityID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[id] >= t.cycles
}

// Remove drops id from the table so it must be re-observed from scratch
// before being selected again (§4.3: "removed from the stability table so
// it is not picked again until re-observed").
func (t *StabilityTable) Remove(id model.OpportunityID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, id)
}
