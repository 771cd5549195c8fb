package pricing

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Price is the cost of one model in USD per million tokens.
type Price struct {
	InputPerMillion  float64 `yaml:"input_cost_per_million" json:"input_cost_per_million" toml:"input_cost_per_million"`
	OutputPerMillion float64 `yaml:"output_cost_per_million" json:"output_cost_per_million" toml:"output_cost_per_million"`

	// Description is informational only.
	Description string `yaml:"description,omitempty" json:"description,omitempty" toml:"description"`
}

// Validate checks that both prices are finite and non-negative.
func (p Price) Validate() error {
	if p.InputPerMillion < 0 || math.IsNaN(p.InputPerMillion) || math.IsInf(p.InputPerMillion, 0) {
		return fmt.Errorf("input price must be a non-negative number, got %v", p.InputPerMillion)
	}
	if p.OutputPerMillion < 0 || math.IsNaN(p.OutputPerMillion) || math.IsInf(p.OutputPerMillion, 0) {
		return fmt.Errorf("output price must be a non-negative number, got %v", p.OutputPerMillion)
	}
	return nil
}

// ModelPrice pairs a model id with its price.
type ModelPrice struct {
	ModelID string
	Price
}

// Table maps model ids to prices. It is read-mostly and safe for concurrent
// lookup; writes go through Register or Replace.
type Table struct {
	mu       sync.RWMutex
	prices   map[string]Price
	fallback Price
}

// NewTable creates an empty table with the given default entry.
func NewTable(fallback Price) *Table {
	return &Table{
		prices:   make(map[string]Price),
		fallback: fallback,
	}
}

// Register adds or replaces the price for a model id.
func (t *Table) Register(modelID string, price Price) error {
	if modelID == "" {
		return fmt.Errorf("model id is required")
	}
	if err := price.Validate(); err != nil {
		return fmt.Errorf("invalid price for %q: %w", modelID, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[modelID] = price
	return nil
}

// SetDefault replaces the default entry.
func (t *Table) SetDefault(price Price) error {
	if err := price.Validate(); err != nil {
		return fmt.Errorf("invalid default price: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallback = price
	return nil
}

// Replace atomically swaps all registered entries. The default entry is kept.
func (t *Table) Replace(prices map[string]Price) error {
	next := make(map[string]Price, len(prices))
	for id, p := range prices {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid price for %q: %w", id, err)
		}
		next[id] = p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices = next
	return nil
}

// Lookup returns the price for an exact model id. When the id is not
// registered it returns the default entry and false.
func (t *Table) Lookup(modelID string) (Price, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p, ok := t.prices[modelID]; ok {
		return p, true
	}
	return t.fallback, false
}

// Default returns the default entry.
func (t *Table) Default() Price {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fallback
}

// Cost returns the estimated USD cost of an invocation, rounded to 6 decimal
// places.
func (t *Table) Cost(modelID string, inputTokens, outputTokens int64) float64 {
	p, _ := t.Lookup(modelID)
	return Compute(p, inputTokens, outputTokens)
}

// Models returns a snapshot of registered entries sorted by model id.
func (t *Table) Models() []ModelPrice {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ModelPrice, 0, len(t.prices))
	for id, p := range t.prices {
		out = append(out, ModelPrice{ModelID: id, Price: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Compute applies a price to token counts.
func Compute(p Price, inputTokens, outputTokens int64) float64 {
	cost := (float64(inputTokens)/1e6)*p.InputPerMillion + (float64(outputTokens)/1e6)*p.OutputPerMillion
	if cost < 0 {
		cost = 0
	}
	return Round(cost, 6)
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
