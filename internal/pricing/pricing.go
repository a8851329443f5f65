package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownModel reports a model id missing from the pricing table.
var ErrUnknownModel = errors.New("unknown model")

// UnknownModelError carries the model id that could not be priced.
type UnknownModelError struct {
	Model string
}

// Error renders the missing model id.
func (err *UnknownModelError) Error() string {
	return fmt.Sprintf("pricing: unknown model %q", err.Model)
}

// Is matches ErrUnknownModel.
func (err *UnknownModelError) Is(target error) bool {
	return target == ErrUnknownModel
}

// Price is the per-1K-token price pair for a model, in USD.
type Price struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// CostBreakdown is the priced cost of one generation call.
type CostBreakdown struct {
	PromptCost     float64 `json:"prompt_cost"`
	CompletionCost float64 `json:"completion_cost"`
	TotalCost      float64 `json:"total_cost"`
}

// Table maps model ids to prices. The zero value is not usable; use NewTable.
type Table struct {
	mu     sync.RWMutex
	prices map[string]Price
}

// NewTable builds a table from the provided prices.
func NewTable(prices map[string]Price) *Table {
	table := &Table{prices: make(map[string]Price, len(prices))}
	for model, price := range prices {
		table.prices[normalizeModel(model)] = price
	}
	return table
}

// DefaultTable returns a table seeded with commonly used models.
func DefaultTable() *Table {
	return NewTable(map[string]Price{
		"gpt-3.5-turbo":              {InputPer1K: 0.0015, OutputPer1K: 0.002},
		"gpt-4":                      {InputPer1K: 0.03, OutputPer1K: 0.06},
		"gpt-4-turbo":                {InputPer1K: 0.01, OutputPer1K: 0.03},
		"gpt-4o":                     {InputPer1K: 0.0025, OutputPer1K: 0.01},
		"gpt-4o-mini":                {InputPer1K: 0.00015, OutputPer1K: 0.0006},
		"claude-3-haiku-20240307":    {InputPer1K: 0.00025, OutputPer1K: 0.00125},
		"claude-3-5-haiku-20241022":  {InputPer1K: 0.0008, OutputPer1K: 0.004},
		"claude-3-5-sonnet-20241022": {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-sonnet-4-20250514":   {InputPer1K: 0.003, OutputPer1K: 0.015},
	})
}

// Set adds or replaces the price for a model.
func (t *Table) Set(model string, price Price) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[normalizeModel(model)] = price
}

// WithAlias prices model exactly like target. It is the only way to opt into a
// fallback price; Calculate never defaults on its own.
func (t *Table) WithAlias(model, target string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	price, ok := t.prices[normalizeModel(target)]
	if !ok {
		return &UnknownModelError{Model: target}
	}
	t.prices[normalizeModel(model)] = price
	return nil
}

// Lookup returns the price for a model.
func (t *Table) Lookup(model string) (Price, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	price, ok := t.prices[normalizeModel(model)]
	return price, ok
}

// Models returns the priced model ids in sorted order.
func (t *Table) Models() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	models := make([]string, 0, len(t.prices))
	for model := range t.prices {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// Calculate prices a call from its token usage.
func (t *Table) Calculate(promptTokens, completionTokens int, model string) (CostBreakdown, error) {
	price, ok := t.Lookup(model)
	if !ok {
		return CostBreakdown{}, &UnknownModelError{Model: model}
	}
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	promptCost := float64(promptTokens) / 1000 * price.InputPer1K
	completionCost := float64(completionTokens) / 1000 * price.OutputPer1K
	return CostBreakdown{
		PromptCost:     promptCost,
		CompletionCost: completionCost,
		TotalCost:      promptCost + completionCost,
	}, nil
}

func normalizeModel(model string) string {
	return strings.ToLower(strings.TrimSpace(model))
}
