// Package credits handles the platform's credit-based billing: a price
// book for metered operations, a charging service backed by the workspace
// ledger, and a low-balance alert monitor.
package credits

import "strings"

type Operation string

const (
	OpCreativeGeneration Operation = "creative_generation"
	OpCompetitorScan     Operation = "competitor_scan"
	OpReport             Operation = "report"
)

// PriceBook maps operations to credit prices. Creative generation is
// priced per model; everything else has a flat price.
type PriceBook struct {
	modelPrices map[string]int64
	flatPrices  map[Operation]int64
	defaultGen  int64
}

var defaultModelPrices = map[string]int64{
	"gpt-4o":            5,
	"gpt-4o-mini":       1,
	"gpt-4-turbo":       5,
	"claude-sonnet-4-5": 5,
	"claude-haiku-4-5":  1,
	"nova-pro":          3,
	"nova-lite":         1,
}

func NewPriceBook() *PriceBook {
	return &PriceBook{
		modelPrices: defaultModelPrices,
		flatPrices: map[Operation]int64{
			OpCompetitorScan: 2,
			OpReport:         1,
		},
		defaultGen: 3,
	}
}

// Price returns the credit cost for an operation. model is only consulted
// for creative generation; an unknown model falls back to the default
// generation price rather than going uncharged.
func (p *PriceBook) Price(op Operation, model string) int64 {
	if op == OpCreativeGeneration {
		if price, ok := p.modelPrices[normalizeModel(model)]; ok {
			return price
		}
		return p.defaultGen
	}
	if price, ok := p.flatPrices[op]; ok {
		return price
	}
	return 0
}

func (p *PriceBook) SetModelPrice(model string, price int64) {
	p.modelPrices[normalizeModel(model)] = price
}

// normalizeModel strips dated suffixes like "gpt-4o-2024-08-06" so pricing
// keys stay stable across provider snapshot releases. The longest matching
// key wins, so "gpt-4o-mini-..." never collapses to "gpt-4o".
func normalizeModel(model string) string {
	if _, ok := defaultModelPrices[model]; ok {
		return model
	}
	best := model
	bestLen := 0
	for key := range defaultModelPrices {
		if strings.HasPrefix(model, key) && len(key) > bestLen {
			best = key
			bestLen = len(key)
		}
	}
	return best
}
