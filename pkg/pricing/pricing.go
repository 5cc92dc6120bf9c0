// Package pricing computes request cost from a model catalog.
package pricing

import "github.com/pario-ai/llmrouter/pkg/models"

const perMillion = 1_000_000

// CalculateCost returns the USD cost of a call on model.
//
// Cached tokens are a subset of input tokens and are billed at the cached-input
// price when the model has one, otherwise at the input price. Unknown models and
// models without a metered price cost 0. Negative counts are treated as 0 and
// cached is clamped to inputTokens, so the result is never negative.
func CalculateCost(catalog models.Catalog, model string, inputTokens, outputTokens, cachedTokens int) float64 {
	d, ok := catalog[model]
	if !ok || !d.Metered() {
		return 0
	}

	in := nonNegative(inputTokens)
	out := nonNegative(outputTokens)
	cached := min(nonNegative(cachedTokens), in)

	cachedPrice := d.CachedInputPerMillion
	if cachedPrice <= 0 || cachedPrice > d.InputPerMillion {
		cachedPrice = d.InputPerMillion
	}

	cost := float64(in-cached)/perMillion*d.InputPerMillion +
		float64(cached)/perMillion*cachedPrice +
		float64(out)/perMillion*d.OutputPerMillion
	if cost < 0 {
		return 0
	}
	return cost
}

// Priciest returns the metered model with the highest combined input and output
// price. Ties resolve to the lexically smaller identifier.
func Priciest(catalog models.Catalog) string {
	var best string
	var bestPrice float64
	for id, d := range catalog {
		if !d.Metered() {
			continue
		}
		price := d.InputPerMillion + d.OutputPerMillion
		if best == "" || price > bestPrice || (price == bestPrice && id < best) {
			best, bestPrice = id, price
		}
	}
	return best
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
