package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/llmrouter/pkg/models"
)

func testCatalog() models.Catalog {
	return models.Catalog{
		"opus":   {Provider: models.ProviderAnthropic, InputPerMillion: 15, OutputPerMillion: 75, CachedInputPerMillion: 1.5},
		"mini":   {Provider: models.ProviderOpenAI, InputPerMillion: 0.15, OutputPerMillion: 0.6},
		"llama":  {Provider: models.ProviderOllama},
		"broken": {Provider: models.ProviderOpenAI, InputPerMillion: 1, OutputPerMillion: 2, CachedInputPerMillion: 5},
	}
}

func TestCalculateCost(t *testing.T) {
	c := testCatalog()

	assert.InDelta(t, 15.0+75.0, CalculateCost(c, "opus", 1_000_000, 1_000_000, 0), 1e-9)
	assert.InDelta(t, 0.15*0.5+0.6*0.1, CalculateCost(c, "mini", 500_000, 100_000, 0), 1e-12)
}

func TestCalculateCostCachedDiscount(t *testing.T) {
	c := testCatalog()

	full := CalculateCost(c, "opus", 1_000_000, 1_000_000, 0)
	cached := CalculateCost(c, "opus", 1_000_000, 1_000_000, 500_000)
	assert.InDelta(t, 7.5+0.75+75, cached, 1e-9)
	assert.GreaterOrEqual(t, full, cached)

	// No cached price: cached tokens bill at the input price.
	assert.InDelta(t, CalculateCost(c, "mini", 1000, 10, 0), CalculateCost(c, "mini", 1000, 10, 400), 1e-15)

	// A cached price above the input price never increases cost.
	assert.GreaterOrEqual(t,
		CalculateCost(c, "broken", 1_000_000, 1_000_000, 0),
		CalculateCost(c, "broken", 1_000_000, 1_000_000, 500_000))
}

func TestCalculateCostZero(t *testing.T) {
	c := testCatalog()
	for model := range c {
		assert.Zero(t, CalculateCost(c, model, 0, 0, 0), model)
	}
	assert.Zero(t, CalculateCost(c, "llama", 123_456, 654_321, 0))
	assert.Zero(t, CalculateCost(c, "unknown", 1000, 1000, 0))
}

func TestCalculateCostMonotonic(t *testing.T) {
	c := testCatalog()
	steps := []int{0, 1, 10, 999, 50_000, 1_000_000}

	for model := range c {
		for _, base := range steps {
			prevIn := -1.0
			prevOut := -1.0
			for _, n := range steps {
				in := CalculateCost(c, model, n, base, 0)
				out := CalculateCost(c, model, base, n, 0)
				require.GreaterOrEqual(t, in, prevIn, "input not monotonic for %s", model)
				require.GreaterOrEqual(t, out, prevOut, "output not monotonic for %s", model)
				require.GreaterOrEqual(t, in, 0.0)
				prevIn, prevOut = in, out
			}
		}
	}
}

func TestCalculateCostClampsCached(t *testing.T) {
	c := testCatalog()
	assert.InDelta(t, CalculateCost(c, "opus", 100, 0, 100), CalculateCost(c, "opus", 100, 0, 5000), 1e-15)
	assert.Zero(t, CalculateCost(c, "opus", -5, -5, -5))
}

func TestPriciest(t *testing.T) {
	assert.Equal(t, "opus", Priciest(testCatalog()))
	assert.Empty(t, Priciest(models.Catalog{"llama": {Provider: models.ProviderOllama}}))
}
