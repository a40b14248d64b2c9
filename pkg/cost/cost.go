package cost

import (
	"strings"
	"sync"
)

// PricingModel defines the cost per 1M tokens (standard industry pricing unit).
type PricingModel struct {
	InputPrice  float64 // USD per 1M input tokens
	OutputPrice float64 // USD per 1M output tokens
}

// CostCalculator calculates estimated costs for model usage.
type CostCalculator struct {
	mu     sync.RWMutex
	prices map[string]PricingModel
}

// NewCostCalculator creates a new calculator with default pricing.
func NewCostCalculator() *CostCalculator {
	c := &CostCalculator{
		prices: make(map[string]PricingModel),
	}
	c.loadDefaults()
	return c
}

// CalculateCost returns the estimated cost in USD. Unknown models cost
// zero rather than guessing at a price.
func (c *CostCalculator) CalculateCost(model string, promptTokens, completionTokens int) float64 {
	name := strings.ToLower(model)

	c.mu.RLock()
	price, ok := c.prices[name]
	if !ok {
		switch {
		case strings.HasPrefix(name, "gpt-4"):
			price = c.prices["gpt-4o"]
		case strings.HasPrefix(name, "gpt-3.5"):
			price = c.prices["gpt-3.5-turbo"]
		case strings.HasPrefix(name, "text-embedding"):
			price = c.prices["text-embedding-3-small"]
		}
	}
	c.mu.RUnlock()

	inputCost := (float64(promptTokens) / 1_000_000.0) * price.InputPrice
	outputCost := (float64(completionTokens) / 1_000_000.0) * price.OutputPrice

	return inputCost + outputCost
}

// loadDefaults loads standard pricing for the supported providers.
// Local models are free and resolve through the zero value.
func (c *CostCalculator) loadDefaults() {
	// OpenAI chat models
	c.prices["gpt-4o"] = PricingModel{InputPrice: 2.50, OutputPrice: 10.00}
	c.prices["gpt-4o-mini"] = PricingModel{InputPrice: 0.15, OutputPrice: 0.60}
	c.prices["gpt-4-turbo"] = PricingModel{InputPrice: 10.00, OutputPrice: 30.00}
	c.prices["gpt-3.5-turbo"] = PricingModel{InputPrice: 0.50, OutputPrice: 1.50}
	c.prices["gpt-4"] = c.prices["gpt-4o"]

	// OpenAI embedding models (input tokens only)
	c.prices["text-embedding-3-small"] = PricingModel{InputPrice: 0.02}
	c.prices["text-embedding-3-large"] = PricingModel{InputPrice: 0.13}
	c.prices["text-embedding-ada-002"] = PricingModel{InputPrice: 0.10}
}
