package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"permde/domain/core"
	"permde/domain/expression"
)

// CountsGeneratorConfig configures the synthetic sparse count generator
type CountsGeneratorConfig struct {
	Features int     `json:"features"`
	GroupA   int     `json:"group_a"`
	GroupB   int     `json:"group_b"`
	Rate     float64 `json:"rate"`    // Poisson mean for unaffected features
	Dropout  float64 `json:"dropout"` // probability a draw is forced to zero
	// Effects multiplies the group A rate of the listed features.
	Effects map[int]float64 `json:"effects"`
	Seed    int64           `json:"seed"`
}

// DefaultCountsConfig returns a small, zero-heavy dataset without effects
func DefaultCountsConfig() CountsGeneratorConfig {
	return CountsGeneratorConfig{
		Features: 50,
		GroupA:   30,
		GroupB:   40,
		Rate:     2,
		Dropout:  0.5,
		Seed:     42,
	}
}

// CountsGenerator draws Poisson counts with dropout, group A first
type CountsGenerator struct {
	config CountsGeneratorConfig
	rng    *rand.Rand
}

// NewCountsGenerator creates a new generator
func NewCountsGenerator(config CountsGeneratorConfig) *CountsGenerator {
	return &CountsGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate returns the matrix and labels (group A = first GroupA columns)
func (g *CountsGenerator) Generate() (*expression.CountMatrix, expression.GroupLabels, error) {
	cfg := g.config
	cols := cfg.GroupA + cfg.GroupB
	labels := make(expression.GroupLabels, cols)
	for c := 0; c < cfg.GroupA; c++ {
		labels[c] = true
	}

	ids := make([]core.FeatureID, cfg.Features)
	var entries []expression.Entry
	for r := 0; r < cfg.Features; r++ {
		ids[r] = core.FeatureID(fmt.Sprintf("gene_%03d", r))
		for c := 0; c < cols; c++ {
			rate := cfg.Rate
			if labels[c] {
				if mult, ok := cfg.Effects[r]; ok {
					rate *= mult
				}
			}
			if g.rng.Float64() < cfg.Dropout {
				continue
			}
			if v := g.poisson(rate); v > 0 {
				entries = append(entries, expression.Entry{Row: r, Col: c, Value: float64(v)})
			}
		}
	}

	m, err := expression.NewCountMatrix(cfg.Features, cols, entries, ids)
	if err != nil {
		return nil, nil, err
	}
	return m, labels, nil
}

// poisson uses Knuth's multiplication method; rates here are small.
func (g *CountsGenerator) poisson(lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	limit := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= g.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
