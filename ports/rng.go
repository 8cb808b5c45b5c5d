package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream creates an independent stream for one iteration of a named operation.
	// The same (name, iteration, baseSeed) always yields the same sequence, so
	// iterations may run in any order or concurrently.
	Stream(ctx context.Context, name string, iteration int, baseSeed int64) (*rand.Rand, error)
}
