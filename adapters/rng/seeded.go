package rng

import (
	"context"
	"math/rand"
	"strconv"

	"permde/domain/core"
	"permde/ports"
)

// SeededRNG hands out math/rand streams whose seeds are derived from a base seed
// and a stream name, never from global state.
type SeededRNG struct{}

var _ ports.RNGPort = SeededRNG{}

// NewSeededRNG creates the adapter
func NewSeededRNG() SeededRNG {
	return SeededRNG{}
}

// Stream creates the stream for one iteration of a named operation
func (SeededRNG) Stream(ctx context.Context, name string, iteration int, baseSeed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(core.DeriveSeed(baseSeed, name, strconv.Itoa(iteration)))), nil
}
