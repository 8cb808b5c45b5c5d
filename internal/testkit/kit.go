package testkit

import (
	"context"
	"math/rand"
	"sync"

	"permde/adapters/rng"
	"permde/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	rng *RecordingRNG
}

// NewTestKit creates a new test kit instance
func NewTestKit() *TestKit {
	return &TestKit{rng: &RecordingRNG{inner: rng.NewSeededRNG()}}
}

// RNGAdapter returns the seeded RNG adapter shared by the kit
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return t.rng
}

// RecordedStreams returns how many iteration streams have been requested
func (t *TestKit) RecordedStreams() int {
	return t.rng.Streams()
}

// RecordingRNG wraps the production adapter and counts stream requests.
type RecordingRNG struct {
	inner   ports.RNGPort
	mu      sync.Mutex
	streams int
}

// Stream delegates to the wrapped adapter and counts the request
func (r *RecordingRNG) Stream(ctx context.Context, name string, iteration int, baseSeed int64) (*rand.Rand, error) {
	r.mu.Lock()
	r.streams++
	r.mu.Unlock()
	return r.inner.Stream(ctx, name, iteration, baseSeed)
}

// Streams returns the number of Stream calls so far
func (r *RecordingRNG) Streams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams
}
