package difftest

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"permde/domain/expression"
	"permde/ports"
)

// nullStreamName names the RNG streams used for label shuffles.
const nullStreamName = "diff_mean_null"

// PermutationEngine builds per-feature null distributions of the difference in
// geometric means by shuffling group labels R times.
//
// Iterations run concurrently but are folded into the summaries strictly in
// iteration order, so results are bit-identical for any worker count. At most
// `workers` iteration vectors are alive at once; the full features x R matrix
// is never held.
type PermutationEngine struct {
	rngPort ports.RNGPort
	workers int
}

// NewPermutationEngine creates an engine drawing shuffles from rngPort.
func NewPermutationEngine(rngPort ports.RNGPort, workers int) *PermutationEngine {
	if workers < 1 {
		workers = 1
	}
	return &PermutationEngine{rngPort: rngPort, workers: workers}
}

type iterationResult struct {
	index int
	diffs []float64
	err   error
}

// Run returns one NullSummary per entry of rows. observed[k] is the observed
// difference for rows[k] and is used for the exceedance tally.
func (pe *PermutationEngine) Run(
	ctx context.Context,
	calc *GroupedMeanCalculator,
	labels expression.GroupLabels,
	rows []int,
	observed []float64,
	permutations int,
	seed int64,
) ([]expression.NullSummary, error) {
	if len(rows) != len(observed) {
		return nil, fmt.Errorf("permutation engine: %d rows but %d observed values", len(rows), len(observed))
	}
	summaries := make([]expression.NullSummary, len(rows))
	if len(rows) == 0 || permutations < 1 {
		return summaries, nil
	}

	workers := pe.workers
	if workers > permutations {
		workers = permutations
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A slot is held from dispatch until the iteration has been folded, which
	// bounds the reorder buffer to `workers` vectors.
	sem := semaphore.NewWeighted(int64(workers))
	results := make(chan iterationResult, workers)

	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(results)
		}()
		for i := 0; i < permutations; i++ {
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- iterationResult{index: i, err: err}
				return
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				diffs, err := pe.iteration(ctx, calc, labels, rows, i, seed)
				results <- iterationResult{index: i, diffs: diffs, err: err}
			}(i)
		}
	}()

	pending := make(map[int][]float64, workers)
	next := 0
	var firstErr error
	for res := range results {
		if firstErr != nil {
			continue
		}
		if res.err != nil {
			firstErr = res.err
			cancel()
			continue
		}
		pending[res.index] = res.diffs
		for {
			diffs, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			for k, d := range diffs {
				summaries[k].Add(d, observed[k])
			}
			sem.Release(1)
			next++
		}
	}

	if firstErr != nil {
		return nil, fmt.Errorf("permutation %d/%d: %w", next, permutations, firstErr)
	}
	return summaries, nil
}

func (pe *PermutationEngine) iteration(
	ctx context.Context,
	calc *GroupedMeanCalculator,
	labels expression.GroupLabels,
	rows []int,
	index int,
	seed int64,
) ([]float64, error) {
	rng, err := pe.rngPort.Stream(ctx, nullStreamName, index, seed)
	if err != nil {
		return nil, err
	}
	shuffled := ShuffleLabels(labels, rng)
	diffs := make([]float64, len(rows))
	calc.diffMeans(shuffled, rows, diffs)
	return diffs, nil
}
