package app

import (
	"context"
	"fmt"
	"time"

	"permde/domain/core"
	"permde/domain/expression"
	"permde/internal"
	"permde/internal/difftest"
	"permde/internal/profiling"
	"permde/ports"
)

// MarkerSweepService runs one-vs-rest tests for every class of a labelled matrix.
type MarkerSweepService struct {
	tester    *difftest.Tester
	transform ports.CountTransform
	profiler  *profiling.ResultProfiler
	logger    *internal.Logger
}

// MarkerSweepRequest defines the inputs of a sweep.
type MarkerSweepRequest struct {
	Matrix *expression.CountMatrix
	Labels expression.ClassLabels
	// Classes restricts the sweep; empty means every class, sorted.
	Classes []core.ClassName
	Config  difftest.Config
	SweepID core.ID // optional, will be generated if empty
}

// ClassSummary records the outcome of one class.
type ClassSummary struct {
	Class       core.ClassName    `json:"class"`
	Seed        int64             `json:"seed"`
	Members     int               `json:"members"`
	Invocation  core.InvocationID `json:"invocation_id"`
	Profile     profiling.Profile `json:"profile"`
	RuntimeMs   int64             `json:"runtime_ms"`
	Warnings    int               `json:"warnings"`
	Significant int               `json:"significant"`
}

// SweepResult contains the per-class summaries; the tables themselves go to the callback.
type SweepResult struct {
	SweepID   core.ID        `json:"sweep_id"`
	Classes   []ClassSummary `json:"classes"`
	RuntimeMs int64          `json:"runtime_ms"`
}

// TableHandler receives each class table before the next class starts.
type TableHandler func(class core.ClassName, table *expression.ResultTable) error

// NewMarkerSweepService creates a sweep service. transform may be nil.
func NewMarkerSweepService(tester *difftest.Tester, transform ports.CountTransform, logger *internal.Logger) *MarkerSweepService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &MarkerSweepService{
		tester:    tester,
		transform: transform,
		profiler:  profiling.NewResultProfiler(profiling.DefaultAlpha),
		logger:    logger,
	}
}

// ClassSeed derives the seed used for class from the sweep seed.
func ClassSeed(seed int64, class core.ClassName) int64 {
	return core.DeriveSeed(seed, class.String())
}

// Run executes the sweep sequentially so at most one class's state is resident.
func (s *MarkerSweepService) Run(ctx context.Context, req MarkerSweepRequest, handle TableHandler) (*SweepResult, error) {
	startTime := time.Now()

	sweepID := req.SweepID
	if sweepID == "" {
		sweepID = core.NewID()
	}
	log := s.logger.With("sweep", sweepID.String())

	if req.Matrix == nil {
		return nil, core.NewInvalidInputError("sweep needs a matrix")
	}
	if len(req.Labels) != req.Matrix.Observations() {
		return nil, core.NewLabelLengthError(len(req.Labels), req.Matrix.Observations())
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	all := req.Labels.Classes()
	if len(all) < 2 {
		return nil, core.NewConfigurationError("labels", fmt.Sprintf("one-vs-rest needs at least 2 classes, got %d", len(all)))
	}
	classes := req.Classes
	if len(classes) == 0 {
		classes = all
	}

	m := req.Matrix
	if s.transform != nil {
		transformed, err := s.transform.Transform(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("count transform failed: %w", err)
		}
		if !m.SameShape(transformed) {
			return nil, fmt.Errorf("%w: transform changed dimensions or feature ids", core.ErrShapeChanged)
		}
		m = transformed
	}

	result := &SweepResult{SweepID: sweepID, Classes: make([]ClassSummary, 0, len(classes))}
	for _, class := range classes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		labels, err := req.Labels.OneVsRest(class)
		if err != nil {
			return nil, err
		}
		cfg := req.Config
		cfg.Seed = ClassSeed(req.Config.Seed, class)

		classStart := time.Now()
		table, err := s.tester.Run(ctx, m, labels, cfg)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", class, err)
		}

		profile, err := s.profiler.Profile(table)
		if err != nil {
			return nil, fmt.Errorf("class %s: profile: %w", class, err)
		}
		members, _ := labels.Sizes()
		summary := ClassSummary{
			Class:       class,
			Seed:        cfg.Seed,
			Members:     members,
			Invocation:  table.InvocationID,
			Profile:     profile,
			RuntimeMs:   time.Since(classStart).Milliseconds(),
			Warnings:    len(table.Warnings),
			Significant: profile.Significant,
		}
		log.Info("class %s: members=%d tested=%d/%d significant=%d degenerate=%d median_emp=%.4g",
			class, members, profile.Tested, profile.Considered, profile.Significant, profile.Degenerate, profile.EmpPval.Median)

		if handle != nil {
			if err := handle(class, table); err != nil {
				return nil, fmt.Errorf("class %s: handler: %w", class, err)
			}
		}
		result.Classes = append(result.Classes, summary)
	}

	result.RuntimeMs = time.Since(startTime).Milliseconds()
	log.Info("sweep finished: %d classes in %dms", len(result.Classes), result.RuntimeMs)
	return result, nil
}
