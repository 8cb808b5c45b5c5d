package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permde/domain/core"
	"permde/domain/expression"
	"permde/internal/difftest"
	"permde/internal/testkit"
)

type fakeTransform struct {
	calls int
	out   func(m *expression.CountMatrix) (*expression.CountMatrix, error)
}

func (f *fakeTransform) Transform(ctx context.Context, m *expression.CountMatrix) (*expression.CountMatrix, error) {
	f.calls++
	return f.out(m)
}

func sweepFixture(t *testing.T) (*expression.CountMatrix, expression.ClassLabels) {
	t.Helper()
	m, err := expression.NewCountMatrixFromDense([][]float64{
		{9, 8, 7, 0, 1, 0, 0, 0, 1},
		{0, 1, 0, 6, 7, 9, 0, 0, 1},
		{0, 0, 1, 0, 1, 0, 5, 8, 6},
		{2, 2, 2, 2, 2, 2, 2, 2, 2},
	}, []core.FeatureID{"a_marker", "b_marker", "c_marker", "flat"})
	require.NoError(t, err)
	return m, expression.ClassLabels{"A", "A", "A", "B", "B", "B", "C", "C", "C"}
}

func sweepConfig() difftest.Config {
	cfg := difftest.DefaultConfig()
	cfg.Permutations = 49
	cfg.Log2FCThreshold = 0
	cfg.MinNonZero = 0
	cfg.Seed = 11
	return cfg
}

func TestMarkerSweep_RunsEveryClassInOrder(t *testing.T) {
	m, labels := sweepFixture(t)
	service := NewMarkerSweepService(difftest.NewTester(testkit.NewTestKit().RNGAdapter()), nil, nil)

	var seen []core.ClassName
	result, err := service.Run(context.Background(), MarkerSweepRequest{
		Matrix: m,
		Labels: labels,
		Config: sweepConfig(),
	}, func(class core.ClassName, table *expression.ResultTable) error {
		seen = append(seen, class)
		assert.Equal(t, 4, table.Considered)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []core.ClassName{"A", "B", "C"}, seen)
	require.Len(t, result.Classes, 3)
	assert.False(t, result.SweepID.IsEmpty())
	for _, summary := range result.Classes {
		assert.Equal(t, 3, summary.Members)
		assert.Equal(t, ClassSeed(11, summary.Class), summary.Seed)
	}
	assert.NotEqual(t, result.Classes[0].Seed, result.Classes[1].Seed)
}

func TestMarkerSweep_ReproducibleAndMatchesDirectRun(t *testing.T) {
	m, labels := sweepFixture(t)
	tester := difftest.NewTester(testkit.NewTestKit().RNGAdapter())
	service := NewMarkerSweepService(tester, nil, nil)

	tables := map[core.ClassName]*expression.ResultTable{}
	_, err := service.Run(context.Background(), MarkerSweepRequest{
		Matrix:  m,
		Labels:  labels,
		Classes: []core.ClassName{"B"},
		Config:  sweepConfig(),
	}, func(class core.ClassName, table *expression.ResultTable) error {
		tables[class] = table
		return nil
	})
	require.NoError(t, err)
	require.Len(t, tables, 1)

	group, err := labels.OneVsRest("B")
	require.NoError(t, err)
	cfg := sweepConfig()
	cfg.Seed = ClassSeed(cfg.Seed, "B")
	direct, err := tester.Run(context.Background(), m, group, cfg)
	require.NoError(t, err)

	got := tables["B"]
	require.Equal(t, direct.Tested(), got.Tested())
	for i := range direct.Rows {
		assert.Equal(t, direct.Rows[i].Feature, got.Rows[i].Feature)
		assert.Equal(t, direct.Rows[i].EmpPval, got.Rows[i].EmpPval)
	}
}

func TestMarkerSweep_Transform(t *testing.T) {
	m, labels := sweepFixture(t)
	tester := difftest.NewTester(testkit.NewTestKit().RNGAdapter())

	identity := &fakeTransform{out: func(m *expression.CountMatrix) (*expression.CountMatrix, error) { return m, nil }}
	_, err := NewMarkerSweepService(tester, identity, nil).Run(context.Background(),
		MarkerSweepRequest{Matrix: m, Labels: labels, Config: sweepConfig()}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, identity.calls, "transform runs once per sweep")

	shrink := &fakeTransform{out: func(m *expression.CountMatrix) (*expression.CountMatrix, error) {
		return expression.NewCountMatrix(m.Features()-1, m.Observations(), nil, nil)
	}}
	_, err = NewMarkerSweepService(tester, shrink, nil).Run(context.Background(),
		MarkerSweepRequest{Matrix: m, Labels: labels, Config: sweepConfig()}, nil)
	assert.ErrorIs(t, err, core.ErrShapeChanged)
	assert.True(t, core.IsInvalidInputError(err))

	boom := errors.New("boom")
	failing := &fakeTransform{out: func(*expression.CountMatrix) (*expression.CountMatrix, error) { return nil, boom }}
	_, err = NewMarkerSweepService(tester, failing, nil).Run(context.Background(),
		MarkerSweepRequest{Matrix: m, Labels: labels, Config: sweepConfig()}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestMarkerSweep_Errors(t *testing.T) {
	m, labels := sweepFixture(t)
	service := NewMarkerSweepService(difftest.NewTester(testkit.NewTestKit().RNGAdapter()), nil, nil)
	ctx := context.Background()

	single := make(expression.ClassLabels, len(labels))
	for i := range single {
		single[i] = "A"
	}
	_, err := service.Run(ctx, MarkerSweepRequest{Matrix: m, Labels: single, Config: sweepConfig()}, nil)
	assert.True(t, core.IsConfigurationError(err))

	_, err = service.Run(ctx, MarkerSweepRequest{Matrix: m, Labels: labels[:5], Config: sweepConfig()}, nil)
	assert.ErrorIs(t, err, core.ErrLabelLengthMismatch)

	_, err = service.Run(ctx, MarkerSweepRequest{Matrix: m, Labels: labels, Classes: []core.ClassName{"Z"}, Config: sweepConfig()}, nil)
	assert.True(t, core.IsConfigurationError(err))

	stop := errors.New("stop")
	calls := 0
	_, err = service.Run(ctx, MarkerSweepRequest{Matrix: m, Labels: labels, Config: sweepConfig()},
		func(core.ClassName, *expression.ResultTable) error {
			calls++
			return stop
		})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
