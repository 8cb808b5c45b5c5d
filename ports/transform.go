package ports

import (
	"context"

	"permde/domain/expression"
)

// CountTransform is an upstream correction step (e.g. variance stabilisation
// followed by count correction). Implementations must preserve the matrix
// dimensions and feature order.
type CountTransform interface {
	Transform(ctx context.Context, m *expression.CountMatrix) (*expression.CountMatrix, error)
}

// LabelSource supplies per-observation class names aligned to the matrix columns.
type LabelSource interface {
	Labels(ctx context.Context) (expression.ClassLabels, error)
}
