package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// ErrConfiguration signals caller misuse: bad options, misaligned or empty groups.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidInput signals data outside the non-negative count domain.
	ErrInvalidInput = errors.New("invalid input")

	ErrLabelLengthMismatch = fmt.Errorf("%w: label length mismatch", ErrConfiguration)
	ErrEmptyGroup          = fmt.Errorf("%w: empty group", ErrConfiguration)
	ErrUnknownOption       = fmt.Errorf("%w: unrecognized option", ErrConfiguration)

	ErrNegativeCount = fmt.Errorf("%w: negative count", ErrInvalidInput)
	ErrOutOfRange    = fmt.Errorf("%w: coordinate out of range", ErrInvalidInput)
	ErrShapeChanged  = fmt.Errorf("%w: matrix shape changed", ErrInvalidInput)
)

// Error constructors with context
func NewConfigurationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfiguration, field, reason)
}

func NewInvalidInputError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

func NewEmptyGroupError(group string) error {
	return fmt.Errorf("%w: group %s has no members", ErrEmptyGroup, group)
}

func NewLabelLengthError(labels, observations int) error {
	return fmt.Errorf("%w: %d labels for %d observations", ErrLabelLengthMismatch, labels, observations)
}

// Error checking helpers
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsInvalidInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// NumericDegeneracyWarning is a row-scoped, non-fatal condition: the null
// distribution of a feature has no dispersion, so its z-score and Gaussian
// p-value are undefined.
type NumericDegeneracyWarning struct {
	Feature string `json:"feature"`
	Index   int    `json:"index"`
	// NullSD is nil when the null has fewer than two samples.
	NullSD *float64 `json:"null_sd"`
	Reason string   `json:"reason"`
}

func (w NumericDegeneracyWarning) String() string {
	return fmt.Sprintf("numeric degeneracy for %s (row %d): %s", w.Feature, w.Index, w.Reason)
}
