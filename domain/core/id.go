package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	InvocationID ID
	FeatureID    ID
	ClassName    ID
)

func (id InvocationID) String() string { return ID(id).String() }
func (id FeatureID) String() string    { return ID(id).String() }
func (id ClassName) String() string    { return ID(id).String() }

// NewInvocationID tags one test invocation for log correlation.
func NewInvocationID() InvocationID {
	return InvocationID(NewID())
}

// ParseFeatureID parses a string into FeatureID
func ParseFeatureID(s string) (FeatureID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("feature ID cannot be empty")
	}
	return FeatureID(s), nil
}

// ParseClassName parses a string into ClassName
func ParseClassName(s string) (ClassName, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("class name cannot be empty")
	}
	return ClassName(s), nil
}
