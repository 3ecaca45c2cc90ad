package dataset

import (
	"fmt"
	"strconv"
)

// ValidationError reports input that data preparation refuses to process.
// Preparation never drops or repairs data silently; it fails with one of these.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "dataset: validation failed: " + e.Reason
	}
	return fmt.Sprintf("dataset: invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UnknownLabelError is returned when a score has no entry in a LabelMap.
type UnknownLabelError struct {
	Score float64
}

func (e *UnknownLabelError) Error() string {
	return "dataset: unknown label " + strconv.FormatFloat(e.Score, 'f', -1, 64)
}

// UnknownLabelIDError is returned when a label id has no entry in a LabelMap.
type UnknownLabelIDError struct {
	ID int
}

func (e *UnknownLabelIDError) Error() string {
	return "dataset: unknown label id " + strconv.Itoa(e.ID)
}
