package coach

import "errors"

// Sentinel errors for conditions callers may need to handle differently.
var (
	// ErrNoInput indicates the essay was blank. It is not a processing
	// failure.
	ErrNoInput = errors.New("coach: no essay text")

	// ErrScoringFailed indicates the scorer could not score the essay. No
	// record is produced.
	ErrScoringFailed = errors.New("coach: scoring failed")
)
