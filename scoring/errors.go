package scoring

import "errors"

// Sentinel errors for conditions callers may need to handle differently.
var (
	// ErrModelNotFound indicates the model file does not exist.
	ErrModelNotFound = errors.New("scoring: model file not found")

	// ErrInvalidModel indicates the model file exists but could not be loaded.
	ErrInvalidModel = errors.New("scoring: invalid model format")

	// ErrTokenizerFailed indicates tokenizer initialization failed.
	ErrTokenizerFailed = errors.New("scoring: tokenizer initialization failed")

	// ErrUnexpectedOutput indicates the model returned the wrong number of values.
	ErrUnexpectedOutput = errors.New("scoring: unexpected model output")

	// ErrEmptyText is returned by LevelEstimator for blank input.
	ErrEmptyText = errors.New("scoring: empty text")
)
