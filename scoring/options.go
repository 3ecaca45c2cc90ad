package scoring

import (
	"runtime"

	"github.com/jamesainslie/go-writecoach/inference"
	"github.com/jamesainslie/go-writecoach/tokenizer"
)

// Option configures an ONNXScorer or LevelEstimator.
type Option func(*config)

type config struct {
	scale       Scale
	poolSize    int
	maxTokens   int
	scheme      tokenizer.Scheme
	sessionOpts []inference.SessionOption
	handle      *inference.Handle[*inference.Pool]
}

func defaultConfig() config {
	return config{
		scale:     DefaultScale,
		poolSize:  runtime.NumCPU(),
		maxTokens: 512,
		scheme:    tokenizer.SchemeFairseq,
	}
}

// WithScale sets the raw-to-display mapping (default: DefaultScale).
func WithScale(s Scale) Option {
	return func(c *config) {
		c.scale = s
	}
}

// WithPoolSize sets the ONNX session pool size (default: runtime.NumCPU()).
func WithPoolSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithMaxTokens sets the sequence limit, special tokens included (default: 512).
func WithMaxTokens(n int) Option {
	return func(c *config) {
		if n > 2 {
			c.maxTokens = n
		}
	}
}

// WithScheme sets the SentencePiece id layout (default: tokenizer.SchemeFairseq).
func WithScheme(s tokenizer.Scheme) Option {
	return func(c *config) {
		c.scheme = s
	}
}

// WithSessionOptions passes tensor naming options to each ONNX session.
func WithSessionOptions(opts ...inference.SessionOption) Option {
	return func(c *config) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

// WithHandle shares an existing pool handle instead of opening a new one.
func WithHandle(h *inference.Handle[*inference.Pool]) Option {
	return func(c *config) {
		if h != nil {
			c.handle = h
		}
	}
}
