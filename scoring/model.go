package scoring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jamesainslie/go-writecoach/inference"
	"github.com/jamesainslie/go-writecoach/tokenizer"
)

// model is a tokenizer plus a held reference to a session pool.
type model struct {
	encoder   tokenizer.Encoder
	handle    *inference.Handle[*inference.Pool]
	pool      *inference.Pool
	maxTokens int

	closeOnce sync.Once
	closeErr  error
}

func openModel(modelPath, tokenizerPath string, cfg config) (*model, error) {
	if _, err := os.Stat(modelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return nil, fmt.Errorf("checking model file: %w", err)
	}

	enc, err := tokenizer.Load(tokenizerPath, tokenizer.WithScheme(cfg.scheme))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTokenizerFailed, tokenizerPath)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenizerFailed, err)
	}

	handle := cfg.handle
	if handle == nil {
		handle = inference.NewPoolHandle(modelPath, cfg.poolSize, cfg.sessionOpts...)
	}
	pool, err := handle.Acquire()
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	return &model{
		encoder:   enc,
		handle:    handle,
		pool:      pool,
		maxTokens: cfg.maxTokens,
	}, nil
}

// logits runs text through the model and returns its raw outputs.
func (m *model) logits(ctx context.Context, text string) ([]float32, error) {
	ids := tokenizer.Frame(m.encoder, text, m.maxTokens)
	input := make([]int64, len(ids))
	for i, id := range ids {
		input[i] = int64(id)
	}
	return m.pool.Infer(ctx, input)
}

func (m *model) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = errors.Join(m.handle.Release(), m.encoder.Close())
	})
	return m.closeErr
}
