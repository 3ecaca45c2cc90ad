// Package inference provides ONNX Runtime integration for transformer
// sequence-classification and regression models.
package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("inference: pool is closed")

// Input tensor names recognized by Session.
const (
	InputIDs           = "input_ids"
	InputAttentionMask = "attention_mask"
	InputTokenTypeIDs  = "token_type_ids"
)

var (
	ortEnvOnce sync.Once
	ortEnvErr  error
	ortLibPath string
)

// SetLibraryPath points ONNX Runtime at a specific shared library. It must be
// called before the first session is created.
func SetLibraryPath(path string) {
	ortLibPath = path
}

// initORT initializes ONNX Runtime environment once.
func initORT() error {
	ortEnvOnce.Do(func() {
		if ortLibPath != "" {
			ort.SetSharedLibraryPath(ortLibPath)
		}
		ortEnvErr = ort.InitializeEnvironment()
	})
	return ortEnvErr
}

// SessionConfig names the model's tensors.
type SessionConfig struct {
	// Inputs lists input tensor names in model order. Only the names above
	// are supported.
	Inputs []string
	// Output is the name of the logits tensor.
	Output string
}

// DefaultSessionConfig matches HuggingFace sequence-classification exports.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Inputs: []string{InputIDs, InputAttentionMask},
		Output: "logits",
	}
}

// SessionOption configures a Session.
type SessionOption func(*SessionConfig)

// WithInputs overrides the input tensor names.
func WithInputs(names ...string) SessionOption {
	return func(c *SessionConfig) {
		if len(names) > 0 {
			c.Inputs = slices.Clone(names)
		}
	}
}

// WithOutput overrides the output tensor name.
func WithOutput(name string) SessionOption {
	return func(c *SessionConfig) {
		if name != "" {
			c.Output = name
		}
	}
}

// Session wraps an ONNX Runtime session for single-sequence inference.
type Session struct {
	session *ort.DynamicAdvancedSession
	inputs  []string
	mu      sync.Mutex
	closed  bool
}

// NewSession creates a new ONNX session from a model file.
func NewSession(modelPath string, opts ...SessionOption) (*Session, error) {
	cfg := DefaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	for _, name := range cfg.Inputs {
		switch name {
		case InputIDs, InputAttentionMask, InputTokenTypeIDs:
		default:
			return nil, fmt.Errorf("unsupported model input %q", name)
		}
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	if err := initORT(); err != nil {
		return nil, fmt.Errorf("initializing ONNX runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	defer func() { _ = options.Destroy() }() // Cleanup error doesn't affect success

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		cfg.Inputs,
		[]string{cfg.Output},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &Session{session: session, inputs: cfg.Inputs}, nil
}

// Infer runs the model on one tokenized sequence and returns the flattened
// output tensor: one value per class or regression target.
func (s *Session) Infer(ctx context.Context, inputIDs []int64) ([]float32, error) {
	// Check context before expensive operation
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if len(inputIDs) == 0 {
		return nil, errors.New("empty input")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}

	shape := ort.NewShape(1, int64(len(inputIDs)))
	inputs := make([]ort.Value, 0, len(s.inputs))
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()

	for _, name := range s.inputs {
		var data []int64
		switch name {
		case InputIDs:
			data = inputIDs
		case InputAttentionMask:
			data = filled(len(inputIDs), 1)
		case InputTokenTypeIDs:
			data = filled(len(inputIDs), 0)
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("creating %s tensor: %w", name, err)
		}
		inputs = append(inputs, tensor)
	}

	// nil entries are allocated by Run
	outputs := []ort.Value{nil}

	if err := s.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("running inference: %w", err)
	}

	if outputs[0] == nil {
		return nil, fmt.Errorf("no output produced")
	}
	defer func() { _ = outputs[0].Destroy() }()

	logitsTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}

	return slices.Clone(logitsTensor.GetData()), nil
}

func filled(n int, v int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Close releases ONNX resources.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}
