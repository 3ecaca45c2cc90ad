package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/go-writecoach/dataset"
	"github.com/jamesainslie/go-writecoach/internal/retry"
)

func TestScoresJSON(t *testing.T) {
	s := Scores{3.5, 4, 2.5, 3, 1, 10}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.Equal(t,
		`{"cohesion":3.5,"syntax":4,"vocabulary":2.5,"phraseology":3,"grammar":1,"conventions":10}`,
		string(data))

	var back Scores
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, s, back)
}

func TestScoresUnmarshalCaseInsensitive(t *testing.T) {
	var s Scores
	err := json.Unmarshal([]byte(`{"Cohesion":1,"Syntax":2,"Vocabulary":3,"Phraseology":4,"Grammar":5,"Conventions":6}`), &s)
	require.NoError(t, err)
	require.Equal(t, 6.0, s.Get(Conventions))
}

func TestScoresUnmarshalInvalid(t *testing.T) {
	for name, in := range map[string]string{
		"missing item": `{"cohesion":1,"syntax":2,"vocabulary":3,"phraseology":4,"grammar":5}`,
		"unknown item": `{"cohesion":1,"syntax":2,"vocabulary":3,"phraseology":4,"grammar":5,"conventions":6,"style":1}`,
		"not object":   `[1,2,3,4,5,6]`,
	} {
		t.Run(name, func(t *testing.T) {
			var s Scores
			require.Error(t, json.Unmarshal([]byte(in), &s))
		})
	}
}

func TestItems(t *testing.T) {
	names := []string{}
	for _, it := range Items {
		names = append(names, it.String())
	}
	require.Equal(t, []string{"cohesion", "syntax", "vocabulary", "phraseology", "grammar", "conventions"}, names)

	it, ok := ParseItem("GRAMMAR")
	require.True(t, ok)
	require.Equal(t, Grammar, it)

	_, ok = ParseItem("style")
	require.False(t, ok)

	require.Equal(t, "Item(9)", Item(9).String())
	require.Equal(t, 6, len(Scores{}.Map()))
	require.True(t, Scores{}.IsZero())
}

func TestScaleApply(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{1, 1},
		{2, 3},     // 3.25 rounds half to even
		{2.5, 4.5}, // 4.375
		{3, 5.5},
		{5, 10},
		{0, 1},  // clamped
		{6, 10}, // clamped
	}
	for _, tt := range tests {
		if got := DefaultScale.Apply(tt.raw); got != tt.want {
			t.Errorf("Apply(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestScaleQuantizeAndFormat(t *testing.T) {
	s := Scale{Slope: 1, Min: 0, Max: 5, Step: 0.1}
	require.Equal(t, 0.3, s.Quantize(0.31))
	require.Equal(t, "7.5/10.0", DefaultScale.Format(7.5))

	require.NoError(t, DefaultScale.Validate())
	require.Error(t, Scale{Slope: 1, Max: 1, Step: 0}.Validate())
	require.Error(t, Scale{Slope: 1, Min: 2, Max: 1, Step: 1}.Validate())
	require.Error(t, Scale{Min: 0, Max: 1, Step: 1}.Validate())
}

func TestScaleQuantizeSteps(t *testing.T) {
	tests := []struct {
		step float64
		in   float64
		want float64
	}{
		{0.25, 7.25, 7.25},
		{0.25, 3.75, 3.75},
		{0.25, 7.3, 7.25},
		{0.25, 7.375, 7.5}, // 29.5 steps rounds half to even
		{0.05, 0.45, 0.45},
		{0.05, 0.47, 0.45},
		{0.05, 9.96, 9.95},
		{0.5, 7.75, 8},
		{1, 2.5, 2},
		{1, 3.5, 4},
	}
	for _, tt := range tests {
		s := Scale{Slope: 1, Min: 0, Max: 10, Step: tt.step}
		if got := s.Quantize(tt.in); got != tt.want {
			t.Errorf("step %v: Quantize(%v) = %v, want %v", tt.step, tt.in, got, tt.want)
		}
	}
}

func TestScaleFormatFollowsStep(t *testing.T) {
	require.Equal(t, "7.25/10.0", Scale{Slope: 1, Max: 10, Step: 0.25}.Format(7.25))
	require.Equal(t, "7.0/10.0", Scale{Slope: 1, Max: 10, Step: 1}.Format(7))
	require.Equal(t, "0.45/1.0", Scale{Slope: 1, Max: 1, Step: 0.05}.Format(0.45))
}

func TestFromLogits(t *testing.T) {
	got, err := fromLogits([]float32{1, 2, 3, 4, 5, 2.5}, DefaultScale)
	require.NoError(t, err)
	require.Equal(t, Scores{1, 3, 5.5, 8, 10, 4.5}, got)

	_, err = fromLogits([]float32{1, 2}, DefaultScale)
	require.ErrorIs(t, err, ErrUnexpectedOutput)
}

func TestDecodeLevel(t *testing.T) {
	labels, err := dataset.BuildLabelMap([]float64{1, 1.5, 2, 2.5})
	require.NoError(t, err)

	lvl, err := decodeLevel([]float32{0.1, 3, 0.2, 0.1}, labels)
	require.NoError(t, err)
	require.Equal(t, 1.5, lvl.Score)
	require.Equal(t, 1, lvl.LabelID)
	require.Greater(t, lvl.Confidence, 0.8)
	require.LessOrEqual(t, lvl.Confidence, 1.0)

	// More classes than labels: the winner cannot be decoded.
	_, err = decodeLevel([]float32{0, 0, 0, 0, 9}, labels)
	var uie *dataset.UnknownLabelIDError
	require.True(t, errors.As(err, &uie), "got %v", err)
	require.Equal(t, 4, uie.ID)

	_, err = decodeLevel(nil, labels)
	require.ErrorIs(t, err, ErrUnexpectedOutput)
}

func TestNewONNXScorer_ModelNotFound(t *testing.T) {
	_, err := NewONNXScorer(filepath.Join(t.TempDir(), "missing.onnx"), "tok.model")
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestNewONNXScorer_TokenizerNotFound(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("onnx"), 0o600))

	_, err := NewONNXScorer(modelPath, filepath.Join(dir, "missing.model"))
	require.ErrorIs(t, err, ErrTokenizerFailed)
}

func TestNewONNXScorer_BadScale(t *testing.T) {
	_, err := NewONNXScorer("model.onnx", "tok.model", WithScale(Scale{}))
	require.Error(t, err)
}

func TestNewLevelEstimator_NoLabels(t *testing.T) {
	_, err := NewLevelEstimator("model.onnx", "vocab.txt", nil)
	require.Error(t, err)
}

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestRemoteScorer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != PredictPath {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EssayText == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"cohesion":3.5,"syntax":3,"vocabulary":4,"phraseology":3,"grammar":2.5,"conventions":3}`)
	}))
	defer srv.Close()

	s := NewRemoteScorer(srv.URL+"/", time.Second, fastRetry())

	got, err := s.PredictScores(context.Background(), "An essay about phones.")
	require.NoError(t, err)
	require.Equal(t, Scores{3.5, 3, 4, 3, 2.5, 3}, got)

	got, err = s.PredictScores(context.Background(), "   \n")
	require.NoError(t, err)
	require.True(t, got.IsZero())
	require.Equal(t, int32(1), calls.Load(), "blank text must not call the backend")
}

func TestRemoteScorerRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"cohesion":1,"syntax":1,"vocabulary":1,"phraseology":1,"grammar":1,"conventions":1}`)
	}))
	defer srv.Close()

	got, err := NewRemoteScorer(srv.URL, time.Second, fastRetry()).PredictScores(context.Background(), "text")
	require.NoError(t, err)
	require.Equal(t, 1.0, got.Get(Cohesion))
	require.Equal(t, int32(2), calls.Load())
}

func TestRemoteScorerPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewRemoteScorer(srv.URL, time.Second, fastRetry()).PredictScores(context.Background(), "text")
	var se *retry.StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	require.Equal(t, http.StatusInternalServerError, se.StatusCode)
	require.Contains(t, se.Body, "model exploded")
	require.Equal(t, int32(1), calls.Load())
}
