package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jamesainslie/go-writecoach/internal/retry"
)

// PredictPath is the scoring endpoint of the grading backend.
const PredictPath = "/predict_scores"

// PredictRequest is the request body of PredictPath.
type PredictRequest struct {
	EssayText string `json:"essay_text"`
}

// RemoteScorer calls a grading backend over HTTP.
type RemoteScorer struct {
	baseURL string
	client  *http.Client
	retry   retry.Config
}

// NewRemoteScorer returns a scorer for the backend at baseURL.
func NewRemoteScorer(baseURL string, timeout time.Duration, rc retry.Config) *RemoteScorer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteScorer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retry:   rc,
	}
}

// PredictScores posts text to the backend. Blank text scores zero without a
// request.
func (r *RemoteScorer) PredictScores(ctx context.Context, text string) (Scores, error) {
	if strings.TrimSpace(text) == "" {
		return Scores{}, nil
	}

	body, err := json.Marshal(PredictRequest{EssayText: text})
	if err != nil {
		return Scores{}, err
	}

	return retry.Do(ctx, r.retry, "predict scores", retry.IsRetryableHTTP, func() (Scores, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+PredictPath, bytes.NewReader(body))
		if err != nil {
			return Scores{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return Scores{}, fmt.Errorf("calling scoring backend: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Scores{}, retry.NewStatusError(resp)
		}

		var out Scores
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return Scores{}, fmt.Errorf("decoding scores: %w", err)
		}
		return out, nil
	})
}
