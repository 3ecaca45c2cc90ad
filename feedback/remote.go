package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jamesainslie/go-writecoach/internal/retry"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// GeneratePath is the feedback endpoint of the grading backend.
const GeneratePath = "/generate_feedback"

// GenerateRequest is the request body of GeneratePath.
type GenerateRequest struct {
	EssayText string         `json:"essay_text"`
	Scores    scoring.Scores `json:"scores"`
}

// GenerateResponse is the response body of GeneratePath.
type GenerateResponse struct {
	Feedback string `json:"feedback"`
}

// Remote delegates feedback to a grading backend, which builds its own
// prompt.
type Remote struct {
	baseURL string
	client  *http.Client
}

// NewRemote returns a provider for the backend at cfg.BaseURL.
func NewRemote(cfg Config) *Remote {
	cfg = cfg.withDefaults()
	return &Remote{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Remote) Name() string { return ProviderRemote }

func (p *Remote) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(GenerateRequest{EssayText: req.Essay, Scores: req.Scores})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+GeneratePath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling feedback backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", retry.NewStatusError(resp)
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding feedback: %w", err)
	}
	// A backend that failed upstream passes its own sentinel through.
	if IsError(out.Feedback) {
		return "", fmt.Errorf("backend: %s", strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out.Feedback), ErrorPrefix)))
	}
	return out.Feedback, nil
}

func (p *Remote) Retryable(err error) bool {
	return retry.IsRetryableHTTP(err)
}
