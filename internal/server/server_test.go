package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coach "github.com/jamesainslie/go-writecoach"
	"github.com/jamesainslie/go-writecoach/feedback"
	"github.com/jamesainslie/go-writecoach/internal/retry"
	"github.com/jamesainslie/go-writecoach/scoring"
)

var testScores = scoring.Scores{3.5, 3, 4, 3, 2.5, 3}

type stubScorer struct {
	err  error
	seen string
}

func (s *stubScorer) PredictScores(_ context.Context, text string) (scoring.Scores, error) {
	s.seen = text
	if s.err != nil {
		return scoring.Scores{}, s.err
	}
	if strings.TrimSpace(text) == "" {
		return scoring.Scores{}, nil
	}
	return testScores, nil
}

type stubFeedback struct{ reply string }

func (s stubFeedback) GenerateFeedback(_ context.Context, essay string, scores scoring.Scores) string {
	if s.reply != "" {
		return s.reply
	}
	return "Feedback on " + essay + " with cohesion " + scoring.DefaultScale.Format(scores.Get(scoring.Cohesion))
}

func newTestServer(t *testing.T, scorer coach.Scorer, gen coach.FeedbackGenerator) *httptest.Server {
	t.Helper()
	c, err := coach.New(scorer, gen)
	require.NoError(t, err)
	srv := httptest.NewServer(New(c, scorer, gen, WithMaxBodyBytes(4096)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &stubScorer{}, stubFeedback{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, buf.String(), "coach_http_requests_total")
}

func TestPredictScores(t *testing.T) {
	scorer := &stubScorer{}
	srv := newTestServer(t, scorer, stubFeedback{})

	resp, body := post(t, srv.URL+scoring.PredictPath, `{"essay_text":"Hello   WORLD!"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello world!", scorer.seen)

	var got scoring.Scores
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, testScores, got)

	resp, body = post(t, srv.URL+scoring.PredictPath, `{"essay_text":""}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &got))
	require.True(t, got.IsZero())
}

func TestPredictScoresErrors(t *testing.T) {
	srv := newTestServer(t, &stubScorer{err: errors.New("onnx exploded")}, stubFeedback{})

	resp, body := post(t, srv.URL+scoring.PredictPath, `{"essay_text":"text"}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Contains(t, string(body), "scoring failed")
	require.NotContains(t, string(body), "onnx exploded")

	resp, _ = post(t, srv.URL+scoring.PredictPath, `{not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, srv.URL+scoring.PredictPath, `{"essay_text":"`+strings.Repeat("a", 5000)+`"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, err := http.Get(srv.URL + scoring.PredictPath)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAssess(t *testing.T) {
	srv := newTestServer(t, &stubScorer{}, stubFeedback{reply: "Keep going."})

	resp, body := post(t, srv.URL+AssessPath, `{"essay_text":"An essay."}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got AssessResponse
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, coach.StatusComplete, got.Status)
	require.Equal(t, "An essay.", got.Record.Essay)
	require.Equal(t, "Keep going.", got.Record.Feedback)
	require.Equal(t, testScores, got.Record.Scores)

	resp, _ = post(t, srv.URL+AssessPath, `{"essay_text":"   "}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssessPartialAndFailed(t *testing.T) {
	srv := newTestServer(t, &stubScorer{}, stubFeedback{reply: "Error: quota exceeded"})
	resp, body := post(t, srv.URL+AssessPath, `{"essay_text":"An essay."}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"status":"partial"`)
	require.Contains(t, string(body), `"qualitative_feedback":null`)
	require.Contains(t, string(body), `"feedback_error":"Error: quota exceeded"`)

	srv = newTestServer(t, &stubScorer{err: errors.New("down")}, stubFeedback{})
	resp, _ = post(t, srv.URL+AssessPath, `{"essay_text":"An essay."}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

// The remote clients must speak the server's protocol.
func TestRemoteClientsRoundTrip(t *testing.T) {
	srv := newTestServer(t, &stubScorer{}, stubFeedback{})
	ctx := context.Background()
	rc := retry.Config{MaxRetries: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	scores, err := scoring.NewRemoteScorer(srv.URL, time.Second, rc).PredictScores(ctx, "An essay.")
	require.NoError(t, err)
	require.Equal(t, testScores, scores)

	gen := feedback.New(feedback.NewRemote(feedback.Config{Provider: feedback.ProviderRemote, BaseURL: srv.URL}), feedback.WithRetry(rc))
	text := gen.GenerateFeedback(ctx, "An essay.", scores)
	require.Equal(t, "Feedback on An essay. with cohesion 3.5/10.0", text)
}
