package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/go-writecoach/internal/retry"
	"github.com/jamesainslie/go-writecoach/scoring"
)

var testScores = scoring.Scores{3.5, 4, 5, 6, 2.5, 7}

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

type fakeProvider struct {
	calls     atomic.Int32
	responses []string
	errs      []error
	last      Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, req Request) (string, error) {
	i := int(f.calls.Add(1)) - 1
	f.last = req
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", nil
}

var errTransient = errors.New("transient")

func (f *fakeProvider) Retryable(err error) bool { return errors.Is(err, errTransient) }

func TestIsError(t *testing.T) {
	require.True(t, IsError("Error: rate limited"))
	require.True(t, IsError("  Error: x"))
	require.False(t, IsError("Your essay has an Error: in it"))
	require.False(t, IsError("Great work."))
	require.Equal(t, "Error: boom 7", Errorf("boom %d", 7))
}

func TestGenerateFeedback(t *testing.T) {
	p := &fakeProvider{responses: []string{"  Well structured essay.\n"}}
	c := New(p, WithRetry(fastRetry()))

	got := c.GenerateFeedback(context.Background(), "My essay.", testScores)
	require.Equal(t, "Well structured essay.", got)
	require.Equal(t, "My essay.", p.last.Essay)
	require.Equal(t, testScores, p.last.Scores)
	require.Contains(t, p.last.Prompt, "My essay.")
	require.NotEmpty(t, p.last.System)
}

func TestGenerateFeedbackRetriesTransient(t *testing.T) {
	p := &fakeProvider{
		errs:      []error{errTransient, nil},
		responses: []string{"", "Second time lucky."},
	}
	got := New(p, WithRetry(fastRetry())).GenerateFeedback(context.Background(), "essay", testScores)
	require.Equal(t, "Second time lucky.", got)
	require.Equal(t, int32(2), p.calls.Load())
}

func TestGenerateFeedbackFailures(t *testing.T) {
	tests := []struct {
		name  string
		essay string
		p     *fakeProvider
		calls int32
	}{
		{"blank essay", "  \n", &fakeProvider{}, 0},
		{"permanent error", "essay", &fakeProvider{errs: []error{errors.New("invalid api key")}}, 1},
		{"retries exhausted", "essay", &fakeProvider{errs: []error{errTransient, errTransient, errTransient}}, 3},
		{"empty response", "essay", &fakeProvider{responses: []string{"   "}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.p, WithRetry(fastRetry())).GenerateFeedback(context.Background(), tt.essay, testScores)
			require.True(t, IsError(got), "got %q", got)
			require.Equal(t, tt.calls, tt.p.calls.Load())
		})
	}
}

func TestPromptRender(t *testing.T) {
	system, user, err := DefaultPrompt(scoring.DefaultScale).Render("  The essay body.  ", testScores)
	require.NoError(t, err)
	require.NotEmpty(t, system)
	require.Contains(t, user, "### Essay\n\nThe essay body.\n")
	require.Contains(t, user, "- Cohesion: 3.5/10.0")
	require.Contains(t, user, "- Conventions: 7.0/10.0")
	require.Contains(t, user, "from 1.0 to 10.0")
}

func TestNewPrompt(t *testing.T) {
	p, err := NewPrompt("", "{{range .Items}}{{.Name}}={{.Score}};{{end}}", scoring.DefaultScale)
	require.NoError(t, err)
	system, user, err := p.Render("x", scoring.Scores{1, 1, 1, 1, 1, 1})
	require.NoError(t, err)
	require.Equal(t, defaultSystem, system)
	require.True(t, strings.HasPrefix(user, "Cohesion=1.0/10.0;Syntax="), user)

	_, err = NewPrompt("", "{{.Essay", scoring.DefaultScale)
	require.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	_, err := NewProvider(ctx, Config{Provider: ProviderOpenAI})
	require.ErrorContains(t, err, "API key")

	_, err = NewProvider(ctx, Config{Provider: "cohere", APIKey: "k"})
	require.ErrorContains(t, err, "unknown feedback provider")

	_, err = NewProvider(ctx, Config{Provider: ProviderRemote})
	require.ErrorContains(t, err, "base URL")

	p, err := NewProvider(ctx, Config{APIKey: "sk-test"})
	require.NoError(t, err)
	require.Equal(t, ProviderOpenAI, p.Name())

	p, err = NewProvider(ctx, Config{Provider: "Anthropic", APIKey: "k"})
	require.NoError(t, err)
	require.Equal(t, ProviderAnthropic, p.Name())

	require.Equal(t, "gpt-3.5-turbo", DefaultModel(ProviderOpenAI))
	require.False(t, NeedsAPIKey(ProviderRemote))
}

func TestOpenAIProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/chat/completions" {
			http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Model != "gpt-3.5-turbo" || len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"Clear thesis, vary your sentences."},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
	got := New(p, WithRetry(fastRetry())).GenerateFeedback(context.Background(), "An essay.", testScores)
	require.Equal(t, "Clear thesis, vary your sentences.", got)
	require.Equal(t, int32(2), calls.Load())
}

func TestOpenAIProviderPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p := NewOpenAI(Config{APIKey: "sk-bad", BaseURL: srv.URL})
	got := New(p, WithRetry(fastRetry())).GenerateFeedback(context.Background(), "An essay.", testScores)
	require.True(t, IsError(got), "got %q", got)
	require.Equal(t, int32(1), calls.Load())
}

func TestAnthropicProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.WriteHeader(529)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",`+
			`"content":[{"type":"text","text":"Strong ideas. "},{"type":"text","text":"Check your commas."}],`+
			`"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`)
	}))
	defer srv.Close()

	p := NewAnthropic(Config{Provider: ProviderAnthropic, APIKey: "k", BaseURL: srv.URL})
	got := New(p, WithRetry(fastRetry())).GenerateFeedback(context.Background(), "An essay.", testScores)
	require.Equal(t, "Strong ideas. Check your commas.", got)
	require.Equal(t, int32(2), calls.Load())
}

func TestRemoteProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != GeneratePath {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := GenerateResponse{Feedback: "Feedback for: " + req.EssayText}
		if req.Scores.Get(scoring.Grammar) < 2 {
			resp.Feedback = "Error: upstream model unavailable"
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(NewRemote(Config{Provider: ProviderRemote, BaseURL: srv.URL + "/"}), WithRetry(fastRetry()))

	require.Equal(t, "Feedback for: essay", c.GenerateFeedback(context.Background(), "essay", testScores))

	got := c.GenerateFeedback(context.Background(), "essay", scoring.Scores{1, 1, 1, 1, 1, 1})
	require.True(t, IsError(got))
	require.Contains(t, got, "upstream model unavailable")
}

func TestRetryableClassification(t *testing.T) {
	g := &Gemini{}
	require.True(t, g.Retryable(errors.New("Error 429, Message: Resource exhausted, Status: RESOURCE_EXHAUSTED")))
	require.True(t, g.Retryable(errors.New("Error 503, Status: UNAVAILABLE")))
	require.False(t, g.Retryable(errors.New("Error 400, Status: INVALID_ARGUMENT")))
	require.False(t, g.Retryable(nil))

	r := &Remote{}
	require.True(t, r.Retryable(&retry.StatusError{StatusCode: http.StatusServiceUnavailable}))
	require.False(t, r.Retryable(&retry.StatusError{StatusCode: http.StatusBadRequest}))
}
