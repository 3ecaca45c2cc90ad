package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/time/rate"

	"github.com/jamesainslie/go-writecoach/internal/retry"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// ErrorPrefix starts every feedback string that reports a failure.
const ErrorPrefix = "Error:"

// IsError reports whether s is a failure sentinel rather than feedback.
func IsError(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), ErrorPrefix)
}

// Errorf formats a failure sentinel.
func Errorf(format string, args ...any) string {
	return ErrorPrefix + " " + fmt.Sprintf(format, args...)
}

var (
	// ErrEmptyEssay is returned for blank essays.
	ErrEmptyEssay = errors.New("essay is empty")
	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("empty response")
)

// Request is one feedback generation call. Model-backed providers send
// System and Prompt; the remote provider forwards Essay and Scores.
type Request struct {
	Essay  string
	Scores scoring.Scores
	System string
	Prompt string
}

// Provider generates feedback text through one vendor.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	// Retryable reports whether err is a transient vendor failure.
	Retryable(err error) bool
}

// Client turns an essay and its scores into feedback. Failures never
// surface as Go errors: GenerateFeedback returns a string starting with
// ErrorPrefix instead.
type Client struct {
	provider Provider
	prompt   *Prompt
	limiter  *rate.Limiter
	retry    retry.Config
}

// Option configures a Client.
type Option func(*Client)

// WithPrompt replaces the default prompt.
func WithPrompt(p *Prompt) Option {
	return func(c *Client) { c.prompt = p }
}

// WithRetry sets the retry policy for transient provider failures.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithRequestsPerMinute limits the request rate. Zero means unlimited.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// New returns a client for p.
func New(p Provider, opts ...Option) *Client {
	c := &Client{
		provider: p,
		prompt:   DefaultPrompt(scoring.DefaultScale),
		retry:    retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateFeedback returns personalised feedback for essay, or an
// ErrorPrefix sentinel describing why none could be produced.
func (c *Client) GenerateFeedback(ctx context.Context, essay string, scores scoring.Scores) string {
	text, err := c.Generate(ctx, essay, scores)
	if err != nil {
		clog.FromContext(ctx).With("provider", c.provider.Name()).
			With("error", err.Error()).
			Warn("Feedback generation failed")
		return Errorf("%v", err)
	}
	return text
}

// Generate is GenerateFeedback with an explicit error.
func (c *Client) Generate(ctx context.Context, essay string, scores scoring.Scores) (string, error) {
	if strings.TrimSpace(essay) == "" {
		return "", ErrEmptyEssay
	}

	system, user, err := c.prompt.Render(essay, scores)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	req := Request{Essay: essay, Scores: scores, System: system, Prompt: user}

	start := time.Now()
	text, err := retry.Do(ctx, c.retry, c.provider.Name()+" feedback", c.provider.Retryable, func() (string, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		return c.provider.Generate(ctx, req)
	})
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", c.provider.Name(), ErrEmptyResponse)
	}

	clog.FromContext(ctx).With("provider", c.provider.Name()).
		With("duration", time.Since(start)).
		With("chars", len(text)).
		Info("Generated feedback")
	return text, nil
}
