package feedback

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini generates feedback with the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewGemini returns a Gemini provider authenticated with cfg.APIKey.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	cfg = cfg.withDefaults()
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (p *Gemini) Name() string { return ProviderGemini }

func (p *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		},
		MaxOutputTokens: int32(p.maxTokens),
	}
	if p.temperature > 0 {
		config.Temperature = genai.Ptr(float32(p.temperature))
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), config)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Retryable matches the status text the Gemini API uses for quota
// exhaustion, overload and transient server errors.
func (p *Gemini) Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"RESOURCE_EXHAUSTED", "Resource exhausted", "429", "503", "UNAVAILABLE", "Overloaded", "rate limit", "quota exceeded", "Internal error"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
