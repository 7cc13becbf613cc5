package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"pixelbot/internal/domain"
	"pixelbot/internal/metrics"
)

const defaultGeminiModel = "gemini-2.5-flash-image"

// Gemini implements domain.ImageGenerator on the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	BaseURL string // optional override, used by tests
	Logger  *slog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: SharedHTTPClient(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, logger: cfg.Logger}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Model() string { return g.model }

// Generate sends prompt to the model and folds the first candidate's parts
// into a GenerationResult. A response without candidates is an empty result,
// not an error.
func (g *Gemini) Generate(ctx context.Context, prompt string) (*domain.GenerationResult, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	elapsed := time.Since(start)
	metrics.GenerationLatency.Observe(elapsed.Seconds())
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	parts := convertParts(resp)
	res := domain.CollectParts(parts)

	g.logger.Info("gemini response",
		"model", g.model,
		"parts", len(parts),
		"has_image", res.HasImage(),
		"text_len", len(res.Text),
		"latency_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

// Healthy checks that the configured model is reachable with the current key.
func (g *Gemini) Healthy(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		return fmt.Errorf("gemini model %s not reachable: %w", g.model, err)
	}
	return nil
}

func convertParts(resp *genai.GenerateContentResponse) []domain.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}

	var parts []domain.Part
	for _, p := range resp.Candidates[0].Content.Parts {
		switch {
		case p == nil || p.Thought:
			// internal reasoning is never shown to the sender
		case p.Text != "":
			parts = append(parts, domain.Part{Kind: domain.PartText, Text: p.Text})
		case p.InlineData != nil:
			parts = append(parts, domain.Part{
				Kind:     domain.PartImage,
				MIMEType: p.InlineData.MIMEType,
				Data:     p.InlineData.Data,
			})
		}
	}
	return parts
}
