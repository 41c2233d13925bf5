package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider summarizes transcripts with Google's Gemini API.
type GeminiProvider struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a Gemini summarization provider.
func NewGeminiProvider(apiKey string, logger *zap.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, logger: logger}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// ListModels returns the models this provider supports for
// summarization.
func (p *GeminiProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{defaultGeminiModel, "gemini-2.0-flash-lite", "gemini-1.5-pro"}, nil
}

// Summarize generates a summary of the transcript.
func (p *GeminiProvider) Summarize(ctx context.Context, transcript, model, systemPrompt string) (string, error) {
	if model == "" {
		model = defaultGeminiModel
	}

	contents := []*genai.Content{
		genai.NewContentFromText(transcript, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}

	response, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no content")
	}

	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", fmt.Errorf("gemini returned empty summary")
	}

	p.logger.Info("Generated summary",
		zap.String("provider", "gemini"),
		zap.String("model", model),
		zap.Int("length", len(text)))
	return text, nil
}
