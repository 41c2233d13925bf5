package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider summarizes transcripts with any OpenAI-compatible
// chat completions endpoint (OpenAI itself, vLLM, and the like).
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewOpenAIProvider creates an OpenAI-compatible summarization
// provider.
func NewOpenAIProvider(baseURL, apiKey string, logger *zap.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// ListModels queries the /models endpoint.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding models list: %w", err)
	}

	names := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// Summarize generates a summary via chat completions.
func (p *OpenAIProvider) Summarize(ctx context.Context, transcript, model, systemPrompt string) (string, error) {
	if model == "" {
		model = defaultOpenAIModel
	}

	body, err := json.Marshal(map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": transcript},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completions returned %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion")
	}

	summary := out.Choices[0].Message.Content
	p.logger.Info("Generated summary",
		zap.String("provider", "openai"),
		zap.String("model", model),
		zap.Int("length", len(summary)))
	return summary, nil
}

func (p *OpenAIProvider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
