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

// OllamaProvider summarizes transcripts with a local or LAN Ollama
// instance.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewOllamaProvider creates an Ollama summarization provider.
func NewOllamaProvider(baseURL string, logger *zap.Logger) *OllamaProvider {
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logger,
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

// ListModels returns locally pulled model names.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding ollama tags: %w", err)
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Summarize generates a summary via /api/generate.
func (p *OllamaProvider) Summarize(ctx context.Context, transcript, model, systemPrompt string) (string, error) {
	if model == "" {
		models, err := p.ListModels(ctx)
		if err != nil || len(models) == 0 {
			return "", fmt.Errorf("no ollama model available")
		}
		model = models[0]
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":  model,
		"system": systemPrompt,
		"prompt": transcript,
		"stream": false,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned %d", resp.StatusCode)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	if out.Response == "" {
		return "", fmt.Errorf("ollama returned empty summary")
	}

	p.logger.Info("Generated summary",
		zap.String("provider", "ollama"),
		zap.String("model", model),
		zap.Int("length", len(out.Response)))
	return out.Response, nil
}
