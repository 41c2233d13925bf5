package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/adapters/llm"
	"github.com/mnemosyne/server/domain/repositories"
	"github.com/mnemosyne/server/internal/session"
)

// ProviderModels lists the models one provider can serve.
type ProviderModels struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

// SummarizeResult is the outcome of a summarization request.
type SummarizeResult struct {
	Summary  string `json:"summary"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// SummarizeService coordinates summarization providers and stores the
// resulting summary on the session.
type SummarizeService struct {
	providers map[string]repositories.SummarizationProvider
	sessions  *session.Service
	logger    *zap.Logger
}

// NewSummarizeService creates the service over the given providers.
func NewSummarizeService(providers []repositories.SummarizationProvider, sessions *session.Service, logger *zap.Logger) *SummarizeService {
	byName := make(map[string]repositories.SummarizationProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &SummarizeService{providers: byName, sessions: sessions, logger: logger}
}

// ListAllModels lists models from every configured provider. Providers
// that are down report empty model lists rather than failing the call.
func (s *SummarizeService) ListAllModels(ctx context.Context) []ProviderModels {
	results := make([]ProviderModels, 0, len(s.providers))
	for name, provider := range s.providers {
		models, err := provider.ListModels(ctx)
		if err != nil {
			s.logger.Warn("Provider model listing failed",
				zap.String("provider", name),
				zap.Error(err))
			models = []string{}
		}
		results = append(results, ProviderModels{Provider: name, Models: models})
	}
	return results
}

// Summarize generates and persists a summary of the session's
// transcript.
func (s *SummarizeService) Summarize(ctx context.Context, sessionID, providerName, model string) (*SummarizeResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(sess.Transcript) == 0 {
		return nil, fmt.Errorf("session %s has no transcript", sessionID)
	}

	provider, ok := s.providers[providerName]
	if !ok {
		available := make([]string, 0, len(s.providers))
		for name := range s.providers {
			available = append(available, name)
		}
		return nil, fmt.Errorf("provider %q not available, have %v", providerName, available)
	}

	transcript := llm.FormatTranscript(sess.Transcript)
	summary, err := provider.Summarize(ctx, transcript, model, llm.SystemPrompt)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.SetSummary(ctx, sessionID, summary); err != nil {
		return nil, err
	}

	return &SummarizeResult{Summary: summary, Provider: providerName, Model: model}, nil
}
