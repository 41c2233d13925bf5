package repositories

import "context"

// SummarizationProvider abstracts a text-in/text-out LLM used to
// summarize finished transcripts.
type SummarizationProvider interface {
	// Name returns the provider key ("ollama", "openai", "gemini").
	Name() string
	// ListModels returns the model names this provider can serve.
	ListModels(ctx context.Context) ([]string, error)
	// Summarize generates a markdown summary of the formatted
	// transcript using the given model.
	Summarize(ctx context.Context, transcript, model, systemPrompt string) (string, error)
}
