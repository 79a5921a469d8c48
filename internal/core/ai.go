package core

import "context"

// EmbeddingProvider turns text into dense vectors. The model parameter is
// the provider's model identifier; implementations reject models they do
// not serve.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string, model string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string, model string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
