package embedder

import (
	"context"
	"fmt"

	"github.com/vaultmind/vaultmind/config"
)

// Embedder converts note text into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Pinger is implemented by embedders that can verify their backend is
// reachable before a long indexing run starts.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewFromConfig creates an Embedder based on the provided configuration.
// This factory centralizes provider initialization for the CLI commands
// and the MCP server.
func NewFromConfig(cfg *config.Config) (Embedder, error) {
	switch cfg.Embedder.Provider {
	case "ollama":
		opts := []OllamaOption{
			WithOllamaEndpoint(cfg.Embedder.Endpoint),
			WithOllamaModel(cfg.Embedder.Model),
		}
		if cfg.Embedder.Dimensions != nil {
			opts = append(opts, WithOllamaDimensions(*cfg.Embedder.Dimensions))
		}
		return NewOllamaEmbedder(opts...), nil

	case "openai":
		opts := []OpenAIOption{
			WithOpenAIModel(cfg.Embedder.Model),
			WithOpenAIKey(cfg.Embedder.APIKey),
			WithOpenAIEndpoint(cfg.Embedder.Endpoint),
		}
		if cfg.Embedder.Dimensions != nil {
			opts = append(opts, WithOpenAIDimensions(*cfg.Embedder.Dimensions))
		}
		return NewOpenAIEmbedder(opts...)

	case "lmstudio":
		// LM Studio speaks the OpenAI embeddings API on localhost and
		// needs no key.
		opts := []OpenAIOption{
			WithOpenAIModel(cfg.Embedder.Model),
			WithOpenAIEndpoint(defaultString(cfg.Embedder.Endpoint, "http://localhost:1234/v1")),
			WithOpenAIKey(defaultString(cfg.Embedder.APIKey, "lm-studio")),
		}
		if cfg.Embedder.Dimensions != nil {
			opts = append(opts, WithOpenAIDimensions(*cfg.Embedder.Dimensions))
		}
		return NewOpenAIEmbedder(opts...)

	case "synthetic":
		opts := []OpenAIOption{
			WithOpenAIModel(defaultString(cfg.Embedder.Model, "hf:nomic-ai/nomic-embed-text-v1.5")),
			WithOpenAIEndpoint(defaultString(cfg.Embedder.Endpoint, "https://api.synthetic.new/openai/v1")),
			WithOpenAIKey(cfg.Embedder.APIKey),
			WithOpenAIKeyEnv("SYNTHETIC_API_KEY"),
		}
		if cfg.Embedder.Dimensions != nil {
			opts = append(opts, WithOpenAIDimensions(*cfg.Embedder.Dimensions))
		}
		return NewOpenAIEmbedder(opts...)

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedder.Provider)
	}
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
