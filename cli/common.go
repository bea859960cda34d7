package cli

import (
	"context"
	"fmt"

	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/embedder"
	"github.com/vaultmind/vaultmind/store"
)

// initializeEmbedder builds the configured embedder and, for local
// providers, verifies the backing server is reachable before any indexing
// starts.
func initializeEmbedder(ctx context.Context, cfg *config.Config) (embedder.Embedder, error) {
	emb, err := embedder.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Embedder.Provider {
	case "ollama":
		if p, ok := emb.(embedder.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return nil, fmt.Errorf("cannot connect to Ollama: %w\nMake sure Ollama is running and has the %s model", err, cfg.Embedder.Model)
			}
		}
	case "lmstudio":
		if p, ok := emb.(embedder.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return nil, fmt.Errorf("cannot connect to LM Studio: %w\nMake sure LM Studio is running with the %s model loaded", err, cfg.Embedder.Model)
			}
		}
	}

	return emb, nil
}

// initializeStore builds the configured vector store rooted at the vault.
func initializeStore(ctx context.Context, cfg *config.Config, vaultRoot string) (store.VectorStore, error) {
	switch cfg.Store.Backend {
	case "gob":
		indexPath := config.GetIndexPath(vaultRoot)
		gobStore := store.NewGOBStore(indexPath)
		if err := gobStore.Load(ctx); err != nil {
			return nil, fmt.Errorf("failed to load index: %w", err)
		}
		return gobStore, nil
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.Postgres.DSN, vaultRoot, cfg.Embedder.GetDimensions())
	case "qdrant":
		return store.NewQdrantStore(ctx, cfg.Store.Qdrant.Endpoint, cfg.Store.Qdrant.Port, cfg.Store.Qdrant.UseTLS, cfg.Store.Qdrant.Collection, cfg.Store.Qdrant.APIKey, cfg.Embedder.GetDimensions())
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Store.Backend)
	}
}
