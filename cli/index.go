package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/graph"
	"github.com/vaultmind/vaultmind/index"
	"github.com/vaultmind/vaultmind/vault"
)

var indexWithGraph bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the vault index",
	Long: `Scan the vault and index every note into the vector store.

Notes whose modification time has not changed since the last run are
skipped. Notes deleted from disk are removed from the index.

With --graph, entities and relationships are also re-extracted from
every note into the knowledge graph. This calls the configured LLM once
per note and can take a while on large vaults.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexWithGraph, "graph", false, "Also rebuild the knowledge graph")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	vaultRoot, err := config.FindVaultRoot()
	if err != nil {
		return err
	}

	cfg, err := config.Load(vaultRoot)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	fmt.Printf("Indexing vault: %s\n", vaultRoot)
	fmt.Printf("Provider: %s (%s)\n", cfg.Embedder.Provider, cfg.Embedder.Model)
	fmt.Printf("Backend: %s\n", cfg.Store.Backend)

	emb, err := initializeEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer emb.Close()

	st, err := initializeStore(ctx, cfg, vaultRoot)
	if err != nil {
		return err
	}
	defer st.Close()

	parser := vault.NewParser(vaultRoot, cfg.Vault.ExcludedFolders)
	chunker := index.NewChunker(cfg.Chunking.MaxTokens)
	idx := index.NewIndexer(parser, st, emb, chunker)

	stats, err := idx.IndexAll(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("\nIndexed %d notes (%d chunks), removed %d, skipped %d unchanged (took %s)\n",
		stats.NotesIndexed, stats.ChunksCreated, stats.NotesRemoved, stats.NotesSkipped,
		stats.Duration.Round(time.Millisecond))

	if err := st.Persist(ctx); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	if indexWithGraph {
		if err := rebuildGraph(ctx, cfg, vaultRoot, parser); err != nil {
			return err
		}
	}

	return nil
}

func rebuildGraph(ctx context.Context, cfg *config.Config, vaultRoot string, parser *vault.Parser) error {
	fmt.Println("\nRebuilding knowledge graph...")

	kg := graph.NewKnowledgeGraph(config.GetGraphPath(vaultRoot))
	if err := kg.Load(); err != nil {
		log.Printf("Warning: failed to load existing graph, starting fresh: %v", err)
	}

	extractor := graph.NewExtractor(graph.ExtractorConfig{
		Model:         cfg.Graph.LLMModel,
		Endpoint:      cfg.Graph.LLMEndpoint,
		APIKey:        cfg.Graph.LLMAPIKey,
		Timeout:       time.Duration(cfg.Graph.LLMTimeoutMs) * time.Millisecond,
		MinConfidence: cfg.Graph.MinConfidence,
	}, kg)

	notes, err := parser.IterNotes()
	if err != nil {
		return fmt.Errorf("failed to enumerate notes: %w", err)
	}

	start := time.Now()
	stats, err := extractor.ExtractAndUpdate(ctx, notes)
	if err != nil {
		return fmt.Errorf("graph extraction failed: %w", err)
	}

	graphStats := kg.Stats()
	fmt.Printf("Graph rebuilt: %d entities (+%d), %d relationships (+%d) (took %s)\n",
		graphStats.Entities, stats.EntitiesAdded,
		graphStats.Relationships, stats.RelationshipsAdded,
		time.Since(start).Round(time.Millisecond))

	return nil
}
