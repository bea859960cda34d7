package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/graph"
)

var statsShowNotes bool

var statsLabelStyle = lipgloss.NewStyle().Bold(true)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index and knowledge graph statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsShowNotes, "notes", false, "List per-note chunk counts")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	vaultRoot, err := config.FindVaultRoot()
	if err != nil {
		return err
	}

	cfg, err := config.Load(vaultRoot)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	st, err := initializeStore(ctx, cfg, vaultRoot)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index stats: %w", err)
	}

	fmt.Println(statsLabelStyle.Render("Index"))
	fmt.Printf("  Vault: %s\n", vaultRoot)
	fmt.Printf("  Backend: %s\n", cfg.Store.Backend)
	fmt.Printf("  Provider: %s (%s)\n", cfg.Embedder.Provider, cfg.Embedder.Model)
	fmt.Printf("  Notes: %d\n", stats.TotalNotes)
	fmt.Printf("  Chunks: %d\n", stats.TotalChunks)
	fmt.Printf("  Size: %s\n", formatByteSize(stats.IndexSize))
	if !stats.LastUpdated.IsZero() {
		fmt.Printf("  Last updated: %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	kg := graph.NewKnowledgeGraph(config.GetGraphPath(vaultRoot))
	if err := kg.Load(); err == nil {
		graphStats := kg.Stats()
		fmt.Println()
		fmt.Println(statsLabelStyle.Render("Knowledge graph"))
		fmt.Printf("  Entities: %d\n", graphStats.Entities)
		fmt.Printf("  Relationships: %d\n", graphStats.Relationships)
	}

	if statsShowNotes {
		noteStats, err := st.ListNotesWithStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to list notes: %w", err)
		}
		sort.Slice(noteStats, func(i, j int) bool {
			return noteStats[i].ChunkCount > noteStats[j].ChunkCount
		})

		fmt.Println()
		fmt.Println(statsLabelStyle.Render("Notes"))
		for _, ns := range noteStats {
			fmt.Printf("  %4d  %s\n", ns.ChunkCount, ns.Path)
		}
	}

	return nil
}

func formatByteSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
