package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/alpkeskin/gotoon"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/store"
)

var (
	searchLimit   int
	searchJSON    bool
	searchTOON    bool
	searchCompact bool
)

// SearchResultJSON is a lightweight struct for JSON output (excludes vector, fingerprint, updated_at)
type SearchResultJSON struct {
	NotePath string  `json:"note_path"`
	Heading  string  `json:"heading,omitempty"`
	Score    float32 `json:"score"`
	Content  string  `json:"content"`
}

// SearchResultCompactJSON is a minimal struct for compact output (no content field)
type SearchResultCompactJSON struct {
	NotePath string  `json:"note_path"`
	Heading  string  `json:"heading,omitempty"`
	Score    float32 `json:"score"`
}

var (
	searchHeaderStyle  = lipgloss.NewStyle().Bold(true)
	searchPathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	searchHeadingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	searchScoreStyle   = lipgloss.NewStyle().Faint(true)
	searchRuleStyle    = lipgloss.NewStyle().Faint(true)
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search your vault with natural language",
	Long: `Search your vault using natural language queries.

The search will:
- Vectorize your query using the configured embedding provider
- Calculate cosine similarity against indexed note chunks
- Return the most relevant passages with note path, heading, and score`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results to return")
	searchCmd.Flags().BoolVarP(&searchJSON, "json", "j", false, "Output results in JSON format (for AI agents)")
	searchCmd.Flags().BoolVarP(&searchTOON, "toon", "t", false, "Output results in TOON format (token-efficient for AI agents)")
	searchCmd.Flags().BoolVarP(&searchCompact, "compact", "c", false, "Output minimal format without content (requires --json or --toon)")
	searchCmd.MarkFlagsMutuallyExclusive("json", "toon")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	ctx := context.Background()

	if searchCompact && !searchJSON && !searchTOON {
		return fmt.Errorf("--compact flag requires --json or --toon flag")
	}

	vaultRoot, err := config.FindVaultRoot()
	if err != nil {
		return err
	}

	cfg, err := config.Load(vaultRoot)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

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

	queryVector, err := emb.Embed(ctx, query)
	if err != nil {
		err = fmt.Errorf("failed to embed query: %w", err)
		if searchJSON {
			return outputSearchErrorJSON(err)
		}
		if searchTOON {
			return outputSearchErrorTOON(err)
		}
		return err
	}

	results, err := st.Search(ctx, queryVector, searchLimit)
	if err != nil {
		if searchJSON {
			return outputSearchErrorJSON(err)
		}
		if searchTOON {
			return outputSearchErrorTOON(err)
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		if searchCompact {
			return outputSearchCompactJSON(results)
		}
		return outputSearchJSON(results)
	}

	if searchTOON {
		if searchCompact {
			return outputSearchCompactTOON(results)
		}
		return outputSearchTOON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("%s\n\n", searchHeaderStyle.Render(fmt.Sprintf("Found %d results for: %q", len(results), query)))

	for i, result := range results {
		rule := searchRuleStyle.Render(fmt.Sprintf("─── Result %d ───", i+1))
		score := searchScoreStyle.Render(fmt.Sprintf("(score: %.4f)", result.Score))
		fmt.Printf("%s %s\n", rule, score)

		location := searchPathStyle.Render(result.Chunk.NotePath)
		if result.Chunk.Heading != "" {
			location += " " + searchHeadingStyle.Render("# "+result.Chunk.Heading)
		}
		fmt.Printf("Note: %s\n\n", location)

		// Display content, truncated for readability
		lines := strings.Split(result.Chunk.Content, "\n")
		for j := 0; j < len(lines) && j < 15; j++ {
			fmt.Printf("  │ %s\n", lines[j])
		}
		if len(lines) > 15 {
			fmt.Printf("  │ %s\n", searchScoreStyle.Render(fmt.Sprintf("... (%d more lines)", len(lines)-15)))
		}
		fmt.Println()
	}

	return nil
}

// outputSearchJSON outputs results in JSON format for AI agents
func outputSearchJSON(results []store.SearchResult) error {
	jsonResults := make([]SearchResultJSON, len(results))
	for i, r := range results {
		jsonResults[i] = SearchResultJSON{
			NotePath: r.Chunk.NotePath,
			Heading:  r.Chunk.Heading,
			Score:    r.Score,
			Content:  r.Chunk.Content,
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonResults)
}

// outputSearchCompactJSON outputs results in minimal JSON format (without content)
func outputSearchCompactJSON(results []store.SearchResult) error {
	jsonResults := make([]SearchResultCompactJSON, len(results))
	for i, r := range results {
		jsonResults[i] = SearchResultCompactJSON{
			NotePath: r.Chunk.NotePath,
			Heading:  r.Chunk.Heading,
			Score:    r.Score,
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonResults)
}

// outputSearchErrorJSON outputs an error in JSON format
func outputSearchErrorJSON(err error) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(map[string]string{"error": err.Error()})
	return nil
}

// outputSearchTOON outputs results in TOON format for AI agents
func outputSearchTOON(results []store.SearchResult) error {
	toonResults := make([]SearchResultJSON, len(results))
	for i, r := range results {
		toonResults[i] = SearchResultJSON{
			NotePath: r.Chunk.NotePath,
			Heading:  r.Chunk.Heading,
			Score:    r.Score,
			Content:  r.Chunk.Content,
		}
	}

	output, err := gotoon.Encode(toonResults)
	if err != nil {
		return fmt.Errorf("failed to encode TOON: %w", err)
	}
	fmt.Println(output)
	return nil
}

// outputSearchCompactTOON outputs results in minimal TOON format (without content)
func outputSearchCompactTOON(results []store.SearchResult) error {
	toonResults := make([]SearchResultCompactJSON, len(results))
	for i, r := range results {
		toonResults[i] = SearchResultCompactJSON{
			NotePath: r.Chunk.NotePath,
			Heading:  r.Chunk.Heading,
			Score:    r.Score,
		}
	}

	output, err := gotoon.Encode(toonResults)
	if err != nil {
		return fmt.Errorf("failed to encode TOON: %w", err)
	}
	fmt.Println(output)
	return nil
}

// outputSearchErrorTOON outputs an error in TOON format
func outputSearchErrorTOON(err error) error {
	output, encErr := gotoon.Encode(map[string]string{"error": err.Error()})
	if encErr != nil {
		return fmt.Errorf("failed to encode TOON error: %w", encErr)
	}
	fmt.Println(output)
	return nil
}
