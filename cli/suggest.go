package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/graph"
	"github.com/vaultmind/vaultmind/suggest"
	"github.com/vaultmind/vaultmind/vault"
)

var suggestJSON bool

var (
	suggestScoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	suggestPathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	suggestDetailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var suggestCmd = &cobra.Command{
	Use:   "suggest [note-path]",
	Short: "Suggest links between related notes",
	Long: `Find notes that cover related ground but are not linked yet.

Candidates come from the similarity band just below the duplicate
detector's thresholds and are ranked by a composite of embedding
similarity, shared knowledge-graph entities, and graph distance.

With a note path, suggestions are computed for that note only; without
one, the whole vault is scanned.

Requires an up-to-date index; run 'vaultmind index' first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSuggest,
}

func init() {
	suggestCmd.Flags().BoolVarP(&suggestJSON, "json", "j", false, "Output results in JSON format")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
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

	kg := graph.NewKnowledgeGraph(config.GetGraphPath(vaultRoot))
	if err := kg.Load(); err != nil {
		log.Printf("Warning: failed to load knowledge graph: %v", err)
		kg = nil
	}

	suggester := suggest.NewSuggester(suggest.Config{
		MinContentLength: cfg.Suggest.MinContentLength,
		MinSimilarity:    cfg.Suggest.MinSimilarity,
		MaxSimilarity:    cfg.Suggest.MaxSimilarity,
		EntityWeight:     cfg.Suggest.EntityWeight,
		GraphWeight:      cfg.Suggest.GraphWeight,
		MaxResults:       cfg.Suggest.MaxResults,
	}, st, kg)

	parser := vault.NewParser(vaultRoot, cfg.Vault.ExcludedFolders)

	all := make(map[string][]suggest.Suggestion)
	if len(args) > 0 {
		absPath := filepath.Join(vaultRoot, filepath.FromSlash(args[0]))
		if !parser.ShouldProcess(absPath) {
			return fmt.Errorf("not a vault note: %s", args[0])
		}
		note, err := parser.ParseFile(absPath)
		if err != nil {
			return fmt.Errorf("failed to read note: %w", err)
		}
		list, err := suggester.SuggestLinks(ctx, note)
		if err != nil {
			return fmt.Errorf("suggestion scan failed: %w", err)
		}
		if len(list) > 0 {
			all[note.Path] = list
		}
	} else {
		notes, err := parser.IterNotes()
		if err != nil {
			return fmt.Errorf("failed to scan vault: %w", err)
		}
		all, err = suggester.ScanVault(ctx, notes)
		if err != nil {
			return fmt.Errorf("suggestion scan failed: %w", err)
		}
	}

	if suggestJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(all)
	}

	if len(all) == 0 {
		fmt.Println("No link suggestions found.")
		return nil
	}

	paths := make([]string, 0, len(all))
	for path := range all {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fmt.Printf("%s\n", suggestPathStyle.Render(path))
		for _, sg := range all[path] {
			fmt.Printf("  %s -> %s\n", suggestScoreStyle.Render(fmt.Sprintf("%.3f", sg.CompositeScore)),
				suggestPathStyle.Render(sg.TargetPath))
			details := []string{fmt.Sprintf("similarity %.3f", sg.Similarity)}
			if len(sg.SharedEntities) > 0 {
				details = append(details, "shared: "+strings.Join(sg.SharedEntities, ", "))
			}
			if sg.GraphDistance > 0 {
				details = append(details, fmt.Sprintf("graph distance %d", sg.GraphDistance))
			}
			fmt.Printf("    %s\n", suggestDetailStyle.Render(strings.Join(details, "  ")))
		}
		fmt.Println()
	}

	return nil
}
