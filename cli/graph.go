package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/graph"
)

var graphJSON bool

var (
	entityNameStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	entityTypeStyle = lipgloss.NewStyle().Faint(true)
	relationStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
)

var graphCmd = &cobra.Command{
	Use:   "graph [entity]",
	Short: "Explore the knowledge graph",
	Long: `Explore entities and relationships extracted from your notes.

Without arguments, lists all known entities. With an entity name,
shows that entity and its direct neighbors.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().BoolVarP(&graphJSON, "json", "j", false, "Output in JSON format")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	vaultRoot, err := config.FindVaultRoot()
	if err != nil {
		return err
	}

	kg := graph.NewKnowledgeGraph(config.GetGraphPath(vaultRoot))
	if err := kg.Load(); err != nil {
		return fmt.Errorf("failed to load knowledge graph: %w", err)
	}

	if len(args) == 0 {
		return listGraphEntities(kg)
	}
	return showGraphEntity(kg, args[0])
}

func listGraphEntities(kg *graph.KnowledgeGraph) error {
	entities := kg.ListEntities()

	if graphJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entities)
	}

	if len(entities) == 0 {
		fmt.Println("Knowledge graph is empty. Run 'vaultmind index --graph' or enable reextract_graph in watch mode.")
		return nil
	}

	stats := kg.Stats()
	fmt.Printf("%d entities, %d relationships\n\n", stats.Entities, stats.Relationships)
	for _, e := range entities {
		fmt.Printf("  %s %s\n", entityNameStyle.Render(e.Name), entityTypeStyle.Render("("+e.Type+")"))
	}
	return nil
}

func showGraphEntity(kg *graph.KnowledgeGraph, name string) error {
	entity := kg.GetEntity(name)
	if entity == nil {
		return fmt.Errorf("entity %q not found in graph", name)
	}
	neighbors := kg.Neighbors(name)

	if graphJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			Entity    *graph.Entity        `json:"entity"`
			Neighbors []graph.Relationship `json:"neighbors"`
		}{entity, neighbors})
	}

	fmt.Printf("%s %s\n", entityNameStyle.Render(entity.Name), entityTypeStyle.Render("("+entity.Type+")"))
	fmt.Printf("Confidence: %.2f\n", entity.Confidence)
	if len(entity.SourceNotes) > 0 {
		fmt.Println("Mentioned in:")
		for _, note := range entity.SourceNotes {
			fmt.Printf("  %s\n", note)
		}
	}

	if len(neighbors) == 0 {
		fmt.Println("\nNo relationships recorded.")
		return nil
	}

	fmt.Printf("\nRelationships (%d):\n", len(neighbors))
	for _, rel := range neighbors {
		fmt.Printf("  %s %s %s %s\n",
			rel.Source,
			relationStyle.Render("-["+rel.Type+"]->"),
			rel.Target,
			entityTypeStyle.Render(fmt.Sprintf("(%.2f)", rel.Confidence)))
	}
	return nil
}
