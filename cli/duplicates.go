package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/dedup"
)

var (
	duplicatesBand string
	duplicatesJSON bool
)

var (
	duplicateBandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	mergeBandStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	duplicatePathStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find near-duplicate notes",
	Long: `Compare every pair of indexed notes by embedding similarity and report
pairs that look like duplicates or merge candidates.

Bands:
  duplicate        near-identical content, one of the pair is probably redundant
  merge_candidate  overlapping enough that merging may be worthwhile

Requires an up-to-date index; run 'vaultmind index' first.`,
	RunE: runDuplicates,
}

func init() {
	duplicatesCmd.Flags().StringVar(&duplicatesBand, "band", "", "Only show one band (duplicate or merge_candidate)")
	duplicatesCmd.Flags().BoolVarP(&duplicatesJSON, "json", "j", false, "Output results in JSON format")
	rootCmd.AddCommand(duplicatesCmd)
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if duplicatesBand != "" &&
		duplicatesBand != string(dedup.BandDuplicate) &&
		duplicatesBand != string(dedup.BandMergeCandidate) {
		return fmt.Errorf("invalid band %q (want %s or %s)", duplicatesBand, dedup.BandDuplicate, dedup.BandMergeCandidate)
	}

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

	detector := dedup.NewDetector(dedup.Config{
		MinContentLength:   cfg.Dedup.MinContentLength,
		DuplicateThreshold: cfg.Dedup.DuplicateThreshold,
		MergeThreshold:     cfg.Dedup.MergeThreshold,
	}, st)

	matches, err := detector.FindDuplicates(ctx)
	if err != nil {
		return fmt.Errorf("duplicate detection failed: %w", err)
	}

	if duplicatesBand != "" {
		filtered := matches[:0]
		for _, m := range matches {
			if string(m.Band) == duplicatesBand {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}

	if duplicatesJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(matches)
	}

	if len(matches) == 0 {
		fmt.Println("No duplicate candidates found.")
		return nil
	}

	fmt.Printf("Found %d similar pair(s):\n\n", len(matches))
	for _, m := range matches {
		band := mergeBandStyle.Render(string(m.Band))
		if m.Band == dedup.BandDuplicate {
			band = duplicateBandStyle.Render(string(m.Band))
		}
		fmt.Printf("  %s (%.2f)\n", band, m.Score)
		fmt.Printf("    %s\n", duplicatePathStyle.Render(m.NoteA))
		fmt.Printf("    %s\n\n", duplicatePathStyle.Render(m.NoteB))
	}

	return nil
}
