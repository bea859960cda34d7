// Package cli implements the vaultmind command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vaultmind",
	Short: "Semantic assistant for your Obsidian vault",
	Long: `vaultmind indexes the markdown notes in an Obsidian vault, keeps the
index fresh as you edit, and answers semantic queries over it.

It also maintains a knowledge graph of entities and relationships
extracted from your notes, and flags near-duplicate notes that are
candidates for merging.

Get started:
  vaultmind init      Initialize vaultmind inside your vault
  vaultmind index     Build the full index
  vaultmind watch     Keep the index fresh as notes change
  vaultmind search    Search the vault with natural language`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
