package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/mcp"
)

var mcpServeCmd = &cobra.Command{
	Use:   "mcp-serve [vault-path]",
	Short: "Start vaultmind as an MCP server",
	Long: `Start vaultmind as an MCP (Model Context Protocol) server.

This allows AI agents to use vaultmind as a native tool through the MCP
protocol. The server communicates via stdio and exposes the following tools:

  - vaultmind_search: Semantic search over vault notes
  - vaultmind_read_note: Read a note with parsed frontmatter and links
  - vaultmind_list_duplicates: List near-duplicate note pairs
  - vaultmind_suggest_links: Suggest notes worth linking from a note
  - vaultmind_graph_neighbors: Look up an entity and its relationships
  - vaultmind_vault_status: Check index and graph health

Arguments:
  vault-path  Optional path to the vault root.
              If not provided, searches for .vaultmind from current directory.

Configuration for Claude Code:
  claude mcp add vaultmind -- vaultmind mcp-serve

Configuration for Cursor (.cursor/mcp.json):
  {
    "mcpServers": {
      "vaultmind": {
        "command": "vaultmind",
        "args": ["mcp-serve", "/path/to/your/vault"]
      }
    }
  }`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMCPServe,
}

func init() {
	rootCmd.AddCommand(mcpServeCmd)
}

func runMCPServe(cmd *cobra.Command, args []string) error {
	var vaultRoot string
	if len(args) > 0 {
		vaultRoot = args[0]
		if !filepath.IsAbs(vaultRoot) {
			abs, err := filepath.Abs(vaultRoot)
			if err != nil {
				return fmt.Errorf("failed to resolve path: %w", err)
			}
			vaultRoot = abs
		}
		if !config.Exists(vaultRoot) {
			return fmt.Errorf("no vaultmind vault found at %s (run 'vaultmind init' first)", vaultRoot)
		}
	} else {
		var err error
		vaultRoot, err = config.FindVaultRoot()
		if err != nil {
			return err
		}
	}

	srv, err := mcp.NewServer(vaultRoot)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	return srv.Serve()
}
