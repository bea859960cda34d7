package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/vault"
)

var (
	initProvider       string
	initModel          string
	initBackend        string
	initNonInteractive bool
)

const lmStudioEmbeddingDimensions = 768

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize vaultmind in the current vault",
	Long: `Initialize vaultmind by creating a .vaultmind directory with configuration.

This command will:
- Create .vaultmind/config.yaml with default settings
- Prompt for embedding provider (Ollama, LM Studio, OpenAI, or Synthetic)
- Prompt for storage backend (GOB file, PostgreSQL, or Qdrant)
- Add .vaultmind/ to .gitignore if present

Run it from the root of your Obsidian vault.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initProvider, "provider", "p", "", "Embedding provider (ollama, lmstudio, openai, or synthetic)")
	initCmd.Flags().StringVarP(&initModel, "model", "m", "", "Embedding model override")
	initCmd.Flags().StringVarP(&initBackend, "backend", "b", "", "Storage backend (gob, postgres, or qdrant)")
	initCmd.Flags().BoolVar(&initNonInteractive, "yes", false, "Use defaults without prompting")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	// Check if already initialized
	if config.Exists(cwd) {
		fmt.Println("vaultmind is already initialized in this vault.")
		fmt.Printf("Configuration: %s\n", config.GetConfigPath(cwd))
		return nil
	}

	// Not fatal, but worth flagging: the vault root is normally the
	// directory that holds .obsidian/.
	if _, err := os.Stat(filepath.Join(cwd, ".obsidian")); os.IsNotExist(err) {
		fmt.Println("Note: no .obsidian directory found here. If this is not your vault root, re-run from the vault root.")
	}

	cfg := config.DefaultConfig()

	// Interactive mode
	if !initNonInteractive {
		reader := bufio.NewReader(os.Stdin)

		// Provider selection
		if initProvider == "" {
			fmt.Println("\nSelect embedding provider:")
			fmt.Println("  1) ollama (local, privacy-first, requires Ollama running)")
			fmt.Println("  2) lmstudio (local, OpenAI-compatible, requires LM Studio running)")
			fmt.Println("  3) openai (cloud, requires API key)")
			fmt.Println("  4) synthetic (cloud, free embedding API)")
			fmt.Print("Choice [1]: ")

			input, _ := reader.ReadString('\n')
			input = strings.TrimSpace(input)

			switch input {
			case "2", "lmstudio":
				cfg.Embedder.Provider = "lmstudio"
				fmt.Print("LM Studio endpoint [http://127.0.0.1:1234]: ")
				endpoint, _ := reader.ReadString('\n')
				endpoint = strings.TrimSpace(endpoint)
				if endpoint == "" {
					endpoint = "http://127.0.0.1:1234"
				}
				cfg.Embedder.Endpoint = endpoint
				cfg.Embedder.Model = "text-embedding-nomic-embed-text-v1.5"
				dim := lmStudioEmbeddingDimensions
				cfg.Embedder.Dimensions = &dim
			case "3", "openai":
				cfg.Embedder.Provider = "openai"
				cfg.Embedder.Model = "text-embedding-3-small"
				cfg.Embedder.Endpoint = "https://api.openai.com/v1"
				// OpenAI: leave Dimensions nil to use model's native dimensions
				cfg.Embedder.Dimensions = nil
			case "4", "synthetic":
				cfg.Embedder.Provider = "synthetic"
				cfg.Embedder.Model = "hf:nomic-ai/nomic-embed-text-v1.5"
				cfg.Embedder.Endpoint = "https://api.synthetic.new/openai/v1"
				dim := 768
				cfg.Embedder.Dimensions = &dim
			default:
				cfg.Embedder.Provider = "ollama"
				fmt.Print("Ollama endpoint [http://localhost:11434]: ")
				endpoint, _ := reader.ReadString('\n')
				endpoint = strings.TrimSpace(endpoint)
				if endpoint == "" {
					endpoint = "http://localhost:11434"
				}
				cfg.Embedder.Endpoint = endpoint
			}
		} else {
			applyProviderDefaults(cfg, initProvider)
		}

		// Backend selection
		if initBackend == "" {
			fmt.Println("\nSelect storage backend:")
			fmt.Println("  1) gob (local file, recommended for most vaults)")
			fmt.Println("  2) postgres (pgvector, for very large vaults or a shared index)")
			fmt.Println("  3) qdrant (Docker-based vector database)")
			fmt.Print("Choice [1]: ")

			input, _ := reader.ReadString('\n')
			input = strings.TrimSpace(input)

			switch input {
			case "2", "postgres":
				cfg.Store.Backend = "postgres"
				fmt.Print("PostgreSQL DSN: ")
				dsn, _ := reader.ReadString('\n')
				cfg.Store.Postgres.DSN = strings.TrimSpace(dsn)
			case "3", "qdrant":
				cfg.Store.Backend = "qdrant"
				fmt.Print("Qdrant endpoint [localhost]: ")
				endpoint, _ := reader.ReadString('\n')
				endpoint = strings.TrimSpace(endpoint)
				if endpoint == "" {
					endpoint = "localhost"
				}
				cfg.Store.Qdrant.Endpoint = endpoint

				fmt.Print("Qdrant port [6334]: ")
				port, _ := reader.ReadString('\n')
				port = strings.TrimSpace(port)
				if port == "" {
					cfg.Store.Qdrant.Port = 6334
				} else {
					var portInt int
					if _, err := fmt.Sscanf(port, "%d", &portInt); err != nil {
						return fmt.Errorf("invalid port number: %w", err)
					}
					cfg.Store.Qdrant.Port = portInt
				}

				fmt.Print("Use TLS? (y/n) [n]: ")
				useTLS, _ := reader.ReadString('\n')
				useTLS = strings.TrimSpace(strings.ToLower(useTLS))
				cfg.Store.Qdrant.UseTLS = useTLS == "y" || useTLS == "yes"

				fmt.Print("Collection name (optional, defaults to 'vaultmind'): ")
				collection, _ := reader.ReadString('\n')
				cfg.Store.Qdrant.Collection = strings.TrimSpace(collection)

				fmt.Print("API key (optional, for Qdrant Cloud): ")
				apiKey, _ := reader.ReadString('\n')
				cfg.Store.Qdrant.APIKey = strings.TrimSpace(apiKey)
			default:
				cfg.Store.Backend = "gob"
			}
		} else {
			cfg.Store.Backend = initBackend
		}
	} else {
		// Non-interactive with flags
		if initProvider != "" {
			applyProviderDefaults(cfg, initProvider)
		}
		if initBackend != "" {
			cfg.Store.Backend = initBackend
		}
	}

	if initModel != "" {
		cfg.Embedder.Model = initModel
	}

	// Save configuration
	if err := cfg.Save(cwd); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("\nCreated configuration at %s\n", config.GetConfigPath(cwd))

	// Add .vaultmind/ to .gitignore when the vault is version controlled
	if _, err := os.Stat(filepath.Join(cwd, ".gitignore")); err == nil {
		if err := vault.AddToGitignore(cwd, ".vaultmind/"); err != nil {
			fmt.Printf("Warning: could not update .gitignore: %v\n", err)
		} else {
			fmt.Println("Added .vaultmind/ to .gitignore")
		}
	}

	fmt.Println("\nvaultmind initialized successfully!")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Build the index: vaultmind index")
	fmt.Println("  2. Keep it fresh: vaultmind watch")
	fmt.Println("  3. Search your notes: vaultmind search \"your query\"")

	switch cfg.Embedder.Provider {
	case "ollama":
		fmt.Println("\nMake sure Ollama is running with the nomic-embed-text model:")
		fmt.Println("  ollama pull nomic-embed-text")
	case "lmstudio":
		fmt.Println("\nMake sure LM Studio is running with an embedding model loaded.")
		fmt.Printf("  Model: %s\n", cfg.Embedder.Model)
		fmt.Printf("  Endpoint: %s\n", cfg.Embedder.Endpoint)
	case "openai":
		fmt.Println("\nMake sure OPENAI_API_KEY is set in your environment.")
	case "synthetic":
		fmt.Println("\nMake sure SYNTHETIC_API_KEY or OPENAI_API_KEY is set in your environment.")
		fmt.Println("  Get your free API key at: https://api.synthetic.new")
	}

	return nil
}

// applyProviderDefaults fills in provider-specific model and endpoint
// defaults when the provider came from a flag rather than the prompts.
func applyProviderDefaults(cfg *config.Config, provider string) {
	cfg.Embedder.Provider = provider
	switch provider {
	case "lmstudio":
		cfg.Embedder.Model = "text-embedding-nomic-embed-text-v1.5"
		cfg.Embedder.Endpoint = "http://127.0.0.1:1234"
		dim := lmStudioEmbeddingDimensions
		cfg.Embedder.Dimensions = &dim
	case "openai":
		cfg.Embedder.Model = "text-embedding-3-small"
		cfg.Embedder.Endpoint = "https://api.openai.com/v1"
		cfg.Embedder.Dimensions = nil
	case "synthetic":
		cfg.Embedder.Model = "hf:nomic-ai/nomic-embed-text-v1.5"
		cfg.Embedder.Endpoint = "https://api.synthetic.new/openai/v1"
		dim := 768
		cfg.Embedder.Dimensions = &dim
	}
}
