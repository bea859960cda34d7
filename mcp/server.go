// Package mcp provides an MCP (Model Context Protocol) server for vaultmind.
// This allows AI agents to query the vault index as a native tool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/alpkeskin/gotoon"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/dedup"
	"github.com/vaultmind/vaultmind/embedder"
	"github.com/vaultmind/vaultmind/graph"
	"github.com/vaultmind/vaultmind/store"
	"github.com/vaultmind/vaultmind/suggest"
	"github.com/vaultmind/vaultmind/vault"
)

// Server wraps the MCP server with vaultmind functionality.
type Server struct {
	mcpServer *server.MCPServer
	vaultRoot string
}

// SearchResult is a lightweight struct for MCP output.
type SearchResult struct {
	NotePath string  `json:"note_path"`
	Heading  string  `json:"heading,omitempty"`
	Score    float32 `json:"score"`
	Content  string  `json:"content"`
}

// SearchResultCompact is a minimal struct for compact output (no content field).
type SearchResultCompact struct {
	NotePath string  `json:"note_path"`
	Heading  string  `json:"heading,omitempty"`
	Score    float32 `json:"score"`
}

// NoteContent is the full note payload returned by vaultmind_read_note.
type NoteContent struct {
	Path  string   `json:"path"`
	Title string   `json:"title"`
	Type  string   `json:"type,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Links []string `json:"links,omitempty"`
	Body  string   `json:"body"`
}

// EntityNeighbors is the graph neighborhood returned by vaultmind_graph_neighbors.
type EntityNeighbors struct {
	Entity    *graph.Entity        `json:"entity"`
	Neighbors []graph.Relationship `json:"neighbors"`
}

// VaultStatus represents the current state of the index and graph.
type VaultStatus struct {
	TotalNotes    int    `json:"total_notes"`
	TotalChunks   int    `json:"total_chunks"`
	IndexSize     string `json:"index_size"`
	LastUpdated   string `json:"last_updated"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
}

// encodeOutput encodes data in the specified format (json or toon).
func encodeOutput(data any, format string) (string, error) {
	switch format {
	case "toon":
		return gotoon.Encode(data)
	default: // "json"
		jsonBytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(jsonBytes), nil
	}
}

// NewServer creates a new MCP server rooted at the given vault.
func NewServer(vaultRoot string) (*Server, error) {
	s := &Server{
		vaultRoot: vaultRoot,
	}

	s.mcpServer = server.NewMCPServer(
		"vaultmind",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s, nil
}

// registerTools registers all vaultmind tools with the MCP server.
func (s *Server) registerTools() {
	// vaultmind_search tool
	searchTool := mcp.NewTool("vaultmind_search",
		mcp.WithDescription("Semantic search over the vault. Finds the most relevant note chunks for a natural language query, with note paths, headings, and similarity scores."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language search query (e.g., 'notes about quarterly planning')"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
		mcp.WithBoolean("compact",
			mcp.Description("Return minimal output without content (default: false)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(searchTool, s.handleSearch)

	// vaultmind_read_note tool
	readNoteTool := mcp.NewTool("vaultmind_read_note",
		mcp.WithDescription("Read a note from the vault by its vault-relative path. Returns parsed frontmatter metadata and the note body."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Vault-relative note path (e.g., 'projects/atlas.md')"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(readNoteTool, s.handleReadNote)

	// vaultmind_list_duplicates tool
	listDuplicatesTool := mcp.NewTool("vaultmind_list_duplicates",
		mcp.WithDescription("Find near-duplicate notes in the vault. Returns pairs of similar notes classified as duplicates or merge candidates."),
		mcp.WithString("band",
			mcp.Description("Filter by band: 'duplicate' or 'merge_candidate' (default: all)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(listDuplicatesTool, s.handleListDuplicates)

	// vaultmind_suggest_links tool
	suggestLinksTool := mcp.NewTool("vaultmind_suggest_links",
		mcp.WithDescription("Suggest notes worth linking from a given note. Candidates are related but not yet linked, scored by similarity, shared graph entities, and graph distance."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Vault-relative note path (e.g., 'projects/atlas.md')"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(suggestLinksTool, s.handleSuggestLinks)

	// vaultmind_graph_neighbors tool
	graphNeighborsTool := mcp.NewTool("vaultmind_graph_neighbors",
		mcp.WithDescription("Look up an entity in the knowledge graph and return its relationships, sorted by confidence."),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("Entity name (e.g., 'Jane Doe', 'Project Atlas')"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(graphNeighborsTool, s.handleGraphNeighbors)

	// vaultmind_vault_status tool
	vaultStatusTool := mcp.NewTool("vaultmind_vault_status",
		mcp.WithDescription("Check the health of the vault index. Returns statistics about indexed notes, chunks, and the knowledge graph."),
		mcp.WithBoolean("verbose", mcp.Description("Include additional debug details when available (optional).")),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(vaultStatusTool, s.handleVaultStatus)
}

// handleSearch handles the vaultmind_search tool call.
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}

	compact := request.GetBool("compact", false)
	format := request.GetString("format", "json")

	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	cfg, err := config.Load(s.vaultRoot)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load configuration: %v", err)), nil
	}

	emb, err := embedder.NewFromConfig(cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to initialize embedder: %v", err)), nil
	}
	defer emb.Close()

	st, err := s.createStore(ctx, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to initialize store: %v", err)), nil
	}
	defer st.Close()

	queryVector, err := emb.Embed(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to embed query: %v", err)), nil
	}

	results, err := st.Search(ctx, queryVector, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	var data any
	if compact {
		searchResultsCompact := make([]SearchResultCompact, len(results))
		for i, r := range results {
			searchResultsCompact[i] = SearchResultCompact{
				NotePath: r.Chunk.NotePath,
				Heading:  r.Chunk.Heading,
				Score:    r.Score,
			}
		}
		data = searchResultsCompact
	} else {
		searchResults := make([]SearchResult, len(results))
		for i, r := range results {
			searchResults[i] = SearchResult{
				NotePath: r.Chunk.NotePath,
				Heading:  r.Chunk.Heading,
				Score:    r.Score,
				Content:  r.Chunk.Content,
			}
		}
		data = searchResults
	}

	output, err := encodeOutput(data, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}

	return mcp.NewToolResultText(output), nil
}

// handleReadNote handles the vaultmind_read_note tool call.
func (s *Server) handleReadNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relPath, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path parameter is required"), nil
	}

	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	cfg, err := config.Load(s.vaultRoot)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load configuration: %v", err)), nil
	}

	parser := vault.NewParser(s.vaultRoot, cfg.Vault.ExcludedFolders)
	absPath := filepath.Join(s.vaultRoot, filepath.FromSlash(relPath))
	if !parser.ShouldProcess(absPath) {
		return mcp.NewToolResultError(fmt.Sprintf("not a vault note: %s", relPath)), nil
	}

	note, err := parser.ParseFile(absPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read note: %v", err)), nil
	}

	data := NoteContent{
		Path:  note.Path,
		Title: note.Title,
		Type:  note.Type,
		Tags:  note.Tags,
		Links: note.Links,
		Body:  note.Body,
	}

	output, err := encodeOutput(data, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode note: %v", err)), nil
	}

	return mcp.NewToolResultText(output), nil
}

// handleListDuplicates handles the vaultmind_list_duplicates tool call.
func (s *Server) handleListDuplicates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bandFilter := request.GetString("band", "")
	format := request.GetString("format", "json")

	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}
	if bandFilter != "" && bandFilter != string(dedup.BandDuplicate) && bandFilter != string(dedup.BandMergeCandidate) {
		return mcp.NewToolResultError("band must be 'duplicate' or 'merge_candidate'"), nil
	}

	cfg, err := config.Load(s.vaultRoot)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load configuration: %v", err)), nil
	}

	st, err := s.createStore(ctx, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to initialize store: %v", err)), nil
	}
	defer st.Close()

	detector := dedup.NewDetector(dedup.Config{
		MinContentLength:   cfg.Dedup.MinContentLength,
		DuplicateThreshold: cfg.Dedup.DuplicateThreshold,
		MergeThreshold:     cfg.Dedup.MergeThreshold,
	}, st)

	matches, err := detector.FindDuplicates(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("duplicate scan failed: %v", err)), nil
	}

	if bandFilter != "" {
		filtered := make([]dedup.Match, 0, len(matches))
		for _, m := range matches {
			if string(m.Band) == bandFilter {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}

	output, err := encodeOutput(matches, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}

	return mcp.NewToolResultText(output), nil
}

// handleSuggestLinks handles the vaultmind_suggest_links tool call.
func (s *Server) handleSuggestLinks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relPath, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path parameter is required"), nil
	}

	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	cfg, err := config.Load(s.vaultRoot)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load configuration: %v", err)), nil
	}

	parser := vault.NewParser(s.vaultRoot, cfg.Vault.ExcludedFolders)
	absPath := filepath.Join(s.vaultRoot, filepath.FromSlash(relPath))
	if !parser.ShouldProcess(absPath) {
		return mcp.NewToolResultError(fmt.Sprintf("not a vault note: %s", relPath)), nil
	}

	note, err := parser.ParseFile(absPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read note: %v", err)), nil
	}

	st, err := s.createStore(ctx, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to initialize store: %v", err)), nil
	}
	defer st.Close()

	kg := graph.NewKnowledgeGraph(config.GetGraphPath(s.vaultRoot))
	if err := kg.Load(); err != nil {
		kg = nil // suggestions degrade to similarity + entity overlap
	}

	suggester := suggest.NewSuggester(suggest.Config{
		MinContentLength: cfg.Suggest.MinContentLength,
		MinSimilarity:    cfg.Suggest.MinSimilarity,
		MaxSimilarity:    cfg.Suggest.MaxSimilarity,
		EntityWeight:     cfg.Suggest.EntityWeight,
		GraphWeight:      cfg.Suggest.GraphWeight,
		MaxResults:       cfg.Suggest.MaxResults,
	}, st, kg)

	suggestions, err := suggester.SuggestLinks(ctx, note)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("suggestion scan failed: %v", err)), nil
	}

	output, err := encodeOutput(suggestions, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}

	return mcp.NewToolResultText(output), nil
}

// handleGraphNeighbors handles the vaultmind_graph_neighbors tool call.
func (s *Server) handleGraphNeighbors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityName, err := request.RequireString("entity")
	if err != nil {
		return mcp.NewToolResultError("entity parameter is required"), nil
	}

	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	g := graph.NewKnowledgeGraph(config.GetGraphPath(s.vaultRoot))
	if err := g.Load(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load knowledge graph: %v", err)), nil
	}

	entity := g.GetEntity(entityName)
	if entity == nil {
		return mcp.NewToolResultError(fmt.Sprintf("entity not found: %s", entityName)), nil
	}

	data := EntityNeighbors{
		Entity:    entity,
		Neighbors: g.Neighbors(entityName),
	}

	output, err := encodeOutput(data, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}

	return mcp.NewToolResultText(output), nil
}

// handleVaultStatus handles the vaultmind_vault_status tool call.
func (s *Server) handleVaultStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	cfg, err := config.Load(s.vaultRoot)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load configuration: %v", err)), nil
	}

	st, err := s.createStore(ctx, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to initialize store: %v", err)), nil
	}
	defer st.Close()

	stats, err := st.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	status := VaultStatus{
		TotalNotes:  stats.TotalNotes,
		TotalChunks: stats.TotalChunks,
		IndexSize:   formatBytes(stats.IndexSize),
		LastUpdated: stats.LastUpdated.Format("2006-01-02 15:04:05"),
		Provider:    cfg.Embedder.Provider,
		Model:       cfg.Embedder.Model,
	}

	g := graph.NewKnowledgeGraph(config.GetGraphPath(s.vaultRoot))
	if err := g.Load(); err == nil {
		graphStats := g.Stats()
		status.Entities = graphStats.Entities
		status.Relationships = graphStats.Relationships
	}

	output, err := encodeOutput(status, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode status: %v", err)), nil
	}

	return mcp.NewToolResultText(output), nil
}

// createStore creates a vector store based on configuration.
func (s *Server) createStore(ctx context.Context, cfg *config.Config) (store.VectorStore, error) {
	switch cfg.Store.Backend {
	case "gob":
		indexPath := config.GetIndexPath(s.vaultRoot)
		gobStore := store.NewGOBStore(indexPath)
		if err := gobStore.Load(ctx); err != nil {
			return nil, fmt.Errorf("failed to load index: %w", err)
		}
		return gobStore, nil
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.Postgres.DSN, s.vaultRoot, cfg.Embedder.GetDimensions())
	case "qdrant":
		return store.NewQdrantStore(ctx, cfg.Store.Qdrant.Endpoint, cfg.Store.Qdrant.Port, cfg.Store.Qdrant.UseTLS, cfg.Store.Qdrant.Collection, cfg.Store.Qdrant.APIKey, cfg.Embedder.GetDimensions())
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Store.Backend)
	}
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// formatBytes formats bytes to human readable string.
func formatBytes(b int64) string {
	if b == 0 {
		return "N/A"
	}
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
