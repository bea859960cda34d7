package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alpkeskin/gotoon"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/store"
)

func sampleResults() []store.SearchResult {
	return []store.SearchResult{
		{
			Chunk: store.Chunk{
				NotePath: "people/jane-doe.md",
				Heading:  "Background",
				Content:  "Jane leads the Atlas project.",
			},
			Score: 0.95,
		},
	}
}

func TestSearchResultJSONShape(t *testing.T) {
	results := sampleResults()

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")

	jsonResults := make([]SearchResultJSON, len(results))
	for i, r := range results {
		jsonResults[i] = SearchResultJSON{
			NotePath: r.Chunk.NotePath,
			Heading:  r.Chunk.Heading,
			Score:    r.Score,
			Content:  r.Chunk.Content,
		}
	}
	if err := encoder.Encode(jsonResults); err != nil {
		t.Fatalf("failed to encode JSON: %v", err)
	}

	var decoded []SearchResultJSON
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}

	if len(decoded) != 1 {
		t.Fatalf("expected 1 result, got %d", len(decoded))
	}
	if decoded[0].Content == "" {
		t.Error("expected content field to be present in JSON output")
	}
	if decoded[0].NotePath != "people/jane-doe.md" {
		t.Errorf("expected note_path 'people/jane-doe.md', got '%s'", decoded[0].NotePath)
	}
	if decoded[0].Heading != "Background" {
		t.Errorf("expected heading 'Background', got '%s'", decoded[0].Heading)
	}
}

func TestSearchResultCompactJSONOmitsContent(t *testing.T) {
	results := sampleResults()

	compact := make([]SearchResultCompactJSON, len(results))
	for i, r := range results {
		compact[i] = SearchResultCompactJSON{
			NotePath: r.Chunk.NotePath,
			Heading:  r.Chunk.Heading,
			Score:    r.Score,
		}
	}

	data, err := json.Marshal(compact)
	if err != nil {
		t.Fatalf("failed to encode JSON: %v", err)
	}
	if strings.Contains(string(data), "content") {
		t.Errorf("compact output should not contain content field: %s", data)
	}
}

func TestSearchResultTOONEncoding(t *testing.T) {
	results := sampleResults()

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
		t.Fatalf("failed to encode TOON: %v", err)
	}
	if !strings.Contains(output, "people/jane-doe.md") {
		t.Errorf("TOON output missing note path: %s", output)
	}
}

func TestApplyProviderDefaults(t *testing.T) {
	tests := []struct {
		provider     string
		wantModel    string
		wantEndpoint string
		wantDims     bool
	}{
		{"lmstudio", "text-embedding-nomic-embed-text-v1.5", "http://127.0.0.1:1234", true},
		{"openai", "text-embedding-3-small", "https://api.openai.com/v1", false},
		{"synthetic", "hf:nomic-ai/nomic-embed-text-v1.5", "https://api.synthetic.new/openai/v1", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.DefaultConfig()
			applyProviderDefaults(cfg, tt.provider)

			if cfg.Embedder.Provider != tt.provider {
				t.Errorf("provider = %s, want %s", cfg.Embedder.Provider, tt.provider)
			}
			if cfg.Embedder.Model != tt.wantModel {
				t.Errorf("model = %s, want %s", cfg.Embedder.Model, tt.wantModel)
			}
			if cfg.Embedder.Endpoint != tt.wantEndpoint {
				t.Errorf("endpoint = %s, want %s", cfg.Embedder.Endpoint, tt.wantEndpoint)
			}
			if (cfg.Embedder.Dimensions != nil) != tt.wantDims {
				t.Errorf("dimensions set = %v, want %v", cfg.Embedder.Dimensions != nil, tt.wantDims)
			}
		})
	}
}

func TestFormatByteSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
	}

	for _, tt := range tests {
		if got := formatByteSize(tt.size); got != tt.want {
			t.Errorf("formatByteSize(%d) = %s, want %s", tt.size, got, tt.want)
		}
	}
}
