package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vaultmind/vaultmind/pipeline"
	"github.com/vaultmind/vaultmind/vault"
)

const (
	defaultExtractTimeout = 30 * time.Second
	maxPromptChars        = 6000
)

const extractSystemPrompt = `You are a knowledge extraction assistant. Given a note from a personal knowledge vault, extract entities (people, projects, concepts, places, organizations) and relationships between them. Respond with JSON only, no prose:
{"entities":[{"name":"...","type":"person|project|concept|place|organization","confidence":0.0}],"relationships":[{"source":"...","target":"...","type":"...","confidence":0.0}]}`

// ExtractorConfig configures the LLM entity extractor.
type ExtractorConfig struct {
	Model         string
	Endpoint      string // OpenAI-compatible; empty disables LLM calls
	APIKey        string
	Timeout       time.Duration
	MinConfidence float64
}

// Extractor pulls entities and relationships out of notes and merges them
// into a knowledge graph. It calls an OpenAI-compatible chat endpoint and
// falls back to structural extraction (wikilinks and frontmatter) when the
// LLM is unavailable.
type Extractor struct {
	cfg    ExtractorConfig
	client *http.Client
	graph  *KnowledgeGraph
}

func NewExtractor(cfg ExtractorConfig, g *KnowledgeGraph) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultExtractTimeout
	}
	return &Extractor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		graph:  g,
	}
}

type extractedEntity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type extractedRelationship struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type extraction struct {
	Entities      []extractedEntity       `json:"entities"`
	Relationships []extractedRelationship `json:"relationships"`
}

// ExtractAndUpdate re-extracts the given notes into the graph and persists
// it. Each note's previous observations are removed first so edits do not
// leave stale entities behind.
func (e *Extractor) ExtractAndUpdate(ctx context.Context, notes []*vault.Note) (pipeline.BatchStats, error) {
	stats := pipeline.BatchStats{}

	for _, note := range notes {
		result := e.extract(ctx, note)

		e.graph.RemoveNoteSources(note.Path)

		for _, ent := range result.Entities {
			if ent.Confidence < e.cfg.MinConfidence {
				continue
			}
			if e.graph.AddEntity(ent.Name, ent.Type, ent.Confidence, note.Path) {
				stats.EntitiesAdded++
			}
		}
		for _, rel := range result.Relationships {
			if rel.Confidence < e.cfg.MinConfidence {
				continue
			}
			if e.graph.AddRelationship(rel.Source, rel.Target, rel.Type, rel.Confidence, note.Path) {
				stats.RelationshipsAdded++
			}
		}
	}

	if err := e.graph.Save(); err != nil {
		return stats, fmt.Errorf("failed to persist graph: %w", err)
	}
	return stats, nil
}

// extract runs the LLM when configured and falls back to structural
// extraction on any failure.
func (e *Extractor) extract(ctx context.Context, note *vault.Note) extraction {
	if e.cfg.Endpoint != "" {
		if result, err := e.callLLM(ctx, note); err == nil {
			return result
		}
	}
	return extractStructural(note)
}

// extractStructural derives entities from what the note states explicitly:
// wikilink targets and frontmatter entity lists. These carry full
// confidence because the author wrote them down.
func extractStructural(note *vault.Note) extraction {
	var result extraction

	title := strings.TrimSpace(note.Title)
	if title != "" {
		result.Entities = append(result.Entities, extractedEntity{
			Name: title, Type: "note", Confidence: 1.0,
		})
	}

	for _, link := range note.Links {
		result.Entities = append(result.Entities, extractedEntity{
			Name: link, Type: "note", Confidence: 1.0,
		})
		if title != "" {
			result.Relationships = append(result.Relationships, extractedRelationship{
				Source: title, Target: link, Type: "links_to", Confidence: 1.0,
			})
		}
	}

	for _, name := range note.Entities {
		result.Entities = append(result.Entities, extractedEntity{
			Name: name, Type: "concept", Confidence: 1.0,
		})
		if title != "" {
			result.Relationships = append(result.Relationships, extractedRelationship{
				Source: title, Target: name, Type: "mentions", Confidence: 1.0,
			})
		}
	}

	return result
}

func (e *Extractor) callLLM(ctx context.Context, note *vault.Note) (extraction, error) {
	body := note.Body
	if len(body) > maxPromptChars {
		body = body[:maxPromptChars]
	}
	prompt := fmt.Sprintf("Note title: %s\n\n%s", note.Title, body)

	reqBody := map[string]any{
		"model": e.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": extractSystemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return extraction{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(e.cfg.Endpoint, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return extraction{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return extraction{}, fmt.Errorf("LLM request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return extraction{}, fmt.Errorf("LLM returned status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return extraction{}, fmt.Errorf("read response: %w", err)
	}

	var chat struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return extraction{}, fmt.Errorf("parse response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return extraction{}, fmt.Errorf("no choices in response")
	}

	content := stripCodeFence(chat.Choices[0].Message.Content)

	var result extraction
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return extraction{}, fmt.Errorf("parse extraction JSON: %w", err)
	}
	return result, nil
}

// stripCodeFence removes a surrounding markdown code fence that chat
// models often wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
