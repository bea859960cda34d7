package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Entity is a node in the knowledge graph: a person, project, concept or
// note referenced from the vault.
type Entity struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Confidence  float64  `json:"confidence"`
	SourceNotes []string `json:"source_notes"`
}

// Relationship is a typed edge between two entities.
type Relationship struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Type        string   `json:"type"`
	Confidence  float64  `json:"confidence"`
	SourceNotes []string `json:"source_notes"`
}

// GraphStats summarizes graph size.
type GraphStats struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

// KnowledgeGraph holds entities and relationships extracted from notes,
// persisted as JSON under the vault's state directory.
type KnowledgeGraph struct {
	mu            sync.RWMutex
	path          string
	entities      map[string]*Entity
	relationships map[string]*Relationship // keyed source|type|target
}

func NewKnowledgeGraph(path string) *KnowledgeGraph {
	return &KnowledgeGraph{
		path:          path,
		entities:      make(map[string]*Entity),
		relationships: make(map[string]*Relationship),
	}
}

var idCleanPattern = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeID turns an entity name into its canonical graph ID, so that
// "Jane Doe" and "jane doe" merge into one node.
func NormalizeID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = idCleanPattern.ReplaceAllString(id, "-")
	return strings.Trim(id, "-")
}

func relationshipKey(source, relType, target string) string {
	return source + "|" + relType + "|" + target
}

// AddEntity merges an entity observation into the graph. An existing
// entity keeps its highest confidence and accumulates source notes.
// Reports whether a new entity node was created.
func (g *KnowledgeGraph) AddEntity(name, entityType string, confidence float64, sourceNote string) bool {
	id := NormalizeID(name)
	if id == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.entities[id]
	if !ok {
		g.entities[id] = &Entity{
			ID:          id,
			Name:        strings.TrimSpace(name),
			Type:        entityType,
			Confidence:  confidence,
			SourceNotes: []string{sourceNote},
		}
		return true
	}

	if confidence > existing.Confidence {
		existing.Confidence = confidence
		existing.Type = entityType
	}
	existing.SourceNotes = appendUnique(existing.SourceNotes, sourceNote)
	return false
}

// AddRelationship merges a relationship observation into the graph.
// Reports whether a new edge was created.
func (g *KnowledgeGraph) AddRelationship(source, target, relType string, confidence float64, sourceNote string) bool {
	srcID, tgtID := NormalizeID(source), NormalizeID(target)
	if srcID == "" || tgtID == "" || srcID == tgtID {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := relationshipKey(srcID, relType, tgtID)
	existing, ok := g.relationships[key]
	if !ok {
		g.relationships[key] = &Relationship{
			Source:      srcID,
			Target:      tgtID,
			Type:        relType,
			Confidence:  confidence,
			SourceNotes: []string{sourceNote},
		}
		return true
	}

	if confidence > existing.Confidence {
		existing.Confidence = confidence
	}
	existing.SourceNotes = appendUnique(existing.SourceNotes, sourceNote)
	return false
}

// RemoveNoteSources drops a note from every entity and relationship it
// supported, deleting graph elements that lose their last source. Called
// before re-extracting a note so stale observations do not linger.
func (g *KnowledgeGraph) RemoveNoteSources(notePath string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, entity := range g.entities {
		entity.SourceNotes = removeString(entity.SourceNotes, notePath)
		if len(entity.SourceNotes) == 0 {
			delete(g.entities, id)
		}
	}
	for key, rel := range g.relationships {
		rel.SourceNotes = removeString(rel.SourceNotes, notePath)
		if len(rel.SourceNotes) == 0 {
			delete(g.relationships, key)
		}
	}
}

// GetEntity returns the entity with the given name or ID, or nil.
func (g *KnowledgeGraph) GetEntity(name string) *Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if e, ok := g.entities[NormalizeID(name)]; ok {
		cp := *e
		return &cp
	}
	return nil
}

// Neighbors returns every relationship touching the named entity.
func (g *KnowledgeGraph) Neighbors(name string) []Relationship {
	id := NormalizeID(name)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Relationship
	for _, rel := range g.relationships {
		if rel.Source == id || rel.Target == id {
			out = append(out, *rel)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// EntitiesForNote returns the names of entities the graph attributes to
// the given note, sorted alphabetically.
func (g *KnowledgeGraph) EntitiesForNote(notePath string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, e := range g.entities {
		for _, src := range e.SourceNotes {
			if src == notePath {
				out = append(out, e.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// FindPath returns the shortest chain of entity IDs connecting two
// entities, treating relationships as undirected. Returns nil when either
// endpoint is unknown or no path exists. A path includes both endpoints,
// so its hop count is len(path)-1.
func (g *KnowledgeGraph) FindPath(from, to string) []string {
	fromID, toID := NormalizeID(from), NormalizeID(to)

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.entities[fromID]; !ok {
		return nil
	}
	if _, ok := g.entities[toID]; !ok {
		return nil
	}
	if fromID == toID {
		return []string{fromID}
	}

	adjacent := make(map[string][]string)
	for _, rel := range g.relationships {
		adjacent[rel.Source] = append(adjacent[rel.Source], rel.Target)
		adjacent[rel.Target] = append(adjacent[rel.Target], rel.Source)
	}

	prev := map[string]string{fromID: ""}
	queue := []string{fromID}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, next := range adjacent[node] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = node
			if next == toID {
				var path []string
				for at := toID; at != ""; at = prev[at] {
					path = append([]string{at}, path...)
				}
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// ListEntities returns all entities sorted by name.
func (g *KnowledgeGraph) ListEntities() []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func (g *KnowledgeGraph) Stats() GraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return GraphStats{
		Entities:      len(g.entities),
		Relationships: len(g.relationships),
	}
}

type graphFile struct {
	Entities      []*Entity       `json:"entities"`
	Relationships []*Relationship `json:"relationships"`
}

// Load reads the graph from its JSON file. A missing file leaves the
// graph empty.
func (g *KnowledgeGraph) Load() error {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read graph file: %w", err)
	}

	var file graphFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse graph file: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.entities = make(map[string]*Entity, len(file.Entities))
	for _, e := range file.Entities {
		g.entities[e.ID] = e
	}
	g.relationships = make(map[string]*Relationship, len(file.Relationships))
	for _, rel := range file.Relationships {
		g.relationships[relationshipKey(rel.Source, rel.Type, rel.Target)] = rel
	}
	return nil
}

// Save writes the graph to its JSON file via a temp-file rename.
func (g *KnowledgeGraph) Save() error {
	g.mu.RLock()
	file := graphFile{
		Entities:      make([]*Entity, 0, len(g.entities)),
		Relationships: make([]*Relationship, 0, len(g.relationships)),
	}
	for _, e := range g.entities {
		file.Entities = append(file.Entities, e)
	}
	for _, rel := range g.relationships {
		file.Relationships = append(file.Relationships, rel)
	}
	g.mu.RUnlock()

	sort.Slice(file.Entities, func(i, j int) bool { return file.Entities[i].ID < file.Entities[j].ID })
	sort.Slice(file.Relationships, func(i, j int) bool {
		ki := relationshipKey(file.Relationships[i].Source, file.Relationships[i].Type, file.Relationships[i].Target)
		kj := relationshipKey(file.Relationships[j].Source, file.Relationships[j].Type, file.Relationships[j].Target)
		return ki < kj
	})

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}

	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write graph file: %w", err)
	}
	if err := os.Rename(tmp, g.path); err != nil {
		return fmt.Errorf("failed to replace graph file: %w", err)
	}
	return nil
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func removeString(list []string, item string) []string {
	out := list[:0]
	for _, existing := range list {
		if existing != item {
			out = append(out, existing)
		}
	}
	return out
}
