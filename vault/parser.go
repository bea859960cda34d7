package vault

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"gopkg.in/yaml.v3"
)

var (
	wikilinkPattern = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]+)?\]\]`)
	inlineTagPattern = regexp.MustCompile(`(?m)(?:^|\s)#([a-zA-Z][a-zA-Z0-9_/-]*)`)
)

// Parser reads markdown files from a vault and produces Notes.
type Parser struct {
	root     string
	excluded *ignore.GitIgnore
}

func NewParser(root string, excludedFolders []string) *Parser {
	return &Parser{
		root:     root,
		excluded: ignore.CompileIgnoreLines(excludedFolders...),
	}
}

// Root returns the absolute vault root.
func (p *Parser) Root() string {
	return p.root
}

// RelPath converts an absolute path inside the vault to the slash-separated
// vault-relative form used as a note key everywhere else.
func (p *Parser) RelPath(absPath string) string {
	rel, err := filepath.Rel(p.root, absPath)
	if err != nil {
		return filepath.ToSlash(absPath)
	}
	return filepath.ToSlash(rel)
}

// ShouldProcess reports whether a path is a markdown note inside the vault
// and outside every excluded folder.
func (p *Parser) ShouldProcess(absPath string) bool {
	if !strings.EqualFold(filepath.Ext(absPath), ".md") {
		return false
	}
	rel, err := filepath.Rel(p.root, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return !p.excluded.MatchesPath(filepath.ToSlash(rel))
}

// ParseFile parses a single markdown file into a Note.
func (p *Parser) ParseFile(absPath string) (*Note, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read note: %w", err)
	}

	meta, body := splitFrontmatter(string(data))

	note := &Note{
		Path:        p.RelPath(absPath),
		Body:        body,
		Frontmatter: meta,
		Type:        metaString(meta, "type"),
		Status:      metaString(meta, "status"),
		Entities:    metaStringList(meta, "entities"),
	}

	note.Title = metaString(meta, "title")
	if note.Title == "" {
		note.Title = TitleFromFilename(filepath.Base(absPath))
	}
	if note.Status == "" {
		note.Status = "active"
	}
	if note.Type == "" {
		note.Type = inferType(note.Path)
	}

	// Merge frontmatter tags with inline #tags, deduplicated.
	seen := make(map[string]bool)
	for _, tag := range metaStringList(meta, "tags") {
		if !seen[tag] {
			seen[tag] = true
			note.Tags = append(note.Tags, tag)
		}
	}
	for _, m := range inlineTagPattern.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			note.Tags = append(note.Tags, m[1])
		}
	}

	for _, m := range wikilinkPattern.FindAllStringSubmatch(body, -1) {
		note.Links = append(note.Links, strings.TrimSpace(m[1]))
	}

	note.Created = metaTime(meta, "created")
	note.Modified = metaTime(meta, "modified")
	if note.Modified.IsZero() {
		if info, err := os.Stat(absPath); err == nil {
			note.Modified = info.ModTime()
		} else {
			note.Modified = time.Now()
		}
	}

	return note, nil
}

// IterNotes parses every markdown note in the vault, skipping excluded
// folders. Parse failures are logged and skipped.
func (p *Parser) IterNotes() ([]*Note, error) {
	var notes []*Note
	err := filepath.Walk(p.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Printf("Warning: error accessing %s: %v", path, err)
			return nil
		}
		if info.IsDir() {
			rel, relErr := filepath.Rel(p.root, path)
			if relErr == nil && rel != "." && p.excluded.MatchesPath(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !p.ShouldProcess(path) {
			return nil
		}
		note, parseErr := p.ParseFile(path)
		if parseErr != nil {
			log.Printf("Warning: failed to parse %s: %v", path, parseErr)
			return nil
		}
		notes = append(notes, note)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk vault: %w", err)
	}
	return notes, nil
}

// splitFrontmatter separates a leading YAML frontmatter block (--- fences)
// from the note body. Malformed frontmatter is treated as body text.
func splitFrontmatter(content string) (map[string]any, string) {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return nil, content
	}

	rest := content[strings.Index(content, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, content
	}

	block := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\r")
	body = strings.TrimPrefix(body, "\n")

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, content
	}
	return meta, body
}

func inferType(relPath string) string {
	parts := strings.SplitN(relPath, "/", 2)
	if len(parts) < 2 {
		return "note"
	}
	folder := strings.ToLower(parts[0])
	switch {
	case strings.Contains(folder, "daily"):
		return "daily"
	case strings.Contains(folder, "inbox"):
		return "inbox"
	case strings.Contains(folder, "project"):
		return "project"
	case strings.Contains(folder, "reference"):
		return "reference"
	default:
		return "note"
	}
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaStringList(meta map[string]any, key string) []string {
	if meta == nil {
		return nil
	}
	switch v := meta[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func metaTime(meta map[string]any, key string) time.Time {
	if meta == nil {
		return time.Time{}
	}
	switch v := meta[key].(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
