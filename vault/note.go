package vault

import (
	"strings"
	"time"
)

// Note is a parsed markdown note. Paths are vault-relative and
// slash-separated regardless of platform.
type Note struct {
	Path        string
	Title       string
	Body        string // content without the frontmatter block
	Frontmatter map[string]any
	Type        string
	Tags        []string
	Links       []string // wikilink targets, display aliases stripped
	Entities    []string // entities declared in frontmatter
	Status      string
	Created     time.Time
	Modified    time.Time
}

// TitleFromFilename derives a human title from a note filename.
func TitleFromFilename(name string) string {
	base := strings.TrimSuffix(name, ".md")
	base = strings.ReplaceAll(base, "-", " ")
	base = strings.ReplaceAll(base, "_", " ")
	return strings.TrimSpace(base)
}
