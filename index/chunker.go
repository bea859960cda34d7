package index

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/vaultmind/vaultmind/vault"
)

const defaultMaxTokens = 400

// charsPerToken is the rough estimate used to convert the configured token
// budget into a character budget.
const charsPerToken = 4

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// ChunkInfo is a chunk of note text before embedding.
type ChunkInfo struct {
	ID      string
	Heading string // nearest enclosing heading, empty for the preamble
	Seq     int
	Content string
}

// Chunker splits a note body into heading-scoped chunks. Sections that
// exceed the size budget are split again on paragraph boundaries.
type Chunker struct {
	maxChars int
}

func NewChunker(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Chunker{maxChars: maxTokens * charsPerToken}
}

type section struct {
	heading string
	content string
}

// Chunk splits a parsed note into embedding-ready chunks.
func (c *Chunker) Chunk(note *vault.Note) []ChunkInfo {
	var chunks []ChunkInfo
	seq := 0

	for _, sec := range splitSections(note.Body) {
		for _, piece := range c.splitOversized(sec.content) {
			chunks = append(chunks, ChunkInfo{
				ID:      uuid.NewString(),
				Heading: sec.heading,
				Seq:     seq,
				Content: piece,
			})
			seq++
		}
	}

	return chunks
}

// splitSections groups the body's lines under their nearest heading. Text
// before the first heading becomes a heading-less preamble section.
func splitSections(body string) []section {
	var sections []section
	var current section
	var buf []string

	flush := func() {
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		if content != "" {
			current.content = content
			sections = append(sections, current)
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(body, "\n") {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = section{heading: strings.TrimSpace(m[2])}
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return sections
}

// splitOversized breaks a section into pieces within the character budget,
// preferring paragraph boundaries. A single paragraph larger than the
// budget is hard-split.
func (c *Chunker) splitOversized(content string) []string {
	if len(content) <= c.maxChars {
		return []string{content}
	}

	var pieces []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			pieces = append(pieces, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > c.maxChars {
			flush()
			for start := 0; start < len(para); start += c.maxChars {
				end := start + c.maxChars
				if end > len(para) {
					end = len(para)
				}
				pieces = append(pieces, para[start:end])
			}
			continue
		}

		if buf.Len() > 0 && buf.Len()+len(para)+2 > c.maxChars {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	flush()

	return pieces
}
