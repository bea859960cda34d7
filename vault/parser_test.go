package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func writeNote(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFileWithFrontmatter(t *testing.T) {
	root := t.TempDir()
	path := writeNote(t, root, "projects/alpha.md", `---
title: Project Alpha
tags:
  - work
entities:
  - Alpha
status: active
---
# Alpha

Kickoff notes with [[Beta Project|Beta]] and a #planning tag.
`)

	p := NewParser(root, nil)
	note, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	if note.Title != "Project Alpha" {
		t.Errorf("expected frontmatter title, got %q", note.Title)
	}
	if note.Path != "projects/alpha.md" {
		t.Errorf("expected vault-relative path, got %q", note.Path)
	}
	if len(note.Entities) != 1 || note.Entities[0] != "Alpha" {
		t.Errorf("expected frontmatter entities, got %v", note.Entities)
	}
	if len(note.Links) != 1 || note.Links[0] != "Beta Project" {
		t.Errorf("expected wikilink target without alias, got %v", note.Links)
	}

	hasWork, hasPlanning := false, false
	for _, tag := range note.Tags {
		switch tag {
		case "work":
			hasWork = true
		case "planning":
			hasPlanning = true
		}
	}
	if !hasWork || !hasPlanning {
		t.Errorf("expected merged frontmatter and inline tags, got %v", note.Tags)
	}
}

func TestParseFileWithoutFrontmatter(t *testing.T) {
	root := t.TempDir()
	path := writeNote(t, root, "quick-idea.md", "Just a thought.\n")

	p := NewParser(root, nil)
	note, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	if note.Title != "quick idea" {
		t.Errorf("expected title from filename, got %q", note.Title)
	}
	if note.Body != "Just a thought.\n" {
		t.Errorf("body should be the full content, got %q", note.Body)
	}
	if note.Status != "active" {
		t.Errorf("expected default status, got %q", note.Status)
	}
}

func TestParseFileMalformedFrontmatter(t *testing.T) {
	root := t.TempDir()
	content := "---\n: not yaml [\n---\nBody text.\n"
	path := writeNote(t, root, "broken.md", content)

	p := NewParser(root, nil)
	note, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("malformed frontmatter should not fail the parse: %v", err)
	}
	if note.Body != content {
		t.Error("malformed frontmatter should be kept as body text")
	}
}

func TestShouldProcess(t *testing.T) {
	root := t.TempDir()
	p := NewParser(root, []string{".obsidian", "06-templates"})

	cases := []struct {
		rel  string
		want bool
	}{
		{"note.md", true},
		{"projects/alpha.md", true},
		{"note.txt", false},
		{".obsidian/workspace.md", false},
		{"06-templates/daily.md", false},
	}
	for _, tc := range cases {
		got := p.ShouldProcess(filepath.Join(root, filepath.FromSlash(tc.rel)))
		if got != tc.want {
			t.Errorf("ShouldProcess(%s) = %v, want %v", tc.rel, got, tc.want)
		}
	}

	if p.ShouldProcess(filepath.Join(t.TempDir(), "outside.md")) {
		t.Error("paths outside the vault must not be processed")
	}
}

func TestIterNotesSkipsExcludedAndBroken(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "Alpha\n")
	writeNote(t, root, "sub/b.md", "Beta\n")
	writeNote(t, root, ".obsidian/conf.md", "ignored\n")

	p := NewParser(root, []string{".obsidian"})
	notes, err := p.IterNotes()
	if err != nil {
		t.Fatalf("IterNotes failed: %v", err)
	}

	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
}

func TestInferType(t *testing.T) {
	if got := inferType("01-daily/2026-08-25.md"); got != "daily" {
		t.Errorf("expected daily, got %s", got)
	}
	if got := inferType("00-inbox/capture.md"); got != "inbox" {
		t.Errorf("expected inbox, got %s", got)
	}
	if got := inferType("top-level.md"); got != "note" {
		t.Errorf("expected note, got %s", got)
	}
}
