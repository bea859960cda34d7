package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.md")
	if err := os.WriteFile(path, []byte("# Hello\n"), 0644); err != nil {
		t.Fatal(err)
	}

	first, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	second, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}

	if first != second {
		t.Errorf("fingerprints differ for identical content: %s vs %s", first, second)
	}
	if len(first) != 16 {
		t.Errorf("expected 16 hex chars, got %d", len(first))
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.md")
	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}
	v1, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("v2"), 0644); err != nil {
		t.Fatal(err)
	}
	v2, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}

	if v1 == v2 {
		t.Error("fingerprint did not change with content")
	}
}

func TestFingerprintMissingFile(t *testing.T) {
	_, err := Fingerprint(filepath.Join(t.TempDir(), "missing.md"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}
