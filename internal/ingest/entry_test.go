package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		dest := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(dest, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestEntryRootIndexWins(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"banner.html": "<html></html>",
		"index.html":  "<html></html>",
		"sub/a.html":  "<html></html>",
		"sub/b.js":    "void 0;",
		"notes.txt":   "readme",
	})

	entry, err := findEntryDocument(root)
	if err != nil {
		t.Fatalf("find entry: %v", err)
	}
	if entry != "index.html" {
		t.Fatalf("expected index.html, got %s", entry)
	}
}

func TestEntryRootHTMLBeatsSubdirectories(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"banner.htm":     "<html></html>",
		"sub/index.html": "<html></html>",
	})

	entry, err := findEntryDocument(root)
	if err != nil {
		t.Fatalf("find entry: %v", err)
	}
	if entry != "banner.htm" {
		t.Fatalf("expected banner.htm, got %s", entry)
	}
}

func TestEntryFallsBackOneLevelDown(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"assets/logo.png":    "png",
		"creative/main.html": "<html></html>",
	})

	entry, err := findEntryDocument(root)
	if err != nil {
		t.Fatalf("find entry: %v", err)
	}
	if entry != "creative/main.html" {
		t.Fatalf("expected creative/main.html, got %s", entry)
	}
}

func TestEntryIgnoresDeeplyNestedHTML(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/b/deep.html": "<html></html>",
	})

	if _, err := findEntryDocument(root); KindOf(err) != KindNoEntryDocument {
		t.Fatalf("expected no_entry_document for two-level nesting, got %v", err)
	}
}

func TestEntryMissing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"script.js": "void 0;"})

	if _, err := findEntryDocument(root); KindOf(err) != KindNoEntryDocument {
		t.Fatalf("expected no_entry_document, got %v", err)
	}
}
