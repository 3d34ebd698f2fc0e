package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(t.TempDir(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

const sizedDoc = `<!DOCTYPE html>
<html>
<head>
<meta name="ad.size" content="width=300,height=250">
</head>
<body></body>
</html>`

func TestIngestHappyPath(t *testing.T) {
	svc := newTestService(t)

	bundle := buildZip(t, map[string]string{
		"index.html":    sizedDoc,
		"assets/bg.png": "not-really-a-png",
	})

	result, err := svc.Ingest(context.Background(), bundle, "g1")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.EntryPath != "index.html" {
		t.Fatalf("expected entry index.html, got %s", result.EntryPath)
	}
	if result.Width != 300 || result.Height != 250 {
		t.Fatalf("expected 300x250, got %dx%d", result.Width, result.Height)
	}

	stored, err := os.ReadFile(filepath.Join(svc.Root, result.CreativeID, "index.html"))
	if err != nil {
		t.Fatalf("read stored entry: %v", err)
	}
	doc := string(stored)
	if !strings.Contains(doc, agentMarker) {
		t.Fatal("agent bootstrap not injected")
	}
	if !strings.Contains(doc, "bannerId="+result.CreativeID) {
		t.Fatal("injected tag missing bannerId")
	}
	if !strings.Contains(doc, "groupId=g1") {
		t.Fatal("injected tag missing groupId")
	}
	if idx := strings.Index(doc, agentMarker); idx > strings.Index(doc, "</head>") {
		t.Fatal("bootstrap must be injected before the closing head tag")
	}
}

func TestIngestArchivesRawBundle(t *testing.T) {
	svc := newTestService(t)
	archive := &recordingArchive{}
	svc.Archive = archive

	bundle := buildZip(t, map[string]string{"index.html": sizedDoc})
	result, err := svc.Ingest(context.Background(), bundle, "")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if archive.creativeID != result.CreativeID {
		t.Fatalf("archive keyed by %s, want %s", archive.creativeID, result.CreativeID)
	}
	if !bytes.Equal(archive.bundle, bundle) {
		t.Fatal("archive must hold the raw uploaded bytes")
	}
}

type recordingArchive struct {
	creativeID string
	bundle     []byte
}

func (a *recordingArchive) Put(ctx context.Context, creativeID string, bundle []byte) error {
	a.creativeID = creativeID
	a.bundle = append([]byte(nil), bundle...)
	return nil
}

func TestIngestRejectsNonZip(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Ingest(context.Background(), []byte("plain text"), "")
	if KindOf(err) != KindMalformed {
		t.Fatalf("expected malformed_bundle, got %v", err)
	}
}

func TestIngestRejectsBundleWithoutEntryDocument(t *testing.T) {
	svc := newTestService(t)
	bundle := buildZip(t, map[string]string{"script.js": "void 0;"})
	_, err := svc.Ingest(context.Background(), bundle, "")
	if KindOf(err) != KindNoEntryDocument {
		t.Fatalf("expected no_entry_document, got %v", err)
	}
}

func TestIngestRejectsUndetectableDimensions(t *testing.T) {
	svc := newTestService(t)
	bundle := buildZip(t, map[string]string{
		"index.html": `<html><head></head><body><canvas width="300" height="250"></canvas></body></html>`,
	})
	_, err := svc.Ingest(context.Background(), bundle, "")
	if KindOf(err) != KindDimensionsUndetectable {
		t.Fatalf("expected dimensions_undetectable, got %v", err)
	}
}

func TestIngestRejectsZipSlip(t *testing.T) {
	svc := newTestService(t)
	bundle := buildZip(t, map[string]string{
		"../evil.html": sizedDoc,
	})
	_, err := svc.Ingest(context.Background(), bundle, "")
	if KindOf(err) != KindPathTraversal {
		t.Fatalf("expected path_traversal, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(svc.Root, "..", "evil.html")); !os.IsNotExist(statErr) {
		t.Fatal("zip-slip entry must not be written outside the scope")
	}
}

func TestIngestCleansUpOnFailure(t *testing.T) {
	svc := newTestService(t)
	bundle := buildZip(t, map[string]string{"script.js": "void 0;"})
	if _, err := svc.Ingest(context.Background(), bundle, ""); err == nil {
		t.Fatal("expected failure")
	}
	entries, err := os.ReadDir(svc.Root)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed ingest must leave no storage behind, found %d entries", len(entries))
	}
}

func TestResolvePathRejectsEscapingCreativeID(t *testing.T) {
	svc := newTestService(t)

	// A dot-dot id would make the scope itself the parent of the storage root.
	secret := filepath.Join(filepath.Dir(svc.Root), "secret.txt")
	if err := os.WriteFile(secret, []byte("outside"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	for _, id := range []string{"..", ".", "", "a/b", `a\b`, "../other"} {
		if _, err := svc.ResolvePath(id, "secret.txt"); KindOf(err) != KindPathTraversal {
			t.Fatalf("creative id %q must be rejected, got %v", id, err)
		}
	}
}

func TestRemoveRejectsEscapingCreativeID(t *testing.T) {
	svc := newTestService(t)

	if err := svc.Remove(".."); KindOf(err) != KindPathTraversal {
		t.Fatalf("remove with dot-dot id must be rejected, got %v", err)
	}
	if _, err := os.Stat(svc.Root); err != nil {
		t.Fatalf("storage root must survive a rejected remove: %v", err)
	}
}

func TestResolvePathRejectsEscape(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.ResolvePath("some-id", "../../etc/passwd"); KindOf(err) != KindPathTraversal {
		t.Fatalf("expected path_traversal, got %v", err)
	}
	if _, err := svc.ResolvePath("some-id", "/etc/passwd"); KindOf(err) != KindPathTraversal {
		t.Fatalf("expected path_traversal for absolute path, got %v", err)
	}
}

func TestResolvePathStaysInScope(t *testing.T) {
	svc := newTestService(t)
	resolved, err := svc.ResolvePath("abc", "assets/img.png")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := filepath.Join(svc.Root, "abc", "assets", "img.png")
	if resolved != want {
		t.Fatalf("resolved %s, want %s", resolved, want)
	}
}

func TestRemoveDropsScopedStorage(t *testing.T) {
	svc := newTestService(t)
	bundle := buildZip(t, map[string]string{"index.html": sizedDoc})
	result, err := svc.Ingest(context.Background(), bundle, "")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := svc.Remove(result.CreativeID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(svc.Root, result.CreativeID)); !os.IsNotExist(err) {
		t.Fatal("scoped storage must be gone after remove")
	}
}
