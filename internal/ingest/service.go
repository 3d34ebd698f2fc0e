// Package ingest unpacks uploaded creative bundles, locates the entry
// document, determines presentation dimensions from untrusted metadata, and
// injects the control-agent bootstrap. Storage is partitioned per creative id;
// no resolved path may escape its scope.
package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const defaultMaxBundleBytes = 256 << 20

// UploadResult is produced once per successful ingestion and never mutated.
type UploadResult struct {
	CreativeID string
	EntryPath  string
	Width      int
	Height     int
}

// BundleArchive keeps the raw uploaded bytes as the artifact of record.
// Archiving is best-effort; a failed archive does not fail the ingestion.
type BundleArchive interface {
	Put(ctx context.Context, creativeID string, bundle []byte) error
}

type Service struct {
	Root           string
	AgentScriptURL string
	MaxBundleBytes int64
	Archive        BundleArchive
	Logger         *slog.Logger
}

func NewService(root string, logger *slog.Logger) *Service {
	return &Service{
		Root:           root,
		AgentScriptURL: "/agent.js",
		MaxBundleBytes: defaultMaxBundleBytes,
		Logger:         logger,
	}
}

// Ingest runs the full pipeline for one uploaded bundle. Steps are fully
// independent across uploads; concurrent ingests never share storage.
func (s *Service) Ingest(ctx context.Context, bundle []byte, groupID string) (UploadResult, error) {
	creativeID := uuid.NewString()
	scope := filepath.Join(s.Root, creativeID)

	if err := s.extract(bundle, scope); err != nil {
		_ = os.RemoveAll(scope)
		return UploadResult{}, err
	}

	entryRel, err := findEntryDocument(scope)
	if err != nil {
		_ = os.RemoveAll(scope)
		return UploadResult{}, err
	}

	entryAbs := filepath.Join(scope, filepath.FromSlash(entryRel))
	doc, err := os.ReadFile(entryAbs)
	if err != nil {
		_ = os.RemoveAll(scope)
		return UploadResult{}, errOf(KindMalformed, "entry document unreadable", err)
	}

	width, height, err := detectDimensions(doc)
	if err != nil {
		_ = os.RemoveAll(scope)
		return UploadResult{}, err
	}

	injected := injectAgent(doc, s.AgentScriptURL, creativeID, groupID)
	if err := os.WriteFile(entryAbs, injected, 0o644); err != nil {
		_ = os.RemoveAll(scope)
		return UploadResult{}, errOf(KindMalformed, "entry document unwritable", err)
	}

	if s.Archive != nil {
		if err := s.Archive.Put(ctx, creativeID, bundle); err != nil && s.Logger != nil {
			s.Logger.Warn("bundle archive failed", "creative_id", creativeID, "error", err)
		}
	}

	return UploadResult{
		CreativeID: creativeID,
		EntryPath:  entryRel,
		Width:      width,
		Height:     height,
	}, nil
}

func (s *Service) extract(bundle []byte, scope string) error {
	maxBytes := s.MaxBundleBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBundleBytes
	}
	if int64(len(bundle)) > maxBytes {
		return errOf(KindMalformed, "bundle exceeds size limit", nil)
	}

	reader, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	if err != nil {
		return errOf(KindMalformed, "not a zip archive", err)
	}

	if err := os.MkdirAll(scope, 0o755); err != nil {
		return errOf(KindMalformed, "storage unavailable", err)
	}

	var remaining int64 = maxBytes
	for _, f := range reader.File {
		dest, err := containedPath(scope, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return errOf(KindMalformed, "storage unavailable", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errOf(KindMalformed, "storage unavailable", err)
		}

		src, err := f.Open()
		if err != nil {
			return errOf(KindMalformed, fmt.Sprintf("corrupt entry %s", f.Name), err)
		}
		n, err := writeLimited(dest, src, remaining)
		_ = src.Close()
		if err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

func writeLimited(dest string, src io.Reader, limit int64) (int64, error) {
	if limit <= 0 {
		return 0, errOf(KindMalformed, "bundle exceeds size limit", nil)
	}
	out, err := os.Create(dest)
	if err != nil {
		return 0, errOf(KindMalformed, "storage unavailable", err)
	}
	defer func() { _ = out.Close() }()

	lr := &io.LimitedReader{R: src, N: limit + 1}
	n, err := io.Copy(out, lr)
	if err != nil {
		return n, errOf(KindMalformed, "corrupt archive data", err)
	}
	if lr.N <= 0 {
		return n, errOf(KindMalformed, "bundle exceeds size limit", nil)
	}
	return n, nil
}

// containedPath resolves an archive member name inside the creative's scope,
// rejecting anything that would escape it (zip-slip).
func containedPath(scope, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", errOf(KindPathTraversal, fmt.Sprintf("archive entry escapes scope: %s", name), nil)
	}
	dest := filepath.Join(scope, cleaned)
	if dest != scope && !strings.HasPrefix(dest, scope+string(filepath.Separator)) {
		return "", errOf(KindPathTraversal, fmt.Sprintf("archive entry escapes scope: %s", name), nil)
	}
	return dest, nil
}

// scopePath resolves a creative id to its storage scope. The id must be a
// single path element; anything else could place the scope itself outside the
// root.
func (s *Service) scopePath(creativeID string) (string, error) {
	id := strings.TrimSpace(creativeID)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", errOf(KindPathTraversal, fmt.Sprintf("invalid creative id: %q", creativeID), nil)
	}
	return filepath.Join(s.Root, id), nil
}

// ResolvePath maps (creativeID, relative path) onto the creative's scoped
// storage for serving, with the same containment guarantee as extraction.
func (s *Service) ResolvePath(creativeID, rel string) (string, error) {
	scope, err := s.scopePath(creativeID)
	if err != nil {
		return "", err
	}
	return containedPath(scope, rel)
}

// Remove drops the creative's scoped storage. Retention policy lives with the
// caller; this is the mechanism only.
func (s *Service) Remove(creativeID string) error {
	scope, err := s.scopePath(creativeID)
	if err != nil {
		return err
	}
	return os.RemoveAll(scope)
}
