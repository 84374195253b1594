package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maltedev/listing-builder/internal/render"
	"github.com/maltedev/listing-builder/internal/storage"
)

// RenderFile reads the document at path back from disk and writes its HTML
// page alongside it.
func RenderFile(store *storage.ArtifactStore, path string) (string, error) {
	doc, err := storage.ReadDocument(path)
	if err != nil {
		return "", err
	}

	page, err := render.Render(doc)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", path, err)
	}

	return store.WriteHTML(path, []byte(page))
}

// RenderReport counts the outcome of a directory render.
type RenderReport struct {
	Rendered int
	Failed   int
	Failures map[string]error
}

// RenderAll renders every JSON document in the store. One bad document does
// not stop the others.
func RenderAll(store *storage.ArtifactStore, logger *slog.Logger) (RenderReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "render")

	report := RenderReport{Failures: make(map[string]error)}

	artifacts, err := store.List()
	if err != nil {
		return report, fmt.Errorf("list %s: %w", store.Dir(), err)
	}
	if len(artifacts) == 0 {
		logger.Warn("no documents to render", "dir", store.Dir())
		return report, nil
	}

	for _, a := range artifacts {
		out, err := RenderFile(store, a.Path)
		if err != nil {
			logger.Error("failed to render document", "path", a.Path, "error", err)
			report.Failed++
			report.Failures[a.Path] = err
			continue
		}
		logger.Info("rendered listing", "path", out)
		report.Rendered++
	}

	logger.Info("render finished", "rendered", report.Rendered, "failed", report.Failed)
	return report, nil
}

// IsDocument reports whether path looks like a listing document that should
// be rendered, ignoring temporary files left by atomic writes.
func IsDocument(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return filepath.Ext(path) == ".json"
}
