package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/maltedev/listing-builder/internal/listing"
)

var (
	ErrArtifactWrite = errors.New("failed to write artifact")
	ErrNotFound      = errors.New("artifact not found")
)

const (
	artifactPrefix = "product_"
	htmlSuffix     = "-generated.html"
)

// ArtifactStore keeps one numbered JSON document per product in a directory,
// with its rendered page alongside.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrArtifactWrite, dir, err)
	}
	return &ArtifactStore{dir: dir}, nil
}

func (s *ArtifactStore) Dir() string {
	return s.dir
}

// DocumentPath is where the document for the index-th input URL lives.
func (s *ArtifactStore) DocumentPath(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d.json", artifactPrefix, index))
}

// HTMLPath maps a document path to its rendered sibling.
func HTMLPath(documentPath string) string {
	return strings.TrimSuffix(documentPath, filepath.Ext(documentPath)) + htmlSuffix
}

// WriteDocument stores doc as product_<index>.json, replacing any previous
// file atomically.
func (s *ArtifactStore) WriteDocument(index int, doc listing.Document) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrArtifactWrite, err)
	}

	path := s.DocumentPath(index)
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	return path, nil
}

// WriteHTML stores the rendered page next to documentPath.
func (s *ArtifactStore) WriteHTML(documentPath string, html []byte) (string, error) {
	path := HTMLPath(documentPath)
	if err := writeAtomic(path, html); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	return path, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ReadDocument loads a document from path.
func ReadDocument(path string) (listing.Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	var doc listing.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode %s: not a JSON object", path)
	}
	return doc, nil
}

// Artifact is one stored document.
type Artifact struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Path     string `json:"path"`
	HTMLPath string `json:"html_path,omitempty"`
}

// List returns every JSON document in the directory, numbered artifacts
// first in numeric order, then any other JSON file by name.
func (s *ArtifactStore) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var out []Artifact
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		a := Artifact{ID: strings.TrimSuffix(e.Name(), ".json"), Path: filepath.Join(s.dir, e.Name())}
		if n, err := strconv.Atoi(strings.TrimPrefix(a.ID, artifactPrefix)); err == nil && strings.HasPrefix(a.ID, artifactPrefix) {
			a.Index = n
		}
		if _, err := os.Stat(HTMLPath(a.Path)); err == nil {
			a.HTMLPath = HTMLPath(a.Path)
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Index > 0) != (b.Index > 0) {
			return a.Index > 0
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.ID < b.ID
	})
	return out, nil
}

// Get resolves an artifact by ID, e.g. "product_3".
func (s *ArtifactStore) Get(id string) (Artifact, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return Artifact{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	all, err := s.List()
	if err != nil {
		return Artifact{}, err
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return Artifact{}, fmt.Errorf("%w: %q", ErrNotFound, id)
}
