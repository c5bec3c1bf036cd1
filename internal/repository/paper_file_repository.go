package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stemsi/exstem-session/internal/model"
	"gopkg.in/yaml.v3"
)

// PaperFileRepository serves papers from a directory of YAML or JSON files, one paper
// per file. Files are read once at construction.
type PaperFileRepository struct {
	papers map[string]*model.Paper
}

// NewPaperFileRepository loads and validates every paper in dir.
func NewPaperFileRepository(dir string) (*PaperFileRepository, error) {
	paths, err := ListPaperFiles(dir)
	if err != nil {
		return nil, err
	}

	papers := make(map[string]*model.Paper, len(paths))
	for _, path := range paths {
		p, err := ReadPaperFile(path)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := papers[p.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate paper id %q", path, p.ID)
		}
		papers[p.ID] = p
	}
	return &PaperFileRepository{papers: papers}, nil
}

// GetByID returns the paper with the given id.
func (r *PaperFileRepository) GetByID(_ context.Context, id string) (*model.Paper, error) {
	p, ok := r.papers[id]
	if !ok {
		return nil, ErrPaperNotFound
	}
	return p, nil
}

// ListPublishedIDs returns every loaded paper id, sorted.
func (r *PaperFileRepository) ListPublishedIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(r.papers))
	for id := range r.papers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListPaperFiles returns the paper files directly inside dir, sorted by name.
func ListPaperFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read paper dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadPaperFile decodes a single YAML or JSON paper file. YAML is normalized through
// JSON so question payloads keep their structure.
func ReadPaperFile(path string) (*model.Paper, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	data := raw
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var doc interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("normalize %s: %w", path, err)
		}
	}

	var p model.Paper
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &p, nil
}
