package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/rmb/pkg/models"
)

type fileAnnotationRepository struct {
	basePath string
	key      string
}

// NewFileAnnotationRepository creates a repository backed by <key>.yaml in
// basePath. Writes go through a temporary file and a rename, serialized by
// an advisory lock so two processes never interleave.
func NewFileAnnotationRepository(basePath, key string) AnnotationRepository {
	return &fileAnnotationRepository{basePath: basePath, key: key}
}

func (r *fileAnnotationRepository) filePath() string {
	return filepath.Join(r.basePath, r.key+".yaml")
}

func (r *fileAnnotationRepository) lockPath() string {
	return filepath.Join(r.basePath, "."+r.key+".lock")
}

func (r *fileAnnotationRepository) Location() string {
	return r.filePath()
}

func (r *fileAnnotationRepository) LoadAnnotations() (*models.PersistedAnnotations, error) {
	data, err := os.ReadFile(r.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading annotations: %w", err)
	}

	var pa models.PersistedAnnotations
	if err := yaml.Unmarshal(data, &pa); err != nil {
		return nil, fmt.Errorf("loading annotations: parsing YAML: %w", err)
	}
	if pa.Version > models.AnnotationsVersion {
		return nil, fmt.Errorf("loading annotations: unsupported version %d", pa.Version)
	}
	normalize(&pa)
	return &pa, nil
}

func (r *fileAnnotationRepository) SaveAnnotations(data models.PersistedAnnotations) error {
	normalize(&data)
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("saving annotations: marshaling YAML: %w", err)
	}

	if err := os.MkdirAll(r.basePath, 0o750); err != nil {
		return fmt.Errorf("saving annotations: creating directory: %w", err)
	}

	unlock, err := lockFile(r.lockPath())
	if err != nil {
		return fmt.Errorf("saving annotations: %w", err)
	}
	defer func() { _ = unlock() }()

	tmp, err := os.CreateTemp(r.basePath, "."+r.key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("saving annotations: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("saving annotations: writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("saving annotations: writing file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("saving annotations: %w", err)
	}
	if err := os.Rename(tmpName, r.filePath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("saving annotations: replacing file: %w", err)
	}
	return nil
}

func (r *fileAnnotationRepository) Close() error {
	return nil
}
