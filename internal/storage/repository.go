// Package storage persists the annotation slice (favorites, comments and
// soft deletes) under a single namespaced key. Three backends are available:
// a YAML file, a SQLite database and an in-process map.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/valter-silva-au/rmb/pkg/models"
)

// AnnotationRepository is durable storage for the persisted annotation
// slice. LoadAnnotations returns (nil, nil) when nothing was stored yet.
type AnnotationRepository interface {
	LoadAnnotations() (*models.PersistedAnnotations, error)
	SaveAnnotations(data models.PersistedAnnotations) error
	// Location describes where data lives, for display and file watching.
	// It is empty for the memory backend.
	Location() string
	Close() error
}

// Open returns the repository selected by cfg.Backend, rooted at basePath.
func Open(ctx context.Context, basePath string, cfg models.StorageConfig) (AnnotationRepository, error) {
	switch cfg.Backend {
	case models.BackendFile, "":
		return NewFileAnnotationRepository(basePath, cfg.Key), nil
	case models.BackendSQLite:
		return NewSQLiteAnnotationRepository(ctx, filepath.Join(basePath, ".rmb.db"), cfg.Key)
	case models.BackendMemory:
		return NewMemoryAnnotationRepository(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// normalize fills nil collections so callers never see a partially
// populated document.
func normalize(data *models.PersistedAnnotations) {
	if data.Version == 0 {
		data.Version = models.AnnotationsVersion
	}
	if data.Favorites == nil {
		data.Favorites = []string{}
	}
	if data.Comments == nil {
		data.Comments = make(map[string][]models.Comment)
	}
	if data.DeletedCharacters == nil {
		data.DeletedCharacters = []string{}
	}
}
