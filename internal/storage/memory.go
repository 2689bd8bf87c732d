package storage

import (
	"sync"

	"github.com/valter-silva-au/rmb/pkg/models"
)

type memoryAnnotationRepository struct {
	mu   sync.Mutex
	data *models.PersistedAnnotations
}

// NewMemoryAnnotationRepository creates a repository that keeps annotations
// for the life of the process only.
func NewMemoryAnnotationRepository() AnnotationRepository {
	return &memoryAnnotationRepository{}
}

func (r *memoryAnnotationRepository) LoadAnnotations() (*models.PersistedAnnotations, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return nil, nil
	}
	cp := clone(*r.data)
	return &cp, nil
}

func (r *memoryAnnotationRepository) SaveAnnotations(data models.PersistedAnnotations) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := clone(data)
	normalize(&cp)
	r.data = &cp
	return nil
}

func (r *memoryAnnotationRepository) Location() string { return "" }

func (r *memoryAnnotationRepository) Close() error { return nil }

func clone(data models.PersistedAnnotations) models.PersistedAnnotations {
	out := models.PersistedAnnotations{
		Version:           data.Version,
		Favorites:         append([]string{}, data.Favorites...),
		Comments:          make(map[string][]models.Comment, len(data.Comments)),
		DeletedCharacters: append([]string{}, data.DeletedCharacters...),
	}
	for id, list := range data.Comments {
		out.Comments[id] = append([]models.Comment(nil), list...)
	}
	return out
}
