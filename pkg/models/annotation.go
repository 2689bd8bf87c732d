package models

// Comment is a free-text note attached to a character. Comments are created
// by the annotation store and never mutated afterwards.
type Comment struct {
	ID          string `json:"id" yaml:"id"`
	CharacterID string `json:"characterId" yaml:"character_id"`
	Text        string `json:"text" yaml:"text"`
	CreatedAt   string `json:"createdAt" yaml:"created_at"`
}

// PersistedAnnotations is the slice of annotation state that survives a
// restart. Nothing outside these fields is ever written to durable storage.
type PersistedAnnotations struct {
	Version           int                  `json:"version" yaml:"version"`
	Favorites         []string             `json:"favorites" yaml:"favorites"`
	Comments          map[string][]Comment `json:"comments" yaml:"comments"`
	DeletedCharacters []string             `json:"deletedCharacters" yaml:"deleted_characters"`
}

// AnnotationsVersion is the current on-disk schema version.
const AnnotationsVersion = 1

// NewPersistedAnnotations returns an empty persisted slice.
func NewPersistedAnnotations() PersistedAnnotations {
	return PersistedAnnotations{
		Version:           AnnotationsVersion,
		Favorites:         []string{},
		Comments:          make(map[string][]Comment),
		DeletedCharacters: []string{},
	}
}

// SessionState is process-local UI state. It is never persisted.
type SessionState struct {
	// SelectedCharacterID is empty when nothing is selected.
	SelectedCharacterID string
	Filters             FilterState
	FilterPanelOpen     bool
}
