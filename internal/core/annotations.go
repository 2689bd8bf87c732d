package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/rmb/pkg/models"
)

// AnnotationPersister is the durable storage the annotation store reads once
// at startup and writes after every annotation mutation. Defining it here
// avoids importing the storage package.
type AnnotationPersister interface {
	LoadAnnotations() (*models.PersistedAnnotations, error)
	SaveAnnotations(data models.PersistedAnnotations) error
}

// IDGenerator produces globally unique comment IDs.
type IDGenerator func() string

// AnnotationReader is the read-only view of annotations that list assembly
// and detail lookups need.
type AnnotationReader interface {
	IsFavorite(characterID string) bool
	IsDeleted(characterID string) bool
}

// AnnotationStore owns all user-generated data about characters (favorites,
// comments, soft deletes) plus the session-only UI state. It is the single
// source of truth: consumers mutate it only through these operations.
type AnnotationStore interface {
	AnnotationReader

	ToggleFavorite(characterID string)
	Favorites() []string

	AddComment(characterID, text string) (models.Comment, bool)
	DeleteComment(characterID, commentID string) bool
	GetComments(characterID string) []models.Comment

	SoftDeleteCharacter(characterID string)
	RestoreCharacter(characterID string)
	DeletedCharacters() []string

	SetSelectedCharacterID(id string)
	SelectedCharacterID() string

	Filters() models.FilterState
	SetSearch(search string)
	SetCharacterFilter(f models.CharacterFilter)
	SetSpeciesFilter(f models.SpeciesFilter)
	SetStatusFilter(f models.StatusFilter)
	SetGenderFilter(f models.GenderFilter)
	SetSortOrder(o models.SortOrder)
	ResetFilters()

	IsFilterPanelOpen() bool
	ToggleFilterPanel()
	SetFilterPanelOpen(open bool)

	Load() error
	Snapshot() models.PersistedAnnotations
	LastPersistError() error
}

// AnnotationStoreOpts configures optional collaborators of the store.
type AnnotationStoreOpts struct {
	Persister   AnnotationPersister
	IDGen       IDGenerator
	Now         func() time.Time
	EventLogger EventLogger
	// DefaultFilters is the initial filter state and what ResetFilters
	// restores, so a configured ui.default_sort of desc survives a reset.
	// Nil means models.DefaultFilters(), which sorts asc.
	DefaultFilters *models.FilterState
}

type annotationStore struct {
	mu sync.Mutex

	persisted models.PersistedAnnotations
	favSet    map[string]struct{}
	delSet    map[string]struct{}
	session   models.SessionState

	defaults   models.FilterState
	persister  AnnotationPersister
	idGen      IDGenerator
	now        func() time.Time
	events     EventLogger
	persistErr error
}

// NewAnnotationStore creates a store holding default state. Call Load to
// read previously persisted annotations.
func NewAnnotationStore(opts AnnotationStoreOpts) AnnotationStore {
	defaults := models.DefaultFilters()
	if opts.DefaultFilters != nil {
		defaults = *opts.DefaultFilters
	}
	s := &annotationStore{
		defaults:  defaults,
		persister: opts.Persister,
		idGen:     opts.IDGen,
		now:       opts.Now,
		events:    opts.EventLogger,
	}
	if s.idGen == nil {
		s.idGen = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.session.Filters = defaults
	s.replacePersisted(models.NewPersistedAnnotations())
	return s
}

// replacePersisted installs data as the persisted slice.
func (s *annotationStore) replacePersisted(data models.PersistedAnnotations) {
	s.persisted = normalisePersisted(data)
	s.favSet = make(map[string]struct{}, len(s.persisted.Favorites))
	for _, id := range s.persisted.Favorites {
		s.favSet[id] = struct{}{}
	}
	s.delSet = make(map[string]struct{}, len(s.persisted.DeletedCharacters))
	for _, id := range s.persisted.DeletedCharacters {
		s.delSet[id] = struct{}{}
	}
}

// normalisePersisted drops duplicates and blanks so the set and uniqueness
// invariants hold even for hand-edited files.
func normalisePersisted(data models.PersistedAnnotations) models.PersistedAnnotations {
	favs := uniqueIDs(data.Favorites)
	dels := uniqueIDs(data.DeletedCharacters)

	seenComment := make(map[string]struct{})
	comments := make(map[string][]models.Comment, len(data.Comments))
	for charID, list := range data.Comments {
		kept := make([]models.Comment, 0, len(list))
		for _, c := range list {
			if _, dup := seenComment[c.ID]; dup || c.ID == "" || strings.TrimSpace(c.Text) == "" {
				continue
			}
			seenComment[c.ID] = struct{}{}
			c.CharacterID = charID
			kept = append(kept, c)
		}
		if len(kept) > 0 {
			comments[charID] = kept
		}
	}

	return models.PersistedAnnotations{
		Version:           models.AnnotationsVersion,
		Favorites:         favs,
		Comments:          comments,
		DeletedCharacters: dels,
	}
}

func uniqueIDs(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, id := range list {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Load replaces the persisted slice with what the persister holds. The read
// and the replace happen under s.mu, so a reload triggered by a file event
// can never install a version older than a save this store already made.
// When the stored data matches memory (our own write echoed back), or the
// last save failed and memory holds changes the persister never saw,
// nothing is replaced.
func (s *annotationStore) Load() error {
	if s.persister == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return nil
	}

	data, err := s.persister.LoadAnnotations()
	if err != nil {
		return fmt.Errorf("loading annotations: %w", err)
	}
	if data == nil {
		empty := models.NewPersistedAnnotations()
		data = &empty
	}
	next := normalisePersisted(*data)
	if samePersisted(next, s.persisted) {
		return nil
	}
	s.replacePersisted(next)
	return nil
}

func samePersisted(a, b models.PersistedAnnotations) bool {
	if a.Version != b.Version || !sameStrings(a.Favorites, b.Favorites) ||
		!sameStrings(a.DeletedCharacters, b.DeletedCharacters) || len(a.Comments) != len(b.Comments) {
		return false
	}
	for id, ac := range a.Comments {
		bc, ok := b.Comments[id]
		if !ok || len(ac) != len(bc) {
			return false
		}
		for i := range ac {
			if ac[i] != bc[i] {
				return false
			}
		}
	}
	return true
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// persistLocked writes the persisted slice. Callers hold s.mu. Failures are
// recorded but never undo the in-memory change.
func (s *annotationStore) persistLocked() {
	if s.persister == nil {
		return
	}
	err := s.persister.SaveAnnotations(s.snapshotLocked())
	s.persistErr = err
	if err != nil {
		logEvent(s.events, EventPersistFailed, map[string]any{"error": err.Error()})
	}
}

func (s *annotationStore) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistErr
}

func (s *annotationStore) Snapshot() models.PersistedAnnotations {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *annotationStore) snapshotLocked() models.PersistedAnnotations {
	out := models.PersistedAnnotations{
		Version:           s.persisted.Version,
		Favorites:         append([]string{}, s.persisted.Favorites...),
		Comments:          make(map[string][]models.Comment, len(s.persisted.Comments)),
		DeletedCharacters: append([]string{}, s.persisted.DeletedCharacters...),
	}
	for id, list := range s.persisted.Comments {
		out.Comments[id] = append([]models.Comment(nil), list...)
	}
	return out
}

// --- Favorites ---

func (s *annotationStore) ToggleFavorite(characterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	starred := false
	if _, ok := s.favSet[characterID]; ok {
		delete(s.favSet, characterID)
		s.persisted.Favorites = removeString(s.persisted.Favorites, characterID)
	} else {
		s.favSet[characterID] = struct{}{}
		s.persisted.Favorites = append(s.persisted.Favorites, characterID)
		starred = true
	}
	s.persistLocked()
	logEvent(s.events, EventFavoriteToggled, map[string]any{"character_id": characterID, "starred": starred})
}

func (s *annotationStore) IsFavorite(characterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.favSet[characterID]
	return ok
}

func (s *annotationStore) Favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.persisted.Favorites...)
}

// --- Comments ---

// AddComment appends a comment to the character's sequence. Whitespace-only
// text is rejected and reported with ok == false.
func (s *annotationStore) AddComment(characterID, text string) (models.Comment, bool) {
	if strings.TrimSpace(text) == "" {
		return models.Comment{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := models.Comment{
		ID:          s.idGen(),
		CharacterID: characterID,
		Text:        text,
		CreatedAt:   s.now().UTC().Format(time.RFC3339Nano),
	}
	s.persisted.Comments[characterID] = append(s.persisted.Comments[characterID], c)
	s.persistLocked()
	logEvent(s.events, EventCommentAdded, map[string]any{"character_id": characterID, "comment_id": c.ID})
	return c, true
}

// DeleteComment removes commentID from characterID's sequence only.
func (s *annotationStore) DeleteComment(characterID, commentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.persisted.Comments[characterID]
	for i, c := range list {
		if c.ID != commentID {
			continue
		}
		kept := make([]models.Comment, 0, len(list)-1)
		kept = append(kept, list[:i]...)
		kept = append(kept, list[i+1:]...)
		if len(kept) == 0 {
			delete(s.persisted.Comments, characterID)
		} else {
			s.persisted.Comments[characterID] = kept
		}
		s.persistLocked()
		logEvent(s.events, EventCommentDeleted, map[string]any{"character_id": characterID, "comment_id": commentID})
		return true
	}
	return false
}

func (s *annotationStore) GetComments(characterID string) []models.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Comment{}, s.persisted.Comments[characterID]...)
}

// --- Soft delete ---

func (s *annotationStore) SoftDeleteCharacter(characterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delSet[characterID]; ok {
		return
	}
	s.delSet[characterID] = struct{}{}
	s.persisted.DeletedCharacters = append(s.persisted.DeletedCharacters, characterID)
	s.persistLocked()
	logEvent(s.events, EventCharacterDeleted, map[string]any{"character_id": characterID})
}

func (s *annotationStore) RestoreCharacter(characterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delSet[characterID]; !ok {
		return
	}
	delete(s.delSet, characterID)
	s.persisted.DeletedCharacters = removeString(s.persisted.DeletedCharacters, characterID)
	s.persistLocked()
	logEvent(s.events, EventCharacterRestored, map[string]any{"character_id": characterID})
}

func (s *annotationStore) IsDeleted(characterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.delSet[characterID]
	return ok
}

func (s *annotationStore) DeletedCharacters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.persisted.DeletedCharacters...)
}

// --- Session state ---

// SetSelectedCharacterID selects a character; an empty id clears the
// selection.
func (s *annotationStore) SetSelectedCharacterID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.SelectedCharacterID = id
}

func (s *annotationStore) SelectedCharacterID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.SelectedCharacterID
}

func (s *annotationStore) Filters() models.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Filters
}

func (s *annotationStore) SetSearch(search string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Filters.Search = search
}

func (s *annotationStore) SetCharacterFilter(f models.CharacterFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Filters.CharacterFilter = f
}

func (s *annotationStore) SetSpeciesFilter(f models.SpeciesFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Filters.SpeciesFilter = f
}

func (s *annotationStore) SetStatusFilter(f models.StatusFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Filters.StatusFilter = f
}

func (s *annotationStore) SetGenderFilter(f models.GenderFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Filters.GenderFilter = f
}

func (s *annotationStore) SetSortOrder(o models.SortOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Filters.SortOrder = o
}

// ResetFilters restores every filter field to its default. The filter panel
// state is left alone.
func (s *annotationStore) ResetFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Filters = s.defaults
}

func (s *annotationStore) IsFilterPanelOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.FilterPanelOpen
}

func (s *annotationStore) ToggleFilterPanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.FilterPanelOpen = !s.session.FilterPanelOpen
}

func (s *annotationStore) SetFilterPanelOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.FilterPanelOpen = open
}

func removeString(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
