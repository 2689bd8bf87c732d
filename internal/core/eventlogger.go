package core

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Event types emitted by the core.
const (
	EventFavoriteToggled    = "favorite.toggled"
	EventCommentAdded       = "comment.added"
	EventCommentDeleted     = "comment.deleted"
	EventCharacterDeleted   = "character.deleted"
	EventCharacterRestored  = "character.restored"
	EventPageLoaded         = "fetch.page_loaded"
	EventInitialFetchFailed = "fetch.initial_failed"
	EventLoadMoreFailed     = "fetch.load_more_failed"
	EventPersistFailed      = "storage.persist_failed"
)

// logEvent writes to l when it is non-nil. Logging failures are never
// surfaced to callers.
func logEvent(l EventLogger, eventType string, data map[string]any) {
	if l == nil {
		return
	}
	_ = l.LogEvent(eventType, data)
}
