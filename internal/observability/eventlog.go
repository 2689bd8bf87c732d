package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event is one line of the event log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Type    string         `json:"type"` // e.g. "favorite.toggled", "fetch.page_loaded"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// NewEvent builds an event stamped with now, choosing the level and a
// human-readable message from the event type and its data.
func NewEvent(now time.Time, eventType string, data map[string]any) Event {
	return Event{
		Time:    now.UTC(),
		Level:   levelFor(eventType),
		Type:    eventType,
		Message: describe(eventType, data),
		Data:    data,
	}
}

func levelFor(eventType string) string {
	switch eventType {
	case "storage.persist_failed", "fetch.initial_failed":
		return LevelError
	case "fetch.load_more_failed":
		return LevelWarn
	default:
		return LevelInfo
	}
}

func describe(eventType string, data map[string]any) string {
	id, _ := data["character_id"].(string)
	switch eventType {
	case "favorite.toggled":
		if starred, _ := data["starred"].(bool); starred {
			return "character " + id + " starred"
		}
		return "character " + id + " unstarred"
	case "comment.added":
		return "comment added to character " + id
	case "comment.deleted":
		return "comment deleted from character " + id
	case "character.deleted":
		return "character " + id + " deleted"
	case "character.restored":
		return "character " + id + " restored"
	case "fetch.page_loaded":
		return fmt.Sprintf("page %v loaded", data["page"])
	case "fetch.initial_failed":
		return "error loading characters"
	case "fetch.load_more_failed":
		return fmt.Sprintf("error loading page %v", data["page"])
	case "storage.persist_failed":
		return "annotations not saved"
	default:
		return eventType
	}
}

// EventFilter selects events on Read. Zero fields match everything.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Type  string
	Level string
}

func (f EventFilter) matches(e Event) bool {
	switch {
	case f.Since != nil && e.Time.Before(*f.Since):
		return false
	case f.Until != nil && e.Time.After(*f.Until):
		return false
	case f.Type != "" && e.Type != f.Type:
		return false
	case f.Level != "" && e.Level != f.Level:
		return false
	}
	return true
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// maxLineSize bounds a single JSONL record. Longer lines are skipped.
const maxLineSize = 1 << 20

type jsonlEventLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewJSONLEventLog opens (creating if needed) an append-only JSON Lines log
// at path. The parent directory is created when missing.
func NewJSONLEventLog(path string) (EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the whole file. Malformed and oversized lines are skipped so a
// torn final write never hides earlier events.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Event
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := readLine(r)
		if len(line) > 0 {
			var e Event
			if json.Unmarshal(line, &e) == nil && filter.matches(e) {
				out = append(out, e)
			}
		}
		if err != nil {
			break
		}
	}
	return out, nil
}

// readLine returns the next line without its newline, or nil when the line
// exceeds maxLineSize. The error is non-nil at end of input.
func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	oversized := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		if !oversized {
			if len(buf)+len(chunk) > maxLineSize {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return buf, nil
		}
	}
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

type memoryEventLog struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryEventLog returns an EventLog that keeps events in memory. It
// backs the app when no event log path is configured.
func NewMemoryEventLog() EventLog {
	return &memoryEventLog{}
}

func (l *memoryEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *memoryEventLog) Read(filter EventFilter) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memoryEventLog) Close() error { return nil }
