package observability

import (
	"fmt"
	"time"
)

// Metrics holds usage and fetch health figures derived from the event log.
type Metrics struct {
	FavoritesAdded       int        `json:"favorites_added"`
	FavoritesRemoved     int        `json:"favorites_removed"`
	CommentsAdded        int        `json:"comments_added"`
	CommentsDeleted      int        `json:"comments_deleted"`
	CharactersDeleted    int        `json:"characters_deleted"`
	CharactersRestored   int        `json:"characters_restored"`
	PagesLoaded          int        `json:"pages_loaded"`
	CharactersFetched    int        `json:"characters_fetched"`
	InitialFetchFailures int        `json:"initial_fetch_failures"`
	LoadMoreFailures     int        `json:"load_more_failures"`
	PersistFailures      int        `json:"persist_failures"`
	AvgFetchMillis       float64    `json:"avg_fetch_ms"`
	EventCount           int        `json:"event_count"`
	OldestEvent          *time.Time `json:"oldest_event,omitempty"`
	NewestEvent          *time.Time `json:"newest_event,omitempty"`
}

// FetchFailureRate is the share of fetch attempts that failed, or 0 when
// nothing was fetched.
func (m *Metrics) FetchFailureRate() float64 {
	failed := m.InitialFetchFailures + m.LoadMoreFailures
	total := m.PagesLoaded + failed
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event at or after since.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{EventCount: len(events)}
	var fetchMillis float64
	var timed int

	for _, event := range events {
		t := event.Time
		if m.OldestEvent == nil || t.Before(*m.OldestEvent) {
			m.OldestEvent = &t
		}
		if m.NewestEvent == nil || t.After(*m.NewestEvent) {
			m.NewestEvent = &t
		}

		switch event.Type {
		case "favorite.toggled":
			if starred, _ := event.Data["starred"].(bool); starred {
				m.FavoritesAdded++
			} else {
				m.FavoritesRemoved++
			}
		case "comment.added":
			m.CommentsAdded++
		case "comment.deleted":
			m.CommentsDeleted++
		case "character.deleted":
			m.CharactersDeleted++
		case "character.restored":
			m.CharactersRestored++
		case "fetch.page_loaded":
			m.PagesLoaded++
			if n, ok := number(event.Data["results"]); ok {
				m.CharactersFetched += int(n)
			}
			if ms, ok := number(event.Data["elapsed_ms"]); ok {
				fetchMillis += ms
				timed++
			}
		case "fetch.initial_failed":
			m.InitialFetchFailures++
		case "fetch.load_more_failed":
			m.LoadMoreFailures++
		case "storage.persist_failed":
			m.PersistFailures++
		}
	}

	if timed > 0 {
		m.AvgFetchMillis = fetchMillis / float64(timed)
	}
	return m, nil
}

// number reads a numeric event field. Values decoded from JSONL arrive as
// float64; values from an in-memory log keep their Go type.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
