package observability

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func writeEvents(t *testing.T, log EventLog, base time.Time, events ...Event) {
	t.Helper()
	for i, e := range events {
		if e.Time.IsZero() {
			e.Time = base.Add(time.Duration(i) * time.Minute)
		}
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}
}

func ev(eventType string, data map[string]any) Event {
	return Event{Type: eventType, Level: levelFor(eventType), Data: data}
}

func TestMetricsCalculator_AggregatesJSONL(t *testing.T) {
	log, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	writeEvents(t, log, base,
		ev("favorite.toggled", map[string]any{"character_id": "1", "starred": true}),
		ev("favorite.toggled", map[string]any{"character_id": "2", "starred": true}),
		ev("favorite.toggled", map[string]any{"character_id": "1", "starred": false}),
		ev("comment.added", map[string]any{"character_id": "1"}),
		ev("comment.deleted", map[string]any{"character_id": "1"}),
		ev("character.deleted", map[string]any{"character_id": "3"}),
		ev("character.restored", map[string]any{"character_id": "3"}),
		ev("fetch.page_loaded", map[string]any{"page": 1, "results": 20, "elapsed_ms": int64(100)}),
		ev("fetch.page_loaded", map[string]any{"page": 2, "results": 6, "elapsed_ms": int64(300)}),
		ev("fetch.initial_failed", map[string]any{"page": 1}),
		ev("fetch.load_more_failed", map[string]any{"page": 3}),
		ev("storage.persist_failed", nil),
	)

	m, err := NewMetricsCalculator(log).Calculate(base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	checks := []struct {
		name      string
		got, want int
	}{
		{"FavoritesAdded", m.FavoritesAdded, 2},
		{"FavoritesRemoved", m.FavoritesRemoved, 1},
		{"CommentsAdded", m.CommentsAdded, 1},
		{"CommentsDeleted", m.CommentsDeleted, 1},
		{"CharactersDeleted", m.CharactersDeleted, 1},
		{"CharactersRestored", m.CharactersRestored, 1},
		{"PagesLoaded", m.PagesLoaded, 2},
		{"CharactersFetched", m.CharactersFetched, 26},
		{"InitialFetchFailures", m.InitialFetchFailures, 1},
		{"LoadMoreFailures", m.LoadMoreFailures, 1},
		{"PersistFailures", m.PersistFailures, 1},
		{"EventCount", m.EventCount, 12},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if m.AvgFetchMillis != 200 {
		t.Errorf("AvgFetchMillis = %v, want 200", m.AvgFetchMillis)
	}
	if math.Abs(m.FetchFailureRate()-0.5) > 1e-9 {
		t.Errorf("FetchFailureRate = %v, want 0.5", m.FetchFailureRate())
	}
	if m.OldestEvent == nil || !m.OldestEvent.Equal(base) {
		t.Errorf("OldestEvent = %v, want %v", m.OldestEvent, base)
	}
	if m.NewestEvent == nil || !m.NewestEvent.Equal(base.Add(11*time.Minute)) {
		t.Errorf("NewestEvent = %v", m.NewestEvent)
	}
}

func TestMetricsCalculator_RespectsSince(t *testing.T) {
	log := NewMemoryEventLog()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	writeEvents(t, log, base,
		ev("comment.added", nil),
		ev("comment.added", nil),
		ev("comment.added", nil),
	)

	m, err := NewMetricsCalculator(log).Calculate(base.Add(90 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if m.CommentsAdded != 1 || m.EventCount != 1 {
		t.Errorf("CommentsAdded = %d, EventCount = %d; want 1, 1", m.CommentsAdded, m.EventCount)
	}
}

func TestMetricsCalculator_Empty(t *testing.T) {
	m, err := NewMetricsCalculator(NewMemoryEventLog()).Calculate(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if m.EventCount != 0 || m.OldestEvent != nil || m.NewestEvent != nil {
		t.Errorf("empty metrics = %+v", m)
	}
	if m.FetchFailureRate() != 0 || m.AvgFetchMillis != 0 {
		t.Errorf("rates on empty log: %v, %v", m.FetchFailureRate(), m.AvgFetchMillis)
	}
}
