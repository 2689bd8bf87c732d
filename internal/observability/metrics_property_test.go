package observability

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

var eventTypes = []string{
	"favorite.toggled", "comment.added", "comment.deleted", "character.deleted",
	"character.restored", "fetch.page_loaded", "fetch.initial_failed",
	"fetch.load_more_failed", "storage.persist_failed",
}

// Feature: observability, Property 1: Counts partition the event log
// For any sequence of known events, the per-type counters sum to EventCount.
func TestProperty_MetricsCountsSumToEventCount(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		log := NewMemoryEventLog()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		n := rapid.IntRange(0, 60).Draw(rt, "n")
		for i := 0; i < n; i++ {
			typ := rapid.SampledFrom(eventTypes).Draw(rt, "type")
			data := map[string]any{"starred": rapid.Bool().Draw(rt, "starred")}
			_ = log.Write(NewEvent(base.Add(time.Duration(i)*time.Second), typ, data))
		}

		m, err := NewMetricsCalculator(log).Calculate(base)
		if err != nil {
			rt.Fatal(err)
		}
		sum := m.FavoritesAdded + m.FavoritesRemoved + m.CommentsAdded + m.CommentsDeleted +
			m.CharactersDeleted + m.CharactersRestored + m.PagesLoaded +
			m.InitialFetchFailures + m.LoadMoreFailures + m.PersistFailures
		if sum != m.EventCount || m.EventCount != n {
			rt.Fatalf("sum of counters %d, EventCount %d, written %d", sum, m.EventCount, n)
		}
		if r := m.FetchFailureRate(); r < 0 || r > 1 {
			rt.Fatalf("FetchFailureRate = %v out of range", r)
		}
	})
}
