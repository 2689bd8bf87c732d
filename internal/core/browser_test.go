package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/rmb/pkg/models"
)

// fakeFetcher serves canned pages keyed by query.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[CharacterQuery]*models.CharactersPage
	chars   map[string]models.Character
	fail    map[CharacterQuery]error
	failAll error
	queries []CharacterQuery
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: map[CharacterQuery]*models.CharactersPage{},
		chars: map[string]models.Character{},
		fail:  map[CharacterQuery]error{},
	}
}

func (f *fakeFetcher) FetchCharacters(_ context.Context, q CharacterQuery) (*models.CharactersPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.failAll != nil {
		return nil, f.failAll
	}
	if err, ok := f.fail[q]; ok {
		return nil, err
	}
	if p, ok := f.pages[q]; ok {
		return p, nil
	}
	return &models.CharactersPage{Results: []models.Character{}}, nil
}

func (f *fakeFetcher) FetchCharacter(_ context.Context, id string) (*models.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	c, ok := f.chars[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeFetcher) queryLog() []CharacterQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CharacterQuery{}, f.queries...)
}

func TestBrowser_RefreshFavoriteAndFilter(t *testing.T) {
	f := newFakeFetcher()
	f.pages[CharacterQuery{Page: 1}] = page(0, ch("1", "Rick"), ch("2", "Morty"))
	store := NewAnnotationStore(AnnotationStoreOpts{})
	b := NewBrowser(store, f, BrowserOpts{})
	defer b.Close()

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	store.ToggleFavorite("1")

	v := b.View()
	if !equalIDs(v.Starred, "1") || !equalIDs(v.Others, "2") {
		t.Fatalf("starred=%v others=%v", names(v.Starred), names(v.Others))
	}

	store.SetCharacterFilter(models.CharacterFilterStarred)
	v = b.View()
	if !equalIDs(v.Starred, "1") || len(v.Others) != 0 {
		t.Errorf("starred filter: starred=%v others=%v", names(v.Starred), names(v.Others))
	}
}

func TestBrowser_LoadMoreAccumulatesThenStops(t *testing.T) {
	f := newFakeFetcher()
	f.pages[CharacterQuery{Page: 1}] = page(2, ch("a", "Abradolf"), ch("b", "Beth"))
	f.pages[CharacterQuery{Page: 2}] = page(0, ch("b", "Beth"), ch("c", "Cornvelious"))
	b := NewBrowser(NewAnnotationStore(AnnotationStoreOpts{}), f, BrowserOpts{})
	defer b.Close()

	if err := b.LoadPages(context.Background(), 5); err != nil {
		t.Fatalf("LoadPages: %v", err)
	}
	if got := b.View().Others; !equalIDs(got, "a", "b", "c") {
		t.Errorf("accumulated = %v", ids(got))
	}
	if b.HasMore() || b.CacheState() != CacheExhausted {
		t.Errorf("HasMore=%v state=%s", b.HasMore(), b.CacheState())
	}
	if loaded, err := b.LoadMore(context.Background()); loaded || err != nil {
		t.Errorf("LoadMore after exhaustion = %v, %v", loaded, err)
	}
	if n := len(f.queryLog()); n != 2 {
		t.Errorf("remote calls = %d, want 2", n)
	}
}

func TestBrowser_LoadMoreFailureIsRetryable(t *testing.T) {
	f := newFakeFetcher()
	log := &recordingLogger{}
	f.pages[CharacterQuery{Page: 1}] = page(2, ch("1", "Rick"))
	f.fail[CharacterQuery{Page: 2}] = errors.New("503")
	b := NewBrowser(NewAnnotationStore(AnnotationStoreOpts{}), f, BrowserOpts{EventLogger: log})
	defer b.Close()

	b.Refresh(context.Background())
	loaded, err := b.LoadMore(context.Background())
	if !loaded || err == nil {
		t.Fatalf("LoadMore = %v, %v; want attempted with error", loaded, err)
	}
	if b.LoadMoreErr() == nil {
		t.Error("LoadMoreErr() = nil")
	}
	if b.Err() != nil {
		t.Errorf("load more failure surfaced as initial error: %v", b.Err())
	}
	if got := b.View().Others; !equalIDs(got, "1") {
		t.Errorf("view = %v, want page 1 data kept", ids(got))
	}
	if log.count(EventLoadMoreFailed) != 1 {
		t.Errorf("events = %v", log.types())
	}

	delete(f.fail, CharacterQuery{Page: 2})
	f.pages[CharacterQuery{Page: 2}] = page(0, ch("2", "Morty"))
	if _, err := b.LoadMore(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if b.LoadMoreErr() != nil {
		t.Error("LoadMoreErr() not cleared by a successful retry")
	}
	if got := b.View().Others; !equalIDs(got, "2", "1") {
		t.Errorf("view = %v, want [Morty Rick]", names(got))
	}
}

func TestBrowser_InitialFailureShowsNothing(t *testing.T) {
	f := newFakeFetcher()
	f.failAll = errors.New("dns failure")
	log := &recordingLogger{}
	b := NewBrowser(NewAnnotationStore(AnnotationStoreOpts{}), f, BrowserOpts{EventLogger: log})
	defer b.Close()

	err := b.Refresh(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Phase != PhaseInitial {
		t.Fatalf("Refresh error = %v, want initial FetchError", err)
	}
	if b.Err() == nil {
		t.Error("Err() = nil after initial failure")
	}
	if v := b.View(); v.Total != 0 {
		t.Errorf("View() total = %d, want 0", v.Total)
	}
	if _, ok := b.PlanLoadMore(); ok {
		t.Error("load more planned after initial failure")
	}
	if log.count(EventInitialFetchFailed) != 1 {
		t.Errorf("events = %v", log.types())
	}

	f.mu.Lock()
	f.failAll = nil
	f.pages[CharacterQuery{Page: 1}] = page(0, ch("1", "Rick"))
	f.mu.Unlock()
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("retry Refresh: %v", err)
	}
	if b.Err() != nil || b.View().Total != 1 {
		t.Errorf("after retry Err=%v total=%d", b.Err(), b.View().Total)
	}
}

func TestBrowser_DebouncedSearchChangesSignature(t *testing.T) {
	clock := &manualClock{}
	f := newFakeFetcher()
	changes := make(chan Signature, 4)
	store := NewAnnotationStore(AnnotationStoreOpts{})
	b := NewBrowser(store, f, BrowserOpts{
		Clock:         clock,
		OnQueryChange: func(s Signature) { changes <- s },
	})
	defer b.Close()

	b.SetSearch("R")
	clock.Advance(50 * time.Millisecond)
	b.SetSearch("Ri")
	clock.Advance(50 * time.Millisecond)
	b.SetSearch("Ric")

	if store.Filters().Search != "Ric" {
		t.Errorf("raw search = %q, want immediate update", store.Filters().Search)
	}
	if b.Signature().Search != "" {
		t.Errorf("signature moved before settle: %+v", b.Signature())
	}

	clock.Advance(300 * time.Millisecond)
	select {
	case s := <-changes:
		if s.Search != "Ric" {
			t.Errorf("query change to %+v, want Ric", s)
		}
	default:
		t.Fatal("no query change after quiet period")
	}
	if len(changes) != 0 {
		t.Errorf("%d extra query changes", len(changes))
	}
	if b.SettledSearch() != "Ric" {
		t.Errorf("SettledSearch = %q", b.SettledSearch())
	}
}

func TestBrowser_SpeciesChangeIsImmediateAndResets(t *testing.T) {
	f := newFakeFetcher()
	f.pages[CharacterQuery{Page: 1}] = page(2, ch("1", "Rick"))
	f.pages[CharacterQuery{Page: 1, Species: "Alien"}] = page(0, ch("9", "Squanchy"))
	b := NewBrowser(NewAnnotationStore(AnnotationStoreOpts{}), f, BrowserOpts{})
	defer b.Close()

	b.Refresh(context.Background())
	pending, _ := b.PlanLoadMore()

	b.SetSpeciesFilter(models.SpeciesAlien)
	if b.Signature().Species != models.SpeciesAlien {
		t.Fatalf("signature = %+v", b.Signature())
	}
	if b.View().Total != 0 || b.CurrentPage() != 1 {
		t.Errorf("signature change kept old data: total=%d page=%d", b.View().Total, b.CurrentPage())
	}

	// The load more issued under the old signature lands late.
	b.Apply(FetchResult{Request: pending, Page: page(0, ch("2", "Morty"))})
	if b.View().Total != 0 {
		t.Error("stale page merged into new signature")
	}

	b.Refresh(context.Background())
	if got := b.View().Others; !equalIDs(got, "9") {
		t.Errorf("view = %v, want [9]", ids(got))
	}
}

func TestBrowser_ResetFiltersSettlesSearch(t *testing.T) {
	clock := &manualClock{}
	store := NewAnnotationStore(AnnotationStoreOpts{})
	b := NewBrowser(store, newFakeFetcher(), BrowserOpts{Clock: clock})
	defer b.Close()

	b.SetSearch("morty")
	b.SettleSearch()
	b.SetSpeciesFilter(models.SpeciesHuman)

	b.ResetFilters()
	if sig := b.Signature(); sig != NewSignature("", models.SpeciesAll) {
		t.Errorf("signature after reset = %+v", sig)
	}
	if store.Filters() != models.DefaultFilters() {
		t.Errorf("filters after reset = %+v", store.Filters())
	}
}

func TestBrowser_DetailHonoursSoftDelete(t *testing.T) {
	f := newFakeFetcher()
	f.chars["1"] = ch("1", "Rick")
	store := NewAnnotationStore(AnnotationStoreOpts{})
	b := NewBrowser(store, f, BrowserOpts{})
	defer b.Close()

	got, err := b.Detail(context.Background(), "1")
	if err != nil || got.Name != "Rick" {
		t.Fatalf("Detail = %+v, %v", got, err)
	}

	store.SoftDeleteCharacter("1")
	if _, err := b.Detail(context.Background(), "1"); !errors.Is(err, ErrCharacterDeleted) {
		t.Errorf("deleted Detail error = %v, want ErrCharacterDeleted", err)
	}
	if _, err := b.Detail(context.Background(), "1"); !errors.Is(err, ErrCharacterNotFound) {
		t.Error("ErrCharacterDeleted does not match ErrCharacterNotFound")
	}

	store.RestoreCharacter("1")
	if _, err := b.Detail(context.Background(), "1"); err != nil {
		t.Errorf("restored Detail error = %v", err)
	}

	_, err = b.Detail(context.Background(), "404")
	if !errors.Is(err, ErrCharacterNotFound) || errors.Is(err, ErrCharacterDeleted) {
		t.Errorf("missing Detail error = %v, want plain not found", err)
	}

	f.failAll = errors.New("timeout")
	_, err = b.Detail(context.Background(), "1")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Phase != PhaseDetail {
		t.Errorf("transport Detail error = %v, want detail FetchError", err)
	}
	if errors.Is(err, ErrCharacterNotFound) {
		t.Error("transport failure conflated with not found")
	}
}

func TestBrowser_PageLoadedEventCarriesTiming(t *testing.T) {
	f := newFakeFetcher()
	f.pages[CharacterQuery{Page: 1}] = page(0, ch("1", "Rick"))
	log := &recordingLogger{}
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBrowser(NewAnnotationStore(AnnotationStoreOpts{}), f, BrowserOpts{
		EventLogger: log,
		Now: func() time.Time {
			tick = tick.Add(25 * time.Millisecond)
			return tick
		},
	})
	defer b.Close()

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if log.count(EventPageLoaded) != 1 {
		t.Fatalf("events = %v", log.types())
	}
	data := log.data[0]
	if data["elapsed_ms"] != int64(25) || data["results"] != 1 || data["page"] != 1 {
		t.Errorf("event data = %v", data)
	}
}

func TestBrowser_SetOnQueryChangeReplacesCallback(t *testing.T) {
	b := NewBrowser(NewAnnotationStore(AnnotationStoreOpts{}), newFakeFetcher(), BrowserOpts{SearchDebounce: -1})
	defer b.Close()

	var got []Signature
	b.SetOnQueryChange(func(s Signature) { got = append(got, s) })
	b.SetSpeciesFilter(models.SpeciesHuman)
	b.SetSpeciesFilter(models.SpeciesHuman)

	if len(got) != 1 || got[0].Species != models.SpeciesHuman {
		t.Errorf("query changes = %+v, want one change to Human", got)
	}
}

func TestBrowser_ConcurrentSearchAndSpeciesEndOnLatestState(t *testing.T) {
	species := []models.SpeciesFilter{models.SpeciesHuman, models.SpeciesAlien, models.SpeciesAll}
	for round := 0; round < 50; round++ {
		store := NewAnnotationStore(AnnotationStoreOpts{})
		b := NewBrowser(store, newFakeFetcher(), BrowserOpts{SearchDebounce: -1})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i, text := range []string{"r", "ri", "ric", "rick"} {
				b.SetSearch(text)
				if i%2 == 0 {
					b.SettleSearch()
				}
			}
		}()
		go func() {
			defer wg.Done()
			for _, sp := range species {
				b.SetSpeciesFilter(sp)
			}
		}()
		wg.Wait()

		want := NewSignature(b.SettledSearch(), store.Filters().SpeciesFilter)
		if got := b.Signature(); got != want {
			t.Fatalf("round %d: signature = %+v, want %+v", round, got, want)
		}
		b.Close()
	}
}
