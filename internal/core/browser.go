package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/valter-silva-au/rmb/pkg/models"
)

// DefaultSearchDebounce is the quiet period before a typed search refetches.
const DefaultSearchDebounce = 300 * time.Millisecond

// BrowserOpts configures a Browser.
type BrowserOpts struct {
	// SearchDebounce is the quiet period applied to SetSearch. Zero means
	// DefaultSearchDebounce; a negative value disables debouncing.
	SearchDebounce time.Duration
	Clock          Clock
	Assemble       AssembleOptions
	EventLogger    EventLogger
	// OnQueryChange is called, outside any lock, when a settled search or a
	// species change moves the browser to a new signature. The callee
	// usually triggers a refresh.
	OnQueryChange func(Signature)
	Now           func() time.Time
}

// FetchResult is the outcome of executing a PageRequest.
type FetchResult struct {
	Request PageRequest
	Page    *models.CharactersPage
	Err     error
	Elapsed time.Duration
}

// Browser is one browsing session. It fuses the remote pages, the
// annotation store and the filters into a ListView, and owns the debounced
// search and incremental fetch state.
type Browser struct {
	mu      sync.Mutex
	store   AnnotationStore
	fetcher CharacterFetcher
	cache   *PageCache
	ctrl    *FetchController
	search  *Debouncer[string]
	opts    BrowserOpts

	initialErr  error
	loadMoreErr error
}

// NewBrowser creates a Browser over store and fetcher. Nothing is fetched
// until Refresh or PlanRefresh is called.
func NewBrowser(store AnnotationStore, fetcher CharacterFetcher, opts BrowserOpts) *Browser {
	if opts.SearchDebounce == 0 {
		opts.SearchDebounce = DefaultSearchDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	filters := store.Filters()
	sig := NewSignature(filters.Search, filters.SpeciesFilter)
	cache := NewPageCache(sig)

	b := &Browser{
		store:   store,
		fetcher: fetcher,
		cache:   cache,
		ctrl:    NewFetchController(cache),
		opts:    opts,
	}

	debounceOpts := []DebouncerOption[string]{WithInitialValue[string](filters.Search)}
	if opts.Clock != nil {
		debounceOpts = append(debounceOpts, WithClock[string](opts.Clock))
	}
	b.search = NewDebouncer(opts.SearchDebounce, b.onSearchSettled, debounceOpts...)
	return b
}

// Store returns the annotation store the browser reads from.
func (b *Browser) Store() AnnotationStore {
	return b.store
}

// SetOnQueryChange replaces the OnQueryChange callback. Surfaces that are
// created after the browser, like the TUI, hook in here.
func (b *Browser) SetOnQueryChange(fn func(Signature)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts.OnQueryChange = fn
}

// Close stops the search debouncer. No query change fires afterwards.
func (b *Browser) Close() {
	b.search.Stop()
}

// --- Query state ---

// SetSearch records raw search input. The fetch signature only follows once
// the input has been stable for the debounce period.
func (b *Browser) SetSearch(text string) {
	b.store.SetSearch(text)
	b.search.Set(text)
}

// SettleSearch applies a pending search immediately.
func (b *Browser) SettleSearch() {
	b.search.Flush()
}

// SettledSearch returns the search text the current signature is built on.
func (b *Browser) SettledSearch() string {
	return b.search.Value()
}

// SetSpeciesFilter changes the species filter. Species is part of the
// signature, so the change takes effect immediately.
func (b *Browser) SetSpeciesFilter(f models.SpeciesFilter) {
	b.store.SetSpeciesFilter(f)
	b.requery()
}

// ResetFilters restores default filters and applies the cleared search
// without waiting for the debounce period.
func (b *Browser) ResetFilters() {
	b.store.ResetFilters()
	b.search.Set(b.store.Filters().Search)
	b.search.Flush()
	b.requery()
}

func (b *Browser) onSearchSettled(string) {
	b.requery()
}

// requery reads the search and species under b.mu so that concurrent callers
// (the debounce timer and a filter setter) serialise and the last one to
// lock binds the session to the latest store state.
func (b *Browser) requery() {
	b.mu.Lock()
	sig := NewSignature(b.search.Value(), b.store.Filters().SpeciesFilter)
	changed := sig != b.ctrl.Signature()
	if changed {
		b.ctrl.Reset(sig)
		b.initialErr = nil
		b.loadMoreErr = nil
	}
	cb := b.opts.OnQueryChange
	b.mu.Unlock()

	if changed && cb != nil {
		cb(sig)
	}
}

// Signature returns the signature of the current session.
func (b *Browser) Signature() Signature {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctrl.Signature()
}

// --- Fetching ---

// PlanRefresh issues the page 1 request for the current signature.
func (b *Browser) PlanRefresh() PageRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctrl.BeginInitial()
}

// PlanLoadMore issues the next page request, or reports false when the
// load-more preconditions do not hold.
func (b *Browser) PlanLoadMore() (PageRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialErr != nil {
		return PageRequest{}, false
	}
	return b.ctrl.BeginLoadMore()
}

// Execute performs the remote call for req. It touches no browser state and
// may run on any goroutine.
func (b *Browser) Execute(ctx context.Context, req PageRequest) FetchResult {
	start := b.opts.Now()
	page, err := b.fetcher.FetchCharacters(ctx, req.Query())
	return FetchResult{
		Request: req,
		Page:    page,
		Err:     err,
		Elapsed: b.opts.Now().Sub(start),
	}
}

// Apply merges a fetch result into the session. Stale results are dropped
// silently. Failures are returned as *FetchError and remembered for View.
func (b *Browser) Apply(res FetchResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if res.Err == nil && res.Page == nil {
		res.Err = errors.New("empty response")
	}

	ferr := b.ctrl.Complete(res.Request, res.Page, res.Err)
	stale := res.Request.Signature != b.ctrl.Signature()

	data := map[string]any{
		"page":       res.Request.Page,
		"search":     res.Request.Signature.Search,
		"species":    string(res.Request.Signature.Species),
		"elapsed_ms": res.Elapsed.Milliseconds(),
	}

	if ferr != nil {
		data["error"] = ferr.Error()
		if res.Request.Phase == PhaseInitial {
			b.initialErr = ferr
			logEvent(b.opts.EventLogger, EventInitialFetchFailed, data)
		} else {
			b.loadMoreErr = ferr
			logEvent(b.opts.EventLogger, EventLoadMoreFailed, data)
		}
		return ferr
	}
	if stale || res.Err != nil {
		return nil
	}

	if res.Request.Phase == PhaseInitial {
		b.initialErr = nil
	}
	b.loadMoreErr = nil
	data["results"] = len(res.Page.Results)
	logEvent(b.opts.EventLogger, EventPageLoaded, data)
	return nil
}

// Refresh fetches page 1 of the current signature and blocks until it is
// applied.
func (b *Browser) Refresh(ctx context.Context) error {
	return b.Apply(b.Execute(ctx, b.PlanRefresh()))
}

// LoadMore fetches the next page and blocks until it is applied. It reports
// false without error when there was nothing to load.
func (b *Browser) LoadMore(ctx context.Context) (bool, error) {
	req, ok := b.PlanLoadMore()
	if !ok {
		return false, nil
	}
	return true, b.Apply(b.Execute(ctx, req))
}

// LoadPages refreshes and then loads up to maxPages-1 further pages.
func (b *Browser) LoadPages(ctx context.Context, maxPages int) error {
	if err := b.Refresh(ctx); err != nil {
		return err
	}
	for i := 1; i < maxPages; i++ {
		loaded, err := b.LoadMore(ctx)
		if err != nil {
			return err
		}
		if !loaded {
			return nil
		}
	}
	return nil
}

// --- Derived view ---

// View assembles the current list. After a failed initial fetch it is
// empty; check Err.
func (b *Browser) View() ListView {
	b.mu.Lock()
	var chars []models.Character
	if b.initialErr == nil {
		chars = b.cache.Characters(b.ctrl.Signature())
	}
	b.mu.Unlock()
	return AssembleList(chars, b.store, b.store.Filters(), b.opts.Assemble)
}

// Err returns the initial fetch failure of the current session, if any.
func (b *Browser) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialErr
}

// LoadMoreErr returns the last load-more failure, cleared by the next
// successful fetch.
func (b *Browser) LoadMoreErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadMoreErr
}

// HasMore reports whether another page can be loaded.
func (b *Browser) HasMore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialErr == nil && b.ctrl.HasMore()
}

// Loading reports whether a request is in flight.
func (b *Browser) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctrl.Loading()
}

// CurrentPage returns the page the session has advanced to.
func (b *Browser) CurrentPage() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctrl.CurrentPage()
}

// CacheState returns the merge state of the current signature.
func (b *Browser) CacheState() CacheState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.State(b.ctrl.Signature())
}

// Info returns the pagination info of the last merged page.
func (b *Browser) Info() models.PageInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Info(b.ctrl.Signature())
}

// --- Detail ---

// Detail looks up one character. Soft-deleted characters report
// ErrCharacterDeleted even when the remote record exists; unknown IDs
// report ErrCharacterNotFound; transport failures are *FetchError.
func (b *Browser) Detail(ctx context.Context, id string) (*models.Character, error) {
	if b.store.IsDeleted(id) {
		return nil, ErrCharacterDeleted
	}
	ch, err := b.fetcher.FetchCharacter(ctx, id)
	if err != nil {
		return nil, &FetchError{Phase: PhaseDetail, Err: err}
	}
	if ch == nil {
		return nil, ErrCharacterNotFound
	}
	// The character may have been deleted while the request was in flight.
	if b.store.IsDeleted(id) {
		return nil, ErrCharacterDeleted
	}
	return ch, nil
}
