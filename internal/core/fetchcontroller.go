package core

import (
	"context"

	"github.com/valter-silva-au/rmb/pkg/models"
)

// CharacterQuery is a request for one page of characters. Empty Name and
// Species mean "no filter".
type CharacterQuery struct {
	Page    int
	Name    string
	Species string
}

// CharacterFetcher is the remote query capability. FetchCharacter returns
// (nil, nil) when the API has no such character.
type CharacterFetcher interface {
	FetchCharacters(ctx context.Context, q CharacterQuery) (*models.CharactersPage, error)
	FetchCharacter(ctx context.Context, id string) (*models.Character, error)
}

// PageRequest is an issued fetch. It carries the controller epoch so that a
// completion for an abandoned session can be recognised and dropped.
type PageRequest struct {
	Signature Signature
	Page      int
	Phase     FetchPhase

	epoch    uint64
	prevPage int
}

// Query returns the remote query for the request.
func (r PageRequest) Query() CharacterQuery {
	return r.Signature.Query(r.Page)
}

// FetchController tracks the current page and in-flight state of one
// incremental session, so duplicate or overlapping load-more triggers are
// ignored and failures leave it retryable.
type FetchController struct {
	cache       *PageCache
	sig         Signature
	currentPage int
	loading     bool
	epoch       uint64
}

// NewFetchController creates a controller bound to the cache's current
// signature.
func NewFetchController(cache *PageCache) *FetchController {
	return &FetchController{
		cache:       cache,
		sig:         cache.Current(),
		currentPage: 1,
	}
}

// Reset starts a new incremental session for sig: the page counter returns
// to 1, any in-flight flag is cleared and outstanding requests become stale.
func (c *FetchController) Reset(sig Signature) {
	c.cache.SetSignature(sig)
	c.sig = sig
	c.currentPage = 1
	c.loading = false
	c.epoch++
}

// CurrentPage returns the page the session has advanced to.
func (c *FetchController) CurrentPage() int {
	return c.currentPage
}

// Loading reports whether a request is in flight.
func (c *FetchController) Loading() bool {
	return c.loading
}

// Signature returns the signature of the current session.
func (c *FetchController) Signature() Signature {
	return c.sig
}

// BeginInitial issues the page 1 request of the current session. It always
// succeeds; any older in-flight request becomes stale.
func (c *FetchController) BeginInitial() PageRequest {
	c.epoch++
	c.currentPage = 1
	c.loading = true
	return PageRequest{
		Signature: c.sig,
		Page:      1,
		Phase:     PhaseInitial,
		epoch:     c.epoch,
		prevPage:  1,
	}
}

// HasMore reports whether the server advertised a page beyond the highest
// one merged.
func (c *FetchController) HasMore() bool {
	next, ok := c.cache.NextPage(c.sig)
	return ok && next > c.cache.HighestPage(c.sig)
}

// BeginLoadMore issues a request for the next page. ok is false, and nothing
// changes, when there is no next page, a request is in flight, or the next
// page was already merged.
func (c *FetchController) BeginLoadMore() (PageRequest, bool) {
	if c.loading {
		return PageRequest{}, false
	}
	next, ok := c.cache.NextPage(c.sig)
	if !ok || next <= c.cache.HighestPage(c.sig) {
		return PageRequest{}, false
	}

	req := PageRequest{
		Signature: c.sig,
		Page:      next,
		Phase:     PhaseLoadMore,
		epoch:     c.epoch,
		prevPage:  c.currentPage,
	}
	c.currentPage = next
	c.loading = true
	return req, true
}

// Complete applies the outcome of req. Completions of stale requests are
// ignored and return nil. A failure rolls the page counter back, clears the
// in-flight flag and is returned as a *FetchError.
func (c *FetchController) Complete(req PageRequest, resp *models.CharactersPage, err error) error {
	if req.epoch != c.epoch || req.Signature != c.sig {
		return nil
	}
	c.loading = false

	if err != nil {
		c.currentPage = req.prevPage
		return &FetchError{Phase: req.Phase, Page: req.Page, Err: err}
	}

	c.cache.Merge(req.Signature, req.Page, resp)
	c.currentPage = req.Page
	return nil
}
