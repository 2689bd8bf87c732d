package core

import (
	"strings"

	"github.com/valter-silva-au/rmb/pkg/models"
)

// Signature is the part of a query that selects an accumulated page list:
// search text and species filter. Page number and purely local filters
// (starred, status, gender, sort) are not part of it.
type Signature struct {
	Search  string
	Species models.SpeciesFilter
}

// NewSignature builds a signature from filter state and the settled search
// text. Surrounding whitespace in the search is ignored.
func NewSignature(search string, species models.SpeciesFilter) Signature {
	if species == "" {
		species = models.SpeciesAll
	}
	return Signature{Search: strings.TrimSpace(search), Species: species}
}

// Query returns the remote query for page of this signature.
func (s Signature) Query(page int) CharacterQuery {
	q := CharacterQuery{Page: page, Name: s.Search}
	if s.Species != models.SpeciesAll {
		q.Species = string(s.Species)
	}
	return q
}

// CacheState is the merge state of one signature's entry.
type CacheState int

const (
	CacheEmpty CacheState = iota
	CacheFirstPageLoaded
	CacheAccumulating
	CacheExhausted
)

func (s CacheState) String() string {
	switch s {
	case CacheFirstPageLoaded:
		return "first_page_loaded"
	case CacheAccumulating:
		return "accumulating"
	case CacheExhausted:
		return "exhausted"
	default:
		return "empty"
	}
}

type pageEntry struct {
	state      CacheState
	characters []models.Character
	ids        map[string]struct{}
	highest    int
	info       models.PageInfo
}

// PageCache accumulates successive pages per signature. Only the current
// signature's entry is live; switching signature discards the previous
// accumulation so a stale search never bleeds into a new one.
type PageCache struct {
	current Signature
	entries map[Signature]*pageEntry
}

// NewPageCache creates a cache bound to sig.
func NewPageCache(sig Signature) *PageCache {
	return &PageCache{
		current: sig,
		entries: make(map[Signature]*pageEntry),
	}
}

// Current returns the signature the cache is bound to.
func (c *PageCache) Current() Signature {
	return c.current
}

// SetSignature binds the cache to sig. It reports whether the signature
// changed; on change the previous signature's entry is reset to empty.
func (c *PageCache) SetSignature(sig Signature) bool {
	if sig == c.current {
		return false
	}
	delete(c.entries, c.current)
	delete(c.entries, sig)
	c.current = sig
	return true
}

// Merge applies a response for page of sig and reports whether it changed
// the accumulated list. Responses for other signatures, for pages at or
// below the highest merged page, and for later pages before page 1 or after
// exhaustion are ignored.
func (c *PageCache) Merge(sig Signature, page int, resp *models.CharactersPage) bool {
	if resp == nil || sig != c.current || page < 1 {
		return false
	}

	if page == 1 {
		e := &pageEntry{
			state:   CacheFirstPageLoaded,
			ids:     make(map[string]struct{}, len(resp.Results)),
			highest: 1,
			info:    resp.Info,
		}
		e.characters = appendUnique(e.characters, e.ids, resp.Results)
		if !resp.Info.HasNext() {
			e.state = CacheExhausted
		}
		c.entries[sig] = e
		return true
	}

	e, ok := c.entries[sig]
	if !ok || e.state == CacheEmpty || e.state == CacheExhausted {
		return false
	}
	if page <= e.highest {
		return false
	}

	e.characters = appendUnique(e.characters, e.ids, resp.Results)
	e.highest = page
	e.info = resp.Info
	e.state = CacheAccumulating
	if !resp.Info.HasNext() {
		e.state = CacheExhausted
	}
	return true
}

func appendUnique(dst []models.Character, seen map[string]struct{}, src []models.Character) []models.Character {
	for _, ch := range src {
		if _, dup := seen[ch.ID]; dup {
			continue
		}
		seen[ch.ID] = struct{}{}
		dst = append(dst, ch)
	}
	return dst
}

// Characters returns a copy of the accumulated list for sig.
func (c *PageCache) Characters(sig Signature) []models.Character {
	e, ok := c.entries[sig]
	if !ok {
		return []models.Character{}
	}
	return append([]models.Character{}, e.characters...)
}

// State returns the merge state for sig.
func (c *PageCache) State(sig Signature) CacheState {
	if e, ok := c.entries[sig]; ok {
		return e.state
	}
	return CacheEmpty
}

// NextPage returns the next page advertised by the server for sig.
func (c *PageCache) NextPage(sig Signature) (int, bool) {
	e, ok := c.entries[sig]
	if !ok || e.state == CacheExhausted || !e.info.HasNext() {
		return 0, false
	}
	return e.info.Next, true
}

// HighestPage returns the highest page merged for sig, or 0.
func (c *PageCache) HighestPage(sig Signature) int {
	if e, ok := c.entries[sig]; ok {
		return e.highest
	}
	return 0
}

// Info returns the pagination info of the last merged page for sig.
func (c *PageCache) Info(sig Signature) models.PageInfo {
	if e, ok := c.entries[sig]; ok {
		return e.info
	}
	return models.PageInfo{}
}
