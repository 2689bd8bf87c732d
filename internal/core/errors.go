package core

import (
	"errors"
	"fmt"
)

// ErrCharacterNotFound is returned by detail lookups when the remote API has
// no character with the requested ID.
var ErrCharacterNotFound = errors.New("character not found")

// ErrCharacterDeleted is returned by detail lookups for soft-deleted
// characters. It wraps ErrCharacterNotFound so callers that only care about
// "not available" can match either.
var ErrCharacterDeleted = fmt.Errorf("%w: character was deleted", ErrCharacterNotFound)

// FetchPhase identifies which kind of request failed.
type FetchPhase string

const (
	PhaseInitial  FetchPhase = "initial"
	PhaseLoadMore FetchPhase = "load_more"
	PhaseDetail   FetchPhase = "detail"
)

// FetchError reports a transport failure from the remote query capability.
type FetchError struct {
	Phase FetchPhase
	Page  int
	Err   error
}

func (e *FetchError) Error() string {
	switch e.Phase {
	case PhaseLoadMore:
		return fmt.Sprintf("loading page %d: %v", e.Page, e.Err)
	case PhaseDetail:
		return fmt.Sprintf("loading character: %v", e.Err)
	default:
		return fmt.Sprintf("loading characters: %v", e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
