package models

// CharacterFilter scopes the list to starred, unstarred or all characters.
type CharacterFilter string

const (
	CharacterFilterAll     CharacterFilter = "all"
	CharacterFilterStarred CharacterFilter = "starred"
	CharacterFilterOthers  CharacterFilter = "others"
)

// SpeciesFilter is forwarded to the remote query; "all" means no filter.
type SpeciesFilter string

const (
	SpeciesAll   SpeciesFilter = "all"
	SpeciesHuman SpeciesFilter = "Human"
	SpeciesAlien SpeciesFilter = "Alien"
)

// StatusFilter is applied locally after fetching.
type StatusFilter string

const (
	StatusFilterAll     StatusFilter = "all"
	StatusFilterAlive   StatusFilter = "Alive"
	StatusFilterDead    StatusFilter = "Dead"
	StatusFilterUnknown StatusFilter = "unknown"
)

// GenderFilter is applied locally after fetching.
type GenderFilter string

const (
	GenderFilterAll        GenderFilter = "all"
	GenderFilterFemale     GenderFilter = "Female"
	GenderFilterMale       GenderFilter = "Male"
	GenderFilterGenderless GenderFilter = "Genderless"
	GenderFilterUnknown    GenderFilter = "unknown"
)

// SortOrder orders the list by character name.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// FilterState holds every user-controlled filter and sort setting.
type FilterState struct {
	Search          string
	CharacterFilter CharacterFilter
	SpeciesFilter   SpeciesFilter
	StatusFilter    StatusFilter
	GenderFilter    GenderFilter
	SortOrder       SortOrder
}

// DefaultFilters returns the filter state of a fresh session.
func DefaultFilters() FilterState {
	return FilterState{
		Search:          "",
		CharacterFilter: CharacterFilterAll,
		SpeciesFilter:   SpeciesAll,
		StatusFilter:    StatusFilterAll,
		GenderFilter:    GenderFilterAll,
		SortOrder:       SortAsc,
	}
}

// ActiveCount returns how many enumerated filters differ from "all".
// Search text and sort order are not counted.
func (f FilterState) ActiveCount() int {
	n := 0
	if f.CharacterFilter != CharacterFilterAll {
		n++
	}
	if f.SpeciesFilter != SpeciesAll {
		n++
	}
	if f.StatusFilter != StatusFilterAll {
		n++
	}
	if f.GenderFilter != GenderFilterAll {
		n++
	}
	return n
}

// ValidCharacterFilter reports whether v is a known character filter.
func ValidCharacterFilter(v string) bool {
	switch CharacterFilter(v) {
	case CharacterFilterAll, CharacterFilterStarred, CharacterFilterOthers:
		return true
	}
	return false
}

// ValidSpeciesFilter reports whether v is a known species filter.
func ValidSpeciesFilter(v string) bool {
	switch SpeciesFilter(v) {
	case SpeciesAll, SpeciesHuman, SpeciesAlien:
		return true
	}
	return false
}

// ValidStatusFilter reports whether v is a known status filter.
func ValidStatusFilter(v string) bool {
	switch StatusFilter(v) {
	case StatusFilterAll, StatusFilterAlive, StatusFilterDead, StatusFilterUnknown:
		return true
	}
	return false
}

// ValidGenderFilter reports whether v is a known gender filter.
func ValidGenderFilter(v string) bool {
	switch GenderFilter(v) {
	case GenderFilterAll, GenderFilterFemale, GenderFilterMale, GenderFilterGenderless, GenderFilterUnknown:
		return true
	}
	return false
}

// ValidSortOrder reports whether v is asc or desc.
func ValidSortOrder(v string) bool {
	return SortOrder(v) == SortAsc || SortOrder(v) == SortDesc
}
