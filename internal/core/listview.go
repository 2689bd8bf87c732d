package core

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/valter-silva-au/rmb/pkg/models"
)

// ListView is the assembled, partitioned list the presentation layer renders.
type ListView struct {
	Starred []models.Character
	Others  []models.Character
	Total   int
}

// AssembleOptions holds settings that are configuration rather than
// per-session filter state.
type AssembleOptions struct {
	// HideDeleted removes soft-deleted characters from both partitions.
	// When false, soft deletion only affects detail lookups.
	HideDeleted bool
	// Locale drives name collation. Zero value means language.English.
	Locale language.Tag
}

// AssembleList derives the starred/others view from the accumulated
// characters, the annotation state and the filters. It has no side effects
// and never modifies chars.
func AssembleList(chars []models.Character, ann AnnotationReader, filters models.FilterState, opts AssembleOptions) ListView {
	list := make([]models.Character, 0, len(chars))
	for _, ch := range chars {
		if filters.StatusFilter != "" && filters.StatusFilter != models.StatusFilterAll &&
			string(ch.Status) != string(filters.StatusFilter) {
			continue
		}
		if filters.GenderFilter != "" && filters.GenderFilter != models.GenderFilterAll &&
			string(ch.Gender) != string(filters.GenderFilter) {
			continue
		}
		if opts.HideDeleted && ann != nil && ann.IsDeleted(ch.ID) {
			continue
		}
		list = append(list, ch)
	}

	sortByName(list, filters.SortOrder, opts.Locale)

	starred := make([]models.Character, 0)
	others := make([]models.Character, 0, len(list))
	for _, ch := range list {
		if ann != nil && ann.IsFavorite(ch.ID) {
			starred = append(starred, ch)
		} else {
			others = append(others, ch)
		}
	}

	switch filters.CharacterFilter {
	case models.CharacterFilterStarred:
		others = []models.Character{}
	case models.CharacterFilterOthers:
		starred = []models.Character{}
	}

	return ListView{
		Starred: starred,
		Others:  others,
		Total:   len(starred) + len(others),
	}
}

// sortByName stable-sorts list by display name with locale-aware collation.
// Equal names keep their fetch order in both directions.
func sortByName(list []models.Character, order models.SortOrder, locale language.Tag) {
	if locale == language.Und {
		locale = language.English
	}
	col := collate.New(locale)
	desc := order == models.SortDesc
	sort.SliceStable(list, func(i, j int) bool {
		cmp := col.CompareString(list[i].Name, list[j].Name)
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}
