package model

import "github.com/crowdlate/crowdlate/faults"

// StatusCounts is the per-(entity, locale) projection the editor filters
// are evaluated against. Approved counts approved non-fuzzy
// translations, Fuzzy counts fuzzy non-approved ones, Suggested counts
// submissions that are neither, Expected is the size of a complete
// answer set (1, or nplurals for plural entities) and Unchanged counts
// translations identical to the source string.
type StatusCounts struct {
	Approved  int
	Fuzzy     int
	Suggested int
	Expected  int
	Unchanged int
}

type Filter string

const (
	FilterMissing        Filter = "missing"
	FilterFuzzy          Filter = "fuzzy"
	FilterSuggested      Filter = "suggested"
	FilterTranslated     Filter = "translated"
	FilterUntranslated   Filter = "untranslated"
	FilterHasSuggestions Filter = "has-suggestions"
	FilterUnchanged      Filter = "unchanged"
)

// Match evaluates the filter predicate against a status-count
// projection.
func (f Filter) Match(c StatusCounts) (bool, error) {
	switch f {
	case FilterMissing:
		return c.Approved == 0 && c.Fuzzy == 0 && c.Suggested == 0, nil
	case FilterFuzzy:
		return c.Fuzzy == c.Expected && c.Approved != c.Expected, nil
	case FilterSuggested:
		return c.Suggested > 0 && c.Fuzzy != c.Expected && c.Approved != c.Expected, nil
	case FilterTranslated:
		return c.Approved == c.Expected, nil
	case FilterUntranslated:
		return c.Approved != c.Expected, nil
	case FilterHasSuggestions:
		return c.Suggested > 0, nil
	case FilterUnchanged:
		return c.Unchanged == c.Expected, nil
	}
	return false, faults.Configuration("unknown entity filter " + string(f))
}
