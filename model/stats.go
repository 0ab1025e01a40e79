package model

// AggregatedStats is the denormalized counter block shared by
// TranslatedResource, Project, Locale and ProjectLocale.
type AggregatedStats struct {
	TotalStrings      int
	ApprovedStrings   int
	FuzzyStrings      int
	TranslatedStrings int
}

// StatsDiff is the delta applied to an aggregate and cascaded to its
// parents. Fields may be negative.
type StatsDiff struct {
	Total      int
	Approved   int
	Fuzzy      int
	Translated int
}

func (d StatsDiff) IsZero() bool {
	return d.Total == 0 && d.Approved == 0 && d.Fuzzy == 0 && d.Translated == 0
}

// Diff returns the delta that turns the stored stats into next.
func (s AggregatedStats) Diff(next AggregatedStats) StatsDiff {
	return StatsDiff{
		Total:      next.TotalStrings - s.TotalStrings,
		Approved:   next.ApprovedStrings - s.ApprovedStrings,
		Fuzzy:      next.FuzzyStrings - s.FuzzyStrings,
		Translated: next.TranslatedStrings - s.TranslatedStrings,
	}
}
