package model

// TranslatedResource is the leaf stats aggregate: one resource paired
// with one locale. It exists iff the locale translates the resource.
type TranslatedResource struct {
	ID         int64
	ResourceID int64
	LocaleID   int64

	AggregatedStats
	LatestTranslationID int64
}

// FailingCheck is one persisted quality-check failure for a translation.
// The set for a translation is replaced wholesale on every recheck.
type FailingCheck struct {
	ID            int64
	TranslationID int64
	Severity      string
	Message       string
}
