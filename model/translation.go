package model

import "time"

// NoPluralForm is the PluralForm value for translations of entities
// without plural forms.
const NoPluralForm = -1

// Translation is one candidate string for an (entity, locale,
// plural_form) triple. At most one translation per triple may be
// approved at any time; the write path enforces this.
type Translation struct {
	ID         int64
	EntityID   int64
	LocaleID   int64
	UserID     int64
	String     string
	PluralForm int
	Date       time.Time

	Approved       bool
	ApprovedUserID int64
	ApprovedDate   time.Time

	// Rejected is terminal and informational: rejected translations are
	// excluded from future auto-matching but kept for history.
	Rejected       bool
	RejectedUserID int64
	RejectedDate   time.Time

	Fuzzy bool

	// Extra holds format-specific round-trip data the model does not
	// otherwise represent.
	Extra map[string]any
}

// LatestActivity is the timestamp and actor of the most recent event on
// the translation, used for activity pointers.
func (t *Translation) LatestActivity() (time.Time, int64) {
	if !t.ApprovedDate.IsZero() && t.ApprovedDate.After(t.Date) {
		return t.ApprovedDate, t.ApprovedUserID
	}
	return t.Date, t.UserID
}

// TranslationMemoryEntry is an immutable (source, target, locale)
// triple created the first time its translation becomes approved. The
// entity and translation references are nullable so entries survive
// deletion of either.
type TranslationMemoryEntry struct {
	ID            int64
	Source        string
	Target        string
	LocaleID      int64
	EntityID      int64
	TranslationID int64
	ProjectID     int64
}
