package model

import (
	"strconv"
	"strings"

	"github.com/crowdlate/crowdlate/faults"
)

// CLDR plural categories in canonical order. A locale carries an ordered
// subset of these; plural_form values on translations are indexes into
// that subset.
var CLDRPlurals = []string{"zero", "one", "two", "few", "many", "other"}

type Locale struct {
	ID         int64
	Code       string
	Name       string
	PluralRule string

	// CLDRPluralIDs is an ordered subset of 0..5, preserving canonical
	// CLDR order. Empty means the locale has a single plural form.
	CLDRPluralIDs []int

	AggregatedStats
	LatestTranslationID int64
}

// NPlurals is the number of plural forms the locale requires, minimum 1.
func (l *Locale) NPlurals() int {
	if len(l.CLDRPluralIDs) == 0 {
		return 1
	}
	return len(l.CLDRPluralIDs)
}

// PluralIndex returns the relative plural_form index for a CLDR category
// name, or -1 if the locale does not use that category.
func (l *Locale) PluralIndex(cldrPlural string) int {
	id := CLDRPluralID(cldrPlural)
	if id < 0 {
		return -1
	}
	for i, v := range l.CLDRPluralIDs {
		if v == id {
			return i
		}
	}
	return -1
}

// RelativeCLDRPlural maps a relative plural_form index back to the CLDR
// category name.
func (l *Locale) RelativeCLDRPlural(pluralForm int) (string, error) {
	if pluralForm < 0 || pluralForm >= len(l.CLDRPluralIDs) {
		return "", faults.Configuration("plural form " + strconv.Itoa(pluralForm) + " out of range for locale " + l.Code)
	}
	return CLDRPlurals[l.CLDRPluralIDs[pluralForm]], nil
}

func CLDRPluralID(name string) int {
	for i, n := range CLDRPlurals {
		if n == name {
			return i
		}
	}
	return -1
}

// ParseCLDRPlurals parses the stored comma-separated id list, e.g. "1,5".
// IDs must be in range and strictly ascending so canonical CLDR ordering
// is preserved.
func ParseCLDRPlurals(value string) ([]int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var ids []int
	prev := -1
	for _, part := range strings.Split(value, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, faults.Configuration("cldr plurals " + value + " must be a list of integers")
		}
		if id < 0 || id >= len(CLDRPlurals) {
			return nil, faults.Configuration("cldr plurals " + value + " must be a list of integers between 0 and 5")
		}
		if id <= prev {
			return nil, faults.Configuration("cldr plurals " + value + " must preserve canonical order")
		}
		ids = append(ids, id)
		prev = id
	}
	return ids, nil
}

func FormatCLDRPlurals(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
