package model

import (
	"strings"
	"time"
)

// KeySeparator is the Translate-Toolkit separator between a key and the
// source string inside Entity.Key.
const KeySeparator = "\x04"

// Entity is one translatable unit within a resource. Entities are owned
// by the sync engine; the UI never creates or mutates them. Obsolete
// entities are kept forever so translation history and TM entries
// survive.
type Entity struct {
	ID           int64
	ResourceID   int64
	String       string
	StringPlural string
	Key          string
	Comment      string
	Order        int
	Source       []string
	Obsolete     bool
	DateCreated  time.Time
}

func (e *Entity) HasPlural() bool {
	return e.StringPlural != ""
}

// CleanedKey strips the source string and Translate-Toolkit separator
// from the key. Keys equal to the source string collapse to empty.
func (e *Entity) CleanedKey() string {
	key := strings.SplitN(e.Key, KeySeparator, 2)[0]
	if key == e.String {
		return ""
	}
	return key
}

// ExpectedTranslationCount is how many plural forms a complete answer
// set for this entity requires in the given locale.
func (e *Entity) ExpectedTranslationCount(locale *Locale) int {
	if !e.HasPlural() {
		return 1
	}
	return locale.NPlurals()
}

// ChangedEntityLocale records that DB-side translations for an entity in
// one locale changed since the last sync pushed that locale to VCS.
// Unique per (entity, locale).
type ChangedEntityLocale struct {
	ID       int64
	EntityID int64
	LocaleID int64
	When     time.Time
}
