// Package checks runs quality checks against translations and reports
// the failures the storage layer persists.
package checks

import (
	"regexp"
	"strings"

	"github.com/crowdlate/crowdlate/model"
)

// Checker produces the failing checks for one translation. An empty
// result means the translation is clean.
type Checker interface {
	Check(entity *model.Entity, translation *model.Translation) []model.FailingCheck
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

var printfToken = regexp.MustCompile(`%(?:\d+\$)?[-+ #0]*\d*(?:\.\d+)?[bcdeEfFgGosuxX]`)

// DefaultChecker is the built-in rule set. Rules that would block a
// save are errors; stylistic drift is a warning.
type DefaultChecker struct{}

func NewDefaultChecker() *DefaultChecker {
	return &DefaultChecker{}
}

func (c *DefaultChecker) Check(entity *model.Entity, translation *model.Translation) []model.FailingCheck {
	if entity == nil || translation == nil {
		return nil
	}
	var out []model.FailingCheck
	fail := func(severity, message string) {
		out = append(out, model.FailingCheck{
			TranslationID: translation.ID,
			Severity:      severity,
			Message:       message,
		})
	}

	source := entity.String
	if entity.HasPlural() && translation.PluralForm > 0 {
		source = entity.StringPlural
	}

	if strings.TrimSpace(translation.String) == "" {
		fail(SeverityError, "translation is empty")
		return out
	}

	want := printfToken.FindAllString(source, -1)
	got := printfToken.FindAllString(translation.String, -1)
	if !sameTokens(want, got) {
		fail(SeverityError, "printf placeholders do not match source")
	}

	if strings.HasSuffix(source, "\n") != strings.HasSuffix(translation.String, "\n") {
		fail(SeverityWarning, "trailing newline differs from source")
	}
	if leadingSpace(source) != leadingSpace(translation.String) {
		fail(SeverityWarning, "leading whitespace differs from source")
	}
	return out
}

func sameTokens(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	seen := map[string]int{}
	for _, w := range want {
		seen[w]++
	}
	for _, g := range got {
		if seen[g] == 0 {
			return false
		}
		seen[g]--
	}
	return true
}

func leadingSpace(s string) bool {
	return s != strings.TrimLeft(s, " \t")
}
