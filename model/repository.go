package model

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/crowdlate/crowdlate/faults"
)

type VCSType string

const (
	Git VCSType = "git"
	Hg  VCSType = "hg"
	Svn VCSType = "svn"
)

// LocaleCodePlaceholder in a repository URL marks a multi-locale repo:
// one physical checkout per project locale, with the placeholder replaced
// by each locale code.
const LocaleCodePlaceholder = "{locale_code}"

// SingleLocaleKey is the sentinel key used in LastSyncedRevisions for
// repositories that are not multi-locale.
const SingleLocaleKey = "single_locale"

type Repository struct {
	ID        int64
	ProjectID int64
	Type      VCSType
	URL       string

	// PermalinkPrefix is the resource URL prefix for direct downloads.
	PermalinkPrefix string

	// LastSyncedRevisions maps locale code (or SingleLocaleKey) to the
	// VCS revision on disk at the last successful sync.
	LastSyncedRevisions map[string]string

	// SourceRepo repos hold canonical source strings in their root;
	// checkouts get "templates" appended so they are detected as source
	// directories.
	SourceRepo bool
}

func (r *Repository) MultiLocale() bool {
	return strings.Contains(r.URL, LocaleCodePlaceholder)
}

func (r *Repository) CanCommit() bool {
	switch r.Type {
	case Git, Hg, Svn:
		return true
	}
	return false
}

// CheckoutPath is where the repo checkout lives under the project
// checkout root. URL path components are kept so per-locale repos like
// https://hg.example.org/l10n/fr/ land in distinct directories; the
// locale placeholder itself is dropped for multi-locale repos.
func (r *Repository) CheckoutPath(projectCheckout string) string {
	components := []string{projectCheckout}

	if u, err := url.Parse(r.URL); err == nil {
		for _, c := range strings.Split(u.Path, "/") {
			if c == "" {
				continue
			}
			if r.MultiLocale() && c == LocaleCodePlaceholder {
				continue
			}
			components = append(components, c)
		}
	}

	if r.SourceRepo {
		components = append(components, "templates")
	}

	return strings.TrimRight(filepath.Join(components...), string(filepath.Separator))
}

// LocaleCheckoutPath is the checkout directory for one locale of a
// multi-locale repo.
func (r *Repository) LocaleCheckoutPath(projectCheckout string, locale *Locale) (string, error) {
	if !r.MultiLocale() {
		return "", faults.Configuration("cannot get locale checkout path for non-multi-locale repo " + r.URL)
	}
	return filepath.Join(r.CheckoutPath(projectCheckout), locale.Code), nil
}

// LocaleURL substitutes the locale code into the templated URL.
func (r *Repository) LocaleURL(locale *Locale) (string, error) {
	if !r.MultiLocale() {
		return "", faults.Configuration("cannot get locale URL for non-multi-locale repo " + r.URL)
	}
	return strings.ReplaceAll(r.URL, LocaleCodePlaceholder, locale.Code), nil
}
