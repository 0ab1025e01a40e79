// Package repository maps a project's VCS repositories to filesystem
// checkouts and drives pull/commit against them. A single Repository
// row covers both topologies: one repo holding many locale folders, and
// a URL-templated family of per-locale repos.
package repository

import (
	"context"

	"github.com/crowdlate/crowdlate/model"
	"github.com/crowdlate/crowdlate/vcs"
)

type Manager interface {
	// CheckoutPath is the on-disk location of the repo checkout (the
	// shared parent directory for multi-locale repos).
	CheckoutPath(project *model.Project, repo *model.Repository) string

	// LocaleCheckoutPath resolves the per-locale checkout of a
	// multi-locale repo.
	LocaleCheckoutPath(project *model.Project, repo *model.Repository, locale *model.Locale) (string, error)

	// URLForPath finds the locale-specific remote URL whose checkout
	// contains path.
	URLForPath(project *model.Project, repo *model.Repository, locales []*model.Locale, path string) (string, error)

	// Pull updates the checkout(s) from VCS and returns the resulting
	// revisions keyed by locale code, or by model.SingleLocaleKey for
	// single-locale repos.
	Pull(ctx context.Context, project *model.Project, repo *model.Repository, locales []*model.Locale) (map[string]string, error)

	// Commit records pending changes under path and propagates them to
	// the matching remote.
	Commit(ctx context.Context, project *model.Project, repo *model.Repository, locales []*model.Locale, message string, author vcs.Author, path string) error

	// CurrentRevisions reads the on-disk revision(s) without touching
	// the network, for recording as last-synced state.
	CurrentRevisions(ctx context.Context, project *model.Project, repo *model.Repository, locales []*model.Locale) (map[string]string, error)
}
