package repository

import (
	"context"
	"strings"

	"github.com/go-logr/logr"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
	"github.com/crowdlate/crowdlate/vcs"
)

type DefaultManager struct {
	// Workdir is the root under which all project checkouts live.
	Workdir     string
	Credentials vcs.Credentials
	Log         logr.Logger

	// clientFor is swappable in tests.
	clientFor func(t model.VCSType, creds vcs.Credentials) (vcs.Client, error)
}

func NewDefaultManager(workdir string, creds vcs.Credentials, log logr.Logger) *DefaultManager {
	return &DefaultManager{
		Workdir:     workdir,
		Credentials: creds,
		Log:         log,
		clientFor:   vcs.ClientFor,
	}
}

func (m *DefaultManager) client(repo *model.Repository) (vcs.Client, error) {
	fn := m.clientFor
	if fn == nil {
		fn = vcs.ClientFor
	}
	return fn(repo.Type, m.Credentials)
}

func (m *DefaultManager) CheckoutPath(project *model.Project, repo *model.Repository) string {
	return repo.CheckoutPath(project.CheckoutPath(m.Workdir))
}

func (m *DefaultManager) LocaleCheckoutPath(project *model.Project, repo *model.Repository, locale *model.Locale) (string, error) {
	return repo.LocaleCheckoutPath(project.CheckoutPath(m.Workdir), locale)
}

// URLForPath scans the project's locales for the one whose checkout
// directory is a prefix of path. Overlapping locale directories are a
// layout error and stay undefined: the first match wins.
func (m *DefaultManager) URLForPath(project *model.Project, repo *model.Repository, locales []*model.Locale, path string) (string, error) {
	if !repo.MultiLocale() {
		return "", faults.Configuration("cannot resolve locale URL for non-multi-locale repo " + repo.URL)
	}
	for _, locale := range locales {
		checkout, err := repo.LocaleCheckoutPath(project.CheckoutPath(m.Workdir), locale)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(path, checkout) {
			return repo.LocaleURL(locale)
		}
	}
	return "", faults.Configuration("no locale checkout matches path " + path)
}

func (m *DefaultManager) Pull(ctx context.Context, project *model.Project, repo *model.Repository, locales []*model.Locale) (map[string]string, error) {
	client, err := m.client(repo)
	if err != nil {
		return nil, err
	}

	revisions := map[string]string{}
	if !repo.MultiLocale() {
		checkout := m.CheckoutPath(project, repo)
		if err := client.Update(ctx, repo.URL, checkout); err != nil {
			return nil, err
		}
		rev, err := client.Revision(ctx, checkout)
		if err != nil {
			return nil, err
		}
		revisions[model.SingleLocaleKey] = rev
		return revisions, nil
	}

	for _, locale := range locales {
		checkout, err := repo.LocaleCheckoutPath(project.CheckoutPath(m.Workdir), locale)
		if err != nil {
			return nil, err
		}
		url, err := repo.LocaleURL(locale)
		if err != nil {
			return nil, err
		}
		if err := client.Update(ctx, url, checkout); err != nil {
			return nil, err
		}
		rev, err := client.Revision(ctx, checkout)
		if err != nil {
			return nil, err
		}
		revisions[locale.Code] = rev
	}
	return revisions, nil
}

func (m *DefaultManager) Commit(ctx context.Context, project *model.Project, repo *model.Repository, locales []*model.Locale, message string, author vcs.Author, path string) error {
	if !repo.CanCommit() {
		return faults.Configuration("commits are not supported for repository type " + string(repo.Type))
	}

	url := repo.URL
	if repo.MultiLocale() {
		var err error
		url, err = m.URLForPath(project, repo, locales, path)
		if err != nil {
			return err
		}
	}

	client, err := m.client(repo)
	if err != nil {
		return err
	}
	m.Log.V(1).Info("committing to vcs", "repo", url, "path", path, "author", author.String())
	return client.Commit(ctx, path, message, author, url)
}

func (m *DefaultManager) CurrentRevisions(ctx context.Context, project *model.Project, repo *model.Repository, locales []*model.Locale) (map[string]string, error) {
	client, err := m.client(repo)
	if err != nil {
		return nil, err
	}

	revisions := map[string]string{}
	if !repo.MultiLocale() {
		rev, err := client.Revision(ctx, m.CheckoutPath(project, repo))
		if err != nil {
			return nil, err
		}
		revisions[model.SingleLocaleKey] = rev
		return revisions, nil
	}
	for _, locale := range locales {
		checkout, err := repo.LocaleCheckoutPath(project.CheckoutPath(m.Workdir), locale)
		if err != nil {
			return nil, err
		}
		rev, err := client.Revision(ctx, checkout)
		if err != nil {
			return nil, err
		}
		revisions[locale.Code] = rev
	}
	return revisions, nil
}
