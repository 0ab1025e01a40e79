package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/crowdlate/crowdlate/checks"
	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/formats"
	"github.com/crowdlate/crowdlate/metrics"
	"github.com/crowdlate/crowdlate/model"
	"github.com/crowdlate/crowdlate/repository"
	"github.com/crowdlate/crowdlate/storage"
	"github.com/crowdlate/crowdlate/vcs"
)

// Options wires a Syncer. Store, Repos and Registry are required.
type Options struct {
	Store    *storage.Store
	Repos    repository.Manager
	Registry *formats.Registry
	Checker  checks.Checker
	Metrics  *metrics.SyncMetrics
	Log      logr.Logger

	// CommitAuthor signs sync commits when no translator authored the
	// pushed changes.
	CommitAuthor vcs.Author

	// Now is swappable for tests.
	Now func() time.Time
}

// Syncer drives full project sync runs: pull, reconcile, push.
type Syncer struct {
	opts Options
}

func NewSyncer(opts Options) *Syncer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Checker == nil {
		opts.Checker = checks.NewDefaultChecker()
	}
	return &Syncer{opts: opts}
}

// SyncAll runs SyncProject for every enabled project, at most
// concurrency projects at a time. Individual project failures are
// logged and do not stop the others.
func (s *Syncer) SyncAll(ctx context.Context, concurrency int) error {
	projects, err := s.opts.Store.Projects().Syncable(ctx)
	if err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, project := range projects {
		slug := project.Slug
		g.Go(func() error {
			if err := s.SyncProject(ctx, slug); err != nil {
				s.opts.Log.Error(err, "project sync failed", "project", slug)
			}
			return nil
		})
	}
	return g.Wait()
}

// SyncProject runs one full sync cycle for the project. The run is
// skipped when neither side changed since the last cycle.
func (s *Syncer) SyncProject(ctx context.Context, slug string) (err error) {
	start := s.opts.Now()
	log := s.opts.Log.WithValues("project", slug)

	defer func() {
		if s.opts.Metrics == nil {
			return
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.opts.Metrics.SyncsTotal.WithLabelValues(slug, result).Inc()
		s.opts.Metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	store := s.opts.Store
	project, err := store.Projects().BySlug(ctx, slug)
	if err != nil {
		return err
	}
	if project.Disabled {
		return faults.NotAllowed("project " + slug + " is disabled")
	}
	locales, err := store.ProjectLocales().LocalesForProject(ctx, project.ID)
	if err != nil {
		return err
	}
	repos, err := store.Repositories().ForProject(ctx, project.ID)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return faults.Configuration("project " + slug + " has no repositories")
	}

	pulled := map[int64]map[string]string{}
	repoChanged := false
	for _, repo := range repos {
		revisions, err := s.opts.Repos.Pull(ctx, project, repo, locales)
		if err != nil {
			return err
		}
		pulled[repo.ID] = revisions
		if !sameRevisions(repo.LastSyncedRevisions, revisions) {
			repoChanged = true
		}
	}
	dbChanged, err := store.Projects().NeedsSync(ctx, project.ID)
	if err != nil {
		return err
	}
	if !repoChanged && !dbChanged {
		log.V(1).Info("nothing to sync")
		return nil
	}

	layout, err := s.resolveLayout(project, repos, locales, log)
	if err != nil {
		return err
	}
	vcsProject, err := LoadVCSProject(s.opts.Registry, layout, locales, log)
	if err != nil {
		return err
	}

	resources, err := s.syncResources(ctx, project, vcsProject)
	if err != nil {
		return err
	}

	changeset, obsoleted, err := s.buildChangeSet(ctx, project, vcsProject, resources, locales, start, log)
	if err != nil {
		return err
	}
	if err := changeset.Execute(ctx, locales); err != nil {
		return err
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.EntitiesCreated.Add(float64(len(changeset.createDB)))
		s.opts.Metrics.EntitiesObsoleted.Add(float64(obsoleted))
	}

	committed := s.commitChangedLocales(ctx, project, repos, locales, changeset, log)

	if err := s.clearSyncedMarkers(ctx, changeset, committed, start); err != nil {
		return err
	}
	for _, repo := range repos {
		current, err := s.opts.Repos.CurrentRevisions(ctx, project, repo, locales)
		if err != nil {
			log.Error(err, "reading synced revisions failed", "repo", repo.URL)
			current = pulled[repo.ID]
		}
		if err := store.Repositories().SetLastSyncedRevisions(ctx, repo.ID, current); err != nil {
			return err
		}
	}
	log.Info("sync complete",
		"resources", len(resources), "locales", len(locales),
		"duration", time.Since(start).String())
	return nil
}

func (s *Syncer) resolveLayout(project *model.Project, repos []*model.Repository, locales []*model.Locale, log logr.Logger) (checkoutLayout, error) {
	layout := checkoutLayout{localeDirs: map[int64]string{}}

	for _, repo := range repos {
		checkout := s.opts.Repos.CheckoutPath(project, repo)
		if repo.SourceRepo {
			layout.sourceDir = checkout
			continue
		}
		if layout.sourceDir == "" {
			if dir, ok := findSourceDir(checkout); ok {
				layout.sourceDir = dir
			}
		}
		for _, locale := range locales {
			if _, ok := layout.localeDirs[locale.ID]; ok {
				continue
			}
			if repo.MultiLocale() {
				dir, err := s.opts.Repos.LocaleCheckoutPath(project, repo, locale)
				if err != nil {
					return layout, err
				}
				if _, statErr := os.Stat(dir); statErr == nil {
					layout.localeDirs[locale.ID] = dir
				}
				continue
			}
			if dir, ok := findLocaleDir(checkout, locale); ok {
				layout.localeDirs[locale.ID] = dir
			}
		}
	}
	if layout.sourceDir == "" {
		return layout, faults.Configuration("project " + project.Slug + " has no source directory")
	}

	// bootstrap missing locale folders next to the existing ones so new
	// locales pick up asymmetric resources on their first run
	for _, locale := range locales {
		if _, ok := layout.localeDirs[locale.ID]; ok {
			continue
		}
		dir := filepath.Join(filepath.Dir(layout.sourceDir), locale.Code)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error(err, "cannot create locale directory", "locale", locale.Code)
			continue
		}
		layout.localeDirs[locale.ID] = dir
	}
	return layout, nil
}

// syncResources reconciles the resource table with the files found on
// disk and returns them keyed by path.
func (s *Syncer) syncResources(ctx context.Context, project *model.Project, vcsProject *VCSProject) (map[string]*model.Resource, error) {
	store := s.opts.Store
	existing, err := store.Resources().ForProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	out := map[string]*model.Resource{}
	for _, r := range existing {
		out[r.Path] = r
	}

	paths := make([]string, 0, len(vcsProject.Resources))
	for p := range vcsProject.Resources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		vcsResource := vcsProject.Resources[p]
		resource, ok := out[p]
		if !ok {
			format, err := model.PathFormat(p)
			if err != nil {
				continue
			}
			resource = &model.Resource{
				ProjectID:    project.ID,
				Path:         p,
				Format:       format,
				TotalStrings: len(vcsResource.Entities),
			}
			if err := store.Resources().Create(ctx, resource); err != nil {
				return nil, err
			}
			out[p] = resource
			continue
		}
		if resource.TotalStrings != len(vcsResource.Entities) {
			resource.TotalStrings = len(vcsResource.Entities)
			if err := store.Resources().SetTotalStrings(ctx, resource.ID, resource.TotalStrings); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// buildChangeSet pairs database entities with VCS entities by resource
// path and key and routes each pair. Database-side pending work, marked
// per (entity, locale), wins the direction; everything else flows
// VCS to database.
func (s *Syncer) buildChangeSet(ctx context.Context, project *model.Project, vcsProject *VCSProject, resources map[string]*model.Resource, locales []*model.Locale, start time.Time, log logr.Logger) (*ChangeSet, int, error) {
	store := s.opts.Store
	changeset := NewChangeSet(store, s.opts.Checker, vcsProject, resources, start, log)

	dbEntities, err := store.Entities().ForProject(ctx, project.ID)
	if err != nil {
		return nil, 0, err
	}
	changedMarkers, err := store.Entities().ChangedLocales(ctx, project.ID)
	if err != nil {
		return nil, 0, err
	}

	byResource := map[int64]map[string]*model.Entity{}
	for _, e := range dbEntities {
		if e.Obsolete {
			continue
		}
		if byResource[e.ResourceID] == nil {
			byResource[e.ResourceID] = map[string]*model.Entity{}
		}
		byResource[e.ResourceID][e.Key] = e
	}

	obsoleted := 0
	for path, resource := range resources {
		vcsResource := vcsProject.Resources[path]
		dbByKey := byResource[resource.ID]

		if vcsResource == nil {
			// the file left VCS entirely
			for _, dbEntity := range dbByKey {
				changeset.ObsoleteDBEntity(dbEntity)
				obsoleted++
			}
			continue
		}
		for key, vcsEntity := range vcsResource.Entities {
			dbEntity := dbByKey[key]
			if dbEntity == nil {
				changeset.CreateDBEntity(path, vcsEntity)
				continue
			}
			for _, locale := range locales {
				if changedMarkers[dbEntity.ID][locale.ID] {
					changeset.UpdateVCSEntity(locale, dbEntity, vcsEntity)
					continue
				}
				if vcsEntity.Translations[locale.ID] == nil {
					// nothing on the file side to merge; merging anyway
					// would revoke database approvals
					continue
				}
				changeset.UpdateDBEntity(locale, dbEntity, vcsEntity)
			}
		}
		for key, dbEntity := range dbByKey {
			if _, ok := vcsResource.Entities[key]; !ok {
				changeset.ObsoleteDBEntity(dbEntity)
				obsoleted++
			}
		}
	}
	return changeset, obsoleted, nil
}

// commitChangedLocales pushes a commit per changed locale and reports
// which locales landed completely. Failures are transient by nature, so
// they are logged and the locale keeps its markers for the next cycle.
func (s *Syncer) commitChangedLocales(ctx context.Context, project *model.Project, repos []*model.Repository, locales []*model.Locale, changeset *ChangeSet, log logr.Logger) map[int64]bool {
	committed := map[int64]bool{}
	for _, locale := range locales {
		if !changeset.ChangedLocales[locale.ID] {
			continue
		}
		author, coAuthors := s.commitAuthors(ctx, changeset.CommitAuthors[locale.ID])
		message := commitMessage(project, locale, coAuthors)

		ok := true
		for _, repo := range repos {
			if !repo.CanCommit() || repo.SourceRepo {
				continue
			}
			path := s.opts.Repos.CheckoutPath(project, repo)
			if repo.MultiLocale() {
				localePath, err := s.opts.Repos.LocaleCheckoutPath(project, repo, locale)
				if err != nil {
					log.Error(err, "commit skipped", "locale", locale.Code)
					ok = false
					continue
				}
				path = localePath
			}
			if err := s.opts.Repos.Commit(ctx, project, repo, locales, message, author, path); err != nil {
				log.Error(err, "commit failed", "locale", locale.Code, "repo", repo.URL)
				ok = false
				if s.opts.Metrics != nil {
					s.opts.Metrics.LocaleFailures.WithLabelValues(locale.Code).Inc()
				}
				continue
			}
			if s.opts.Metrics != nil {
				s.opts.Metrics.CommitsTotal.WithLabelValues(locale.Code).Inc()
			}
		}
		committed[locale.ID] = ok
	}
	return committed
}

// clearSyncedMarkers consumes the changed markers whose database work
// both reached the locale file and, when a commit was needed, actually
// landed. Everything else stays marked so the next run retries.
func (s *Syncer) clearSyncedMarkers(ctx context.Context, changeset *ChangeSet, committed map[int64]bool, before time.Time) error {
	for localeID, entityIDs := range changeset.syncedPairs {
		if changeset.ChangedLocales[localeID] && !committed[localeID] {
			continue
		}
		if err := s.opts.Store.Entities().ClearChangedPairs(ctx, localeID, entityIDs, before); err != nil {
			return err
		}
	}
	return nil
}

// commitAuthors resolves the user IDs behind a locale's pushed changes.
// The first author signs the commit; the rest become co-authors.
func (s *Syncer) commitAuthors(ctx context.Context, userIDs []int64) (vcs.Author, []vcs.Author) {
	author := s.opts.CommitAuthor
	var coAuthors []vcs.Author
	seen := map[int64]bool{}
	first := true
	for _, id := range userIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		user, err := s.opts.Store.Users().ByID(ctx, id)
		if err != nil {
			continue
		}
		a := vcs.Author{Name: user.NameOrEmail(), Email: user.Email}
		if first {
			author = a
			first = false
			continue
		}
		coAuthors = append(coAuthors, a)
	}
	return author, coAuthors
}

func commitMessage(project *model.Project, locale *model.Locale, coAuthors []vcs.Author) string {
	message := fmt.Sprintf("Crowdlate: Update %s (%s) localization of %s",
		locale.Name, locale.Code, project.Name)
	if len(coAuthors) > 0 {
		message += "\n"
		for _, a := range coAuthors {
			message += fmt.Sprintf("\nCo-authored-by: %s", a.String())
		}
	}
	return message
}

func sameRevisions(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
