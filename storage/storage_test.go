package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

type fixture struct {
	store    *Store
	locale   *model.Locale
	project  *model.Project
	resource *model.Resource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "crowdlate.db"), logr.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	locale := &model.Locale{Code: "fr", Name: "French", CLDRPluralIDs: []int{1, 5}}
	if err := store.Locales().Create(ctx, locale); err != nil {
		t.Fatalf("create locale: %v", err)
	}
	project := &model.Project{Name: "Demo", Slug: "demo"}
	if err := store.Projects().Create(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	pl := &model.ProjectLocale{ProjectID: project.ID, LocaleID: locale.ID}
	if err := store.ProjectLocales().Create(ctx, pl); err != nil {
		t.Fatalf("create project locale: %v", err)
	}
	resource := &model.Resource{ProjectID: project.ID, Path: "app.po", Format: model.FormatPO, TotalStrings: 3}
	if err := store.Resources().Create(ctx, resource); err != nil {
		t.Fatalf("create resource: %v", err)
	}
	return &fixture{store: store, locale: locale, project: project, resource: resource}
}

func (f *fixture) entity(t *testing.T, key, str, plural string) *model.Entity {
	t.Helper()
	e := &model.Entity{ResourceID: f.resource.ID, Key: key, String: str, StringPlural: plural}
	if err := f.store.Entities().Create(context.Background(), e); err != nil {
		t.Fatalf("create entity: %v", err)
	}
	return e
}

func TestSaveEnforcesApprovalExclusivity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "hello", "Hello", "")

	first := &model.Translation{
		EntityID: e.ID, LocaleID: f.locale.ID, String: "Bonjour",
		PluralForm: model.NoPluralForm, Approved: true,
	}
	if err := f.store.Translations().Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	second := &model.Translation{
		EntityID: e.ID, LocaleID: f.locale.ID, String: "Salut",
		PluralForm: model.NoPluralForm, Approved: true,
	}
	if err := f.store.Translations().Save(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	reloaded, err := f.store.Translations().ByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("reload first: %v", err)
	}
	if reloaded.Approved {
		t.Error("first translation should have been unapproved")
	}
	current, err := f.store.Translations().ByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("reload second: %v", err)
	}
	if !current.Approved {
		t.Error("second translation should stay approved")
	}
}

func TestSaveCreatesMemoryEntryOnFirstApproval(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "hello", "Hello", "")

	tr := &model.Translation{
		EntityID: e.ID, LocaleID: f.locale.ID, String: "Bonjour",
		PluralForm: model.NoPluralForm, Approved: true,
	}
	if err := f.store.Translations().Save(ctx, tr); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := f.store.Translations().MemoryEntriesForLocale(ctx, f.locale.ID)
	if err != nil {
		t.Fatalf("list memory entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("memory entries = %d, want 1", len(entries))
	}
	if entries[0].Source != "Hello" || entries[0].Target != "Bonjour" {
		t.Errorf("memory entry = %q -> %q", entries[0].Source, entries[0].Target)
	}

	// a second approval cycle must not duplicate the entry
	tr.Approved = true
	if err := f.store.Translations().Save(ctx, tr); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	entries, _ = f.store.Translations().MemoryEntriesForLocale(ctx, f.locale.ID)
	if len(entries) != 1 {
		t.Errorf("memory entries after re-save = %d, want 1", len(entries))
	}
}

func TestSaveMarksEntityChanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "hello", "Hello", "")

	needs, err := f.store.Projects().NeedsSync(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("needs sync: %v", err)
	}
	if needs {
		t.Fatal("fresh project should not need sync")
	}

	tr := &model.Translation{
		EntityID: e.ID, LocaleID: f.locale.ID, String: "Bonjour",
		PluralForm: model.NoPluralForm, Approved: true,
	}
	if err := f.store.Translations().Save(ctx, tr); err != nil {
		t.Fatalf("save: %v", err)
	}
	needs, err = f.store.Projects().NeedsSync(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("needs sync: %v", err)
	}
	if !needs {
		t.Error("approved translation should mark the project for sync")
	}

	if err := f.store.Entities().ClearChangedPairs(ctx, f.locale.ID, []int64{e.ID}, time.Now()); err != nil {
		t.Fatalf("clear changed: %v", err)
	}
	needs, _ = f.store.Projects().NeedsSync(ctx, f.project.ID)
	if needs {
		t.Error("markers should be cleared")
	}

	// a marker younger than the cutoff stays put
	if err := f.store.Translations().Save(ctx, &model.Translation{
		EntityID: e.ID, LocaleID: f.locale.ID, String: "Salut",
		PluralForm: model.NoPluralForm, Approved: true,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.store.Entities().ClearChangedPairs(ctx, f.locale.ID, []int64{e.ID}, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("clear changed: %v", err)
	}
	needs, _ = f.store.Projects().NeedsSync(ctx, f.project.ID)
	if !needs {
		t.Error("marker newer than the cutoff should survive")
	}
}

func TestCalculateStatsPluralEntities(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	singular := f.entity(t, "one", "One", "")
	plural := f.entity(t, "files", "%d file", "%d files")

	save := func(entityID int64, form int, str string, approved, fuzzy bool) {
		t.Helper()
		err := f.store.Translations().Save(ctx, &model.Translation{
			EntityID: entityID, LocaleID: f.locale.ID, String: str,
			PluralForm: form, Approved: approved, Fuzzy: fuzzy,
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	save(singular.ID, model.NoPluralForm, "Un", true, false)
	// only one of two plural forms approved, so the entity counts as
	// translated rather than approved
	save(plural.ID, 0, "%d fichier", true, false)

	tr, err := f.store.TranslatedResources().Get(ctx, f.resource.ID, f.locale.ID)
	if err != nil {
		t.Fatalf("get translated resource: %v", err)
	}
	want := model.AggregatedStats{TotalStrings: 3, ApprovedStrings: 1, TranslatedStrings: 1}
	if diff := cmp.Diff(want, tr.AggregatedStats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	// completing the second form flips the entity to approved
	save(plural.ID, 1, "%d fichiers", true, false)
	tr, _ = f.store.TranslatedResources().Get(ctx, f.resource.ID, f.locale.ID)
	want = model.AggregatedStats{TotalStrings: 3, ApprovedStrings: 2}
	if diff := cmp.Diff(want, tr.AggregatedStats); diff != "" {
		t.Errorf("stats after completion (-want +got):\n%s", diff)
	}
}

func TestStatsCascadeToParents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "hello", "Hello", "")

	err := f.store.Translations().Save(ctx, &model.Translation{
		EntityID: e.ID, LocaleID: f.locale.ID, String: "Bonjour",
		PluralForm: model.NoPluralForm, Approved: true,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	project, err := f.store.Projects().BySlug(ctx, "demo")
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	if project.ApprovedStrings != 1 || project.TotalStrings != 3 {
		t.Errorf("project stats = %+v", project.AggregatedStats)
	}
	locale, err := f.store.Locales().ByCode(ctx, "fr")
	if err != nil {
		t.Fatalf("reload locale: %v", err)
	}
	if locale.ApprovedStrings != 1 {
		t.Errorf("locale stats = %+v", locale.AggregatedStats)
	}
	pl, err := f.store.ProjectLocales().Get(ctx, f.project.ID, f.locale.ID)
	if err != nil {
		t.Fatalf("reload project locale: %v", err)
	}
	if pl.ApprovedStrings != 1 {
		t.Errorf("project locale stats = %+v", pl.AggregatedStats)
	}
	if locale.LatestTranslationID == 0 || project.LatestTranslationID == 0 {
		t.Error("latest translation pointers should be set")
	}
}

func TestFindAndReplace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "hello", "Hello", "")

	err := f.store.Translations().Save(ctx, &model.Translation{
		EntityID: e.ID, LocaleID: f.locale.ID, String: "Bonjour monde",
		PluralForm: model.NoPluralForm, Approved: true,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	n, err := f.store.Translations().FindAndReplace(ctx, f.project.ID, f.locale.ID, "monde", "tout le monde", 0)
	if err != nil {
		t.Fatalf("find and replace: %v", err)
	}
	if n != 1 {
		t.Fatalf("replaced %d translations, want 1", n)
	}
	all, err := f.store.Translations().ForEntityLocale(ctx, e.ID, f.locale.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var approved *model.Translation
	for _, tr := range all {
		if tr.Approved {
			approved = tr
		}
	}
	if approved == nil || approved.String != "Bonjour tout le monde" {
		t.Fatalf("approved translation after replace = %+v", approved)
	}

	// a substitution that would empty the string is rejected up front
	_, err = f.store.Translations().FindAndReplace(ctx, f.project.ID, f.locale.ID, "Bonjour tout le monde", "", 0)
	if !faults.IsCategory(err, faults.NotAllowedError) {
		t.Errorf("empty replacement error = %v, want NotAllowedError", err)
	}
}

func TestFindAndReplaceAllowsEmptyInAsymmetricResources(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	props := &model.Resource{ProjectID: f.project.ID, Path: "app.properties", Format: model.FormatProperties, TotalStrings: 1}
	if err := f.store.Resources().Create(ctx, props); err != nil {
		t.Fatalf("create resource: %v", err)
	}
	e := &model.Entity{ResourceID: props.ID, Key: "title", String: "Title"}
	if err := f.store.Entities().Create(ctx, e); err != nil {
		t.Fatalf("create entity: %v", err)
	}
	if err := f.store.Translations().Save(ctx, &model.Translation{
		EntityID: e.ID, LocaleID: f.locale.ID, String: "Titre",
		PluralForm: model.NoPluralForm, Approved: true,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// emptying a value in an asymmetric resource falls back to the
	// source file, so it is allowed
	n, err := f.store.Translations().FindAndReplace(ctx, f.project.ID, f.locale.ID, "Titre", "", 0)
	if err != nil {
		t.Fatalf("find and replace: %v", err)
	}
	if n != 1 {
		t.Fatalf("replaced %d translations, want 1", n)
	}
}

func TestGetOrCreateEntity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	e := &model.Entity{ResourceID: f.resource.ID, Key: "hello", String: "Hello"}
	created, err := f.store.Entities().GetOrCreate(ctx, e)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !created {
		t.Fatal("first call should create")
	}
	again := &model.Entity{ResourceID: f.resource.ID, Key: "hello", String: "Hello"}
	created, err = f.store.Entities().GetOrCreate(ctx, again)
	if err != nil {
		t.Fatalf("get or create again: %v", err)
	}
	if created || again.ID != e.ID {
		t.Errorf("second call created=%v id=%d, want existing id %d", created, again.ID, e.ID)
	}
}

func TestRepositoryRevisionsRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	repo := &model.Repository{
		ProjectID: f.project.ID, Type: model.Git,
		URL: "https://example.org/l10n/{locale_code}/",
	}
	if err := f.store.Repositories().Create(ctx, repo); err != nil {
		t.Fatalf("create repository: %v", err)
	}
	revisions := map[string]string{"fr": "abc123", "de": "def456"}
	if err := f.store.Repositories().SetLastSyncedRevisions(ctx, repo.ID, revisions); err != nil {
		t.Fatalf("set revisions: %v", err)
	}
	repos, err := f.store.Repositories().ForProject(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("list repositories: %v", err)
	}
	if len(repos) != 1 {
		t.Fatalf("repositories = %d, want 1", len(repos))
	}
	if diff := cmp.Diff(revisions, repos[0].LastSyncedRevisions); diff != "" {
		t.Errorf("revisions mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateLocaleStatsSkipsDisabledProjects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "hello", "Hello", "")

	err := f.store.Translations().Save(ctx, &model.Translation{
		EntityID: e.ID, LocaleID: f.locale.ID, String: "Bonjour",
		PluralForm: model.NoPluralForm, Approved: true,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := f.store.DB.Exec(`UPDATE projects SET disabled = 1 WHERE id = ?`, f.project.ID); err != nil {
		t.Fatalf("disable project: %v", err)
	}
	if err := f.store.AggregateLocaleStats(ctx, f.locale.ID); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	locale, err := f.store.Locales().ByCode(ctx, "fr")
	if err != nil {
		t.Fatalf("reload locale: %v", err)
	}
	if locale.TotalStrings != 0 || locale.ApprovedStrings != 0 {
		t.Errorf("locale stats after disable = %+v, want zero", locale.AggregatedStats)
	}
}

func TestStatusCounts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	approved := f.entity(t, "a", "A", "")
	missing := f.entity(t, "b", "B", "")
	suggested := f.entity(t, "c", "C", "")

	save := func(entityID int64, str string, isApproved, fuzzy bool) {
		t.Helper()
		err := f.store.Translations().Save(ctx, &model.Translation{
			EntityID: entityID, LocaleID: f.locale.ID, String: str,
			PluralForm: model.NoPluralForm, Approved: isApproved, Fuzzy: fuzzy,
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	save(approved.ID, "A", true, false)
	save(suggested.ID, "C'", false, false)

	counts, err := f.store.Entities().StatusCounts(ctx, f.resource.ID, f.locale)
	if err != nil {
		t.Fatalf("status counts: %v", err)
	}
	if c := counts[approved.ID]; c.Approved != 1 || c.Unchanged != 1 {
		t.Errorf("approved entity counts = %+v", c)
	}
	if c := counts[missing.ID]; c.Approved != 0 || c.Suggested != 0 || c.Fuzzy != 0 {
		t.Errorf("missing entity counts = %+v", c)
	}
	if c := counts[suggested.ID]; c.Suggested != 1 {
		t.Errorf("suggested entity counts = %+v", c)
	}
}

func TestAsymmetricPathsForEntities(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	props := &model.Resource{ProjectID: f.project.ID, Path: "app.properties", Format: model.FormatProperties, TotalStrings: 1}
	if err := f.store.Resources().Create(ctx, props); err != nil {
		t.Fatalf("create resource: %v", err)
	}
	inPO := f.entity(t, "hello", "Hello", "")
	inProps := &model.Entity{ResourceID: props.ID, Key: "title", String: "Title"}
	if err := f.store.Entities().Create(ctx, inProps); err != nil {
		t.Fatalf("create entity: %v", err)
	}

	paths, err := f.store.Resources().AsymmetricPathsForEntities(ctx, []int64{inPO.ID, inProps.ID})
	if err != nil {
		t.Fatalf("asymmetric paths: %v", err)
	}
	if diff := cmp.Diff([]string{"app.properties"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	paths, err = f.store.Resources().AsymmetricPathsForEntities(ctx, nil)
	if err != nil {
		t.Fatalf("asymmetric paths: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected no paths for empty entity list, got %v", paths)
	}
}
