package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/formats"
	"github.com/crowdlate/crowdlate/formats/builtin"
	"github.com/crowdlate/crowdlate/model"
	"github.com/crowdlate/crowdlate/storage"
	"github.com/crowdlate/crowdlate/vcs"
)

type commitRecord struct {
	message string
	author  vcs.Author
	path    string
}

// fakeRepoManager serves an already-materialized checkout directory and
// records commits instead of talking to a VCS.
type fakeRepoManager struct {
	checkout  string
	revision  string
	commits   []commitRecord
	commitErr error
}

func (f *fakeRepoManager) CheckoutPath(project *model.Project, repo *model.Repository) string {
	return f.checkout
}

func (f *fakeRepoManager) LocaleCheckoutPath(project *model.Project, repo *model.Repository, locale *model.Locale) (string, error) {
	return "", faults.Configuration("not a multi-locale repo")
}

func (f *fakeRepoManager) URLForPath(project *model.Project, repo *model.Repository, locales []*model.Locale, path string) (string, error) {
	return repo.URL, nil
}

func (f *fakeRepoManager) Pull(ctx context.Context, project *model.Project, repo *model.Repository, locales []*model.Locale) (map[string]string, error) {
	return map[string]string{model.SingleLocaleKey: f.revision}, nil
}

func (f *fakeRepoManager) Commit(ctx context.Context, project *model.Project, repo *model.Repository, locales []*model.Locale, message string, author vcs.Author, path string) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits = append(f.commits, commitRecord{message: message, author: author, path: path})
	return nil
}

func (f *fakeRepoManager) CurrentRevisions(ctx context.Context, project *model.Project, repo *model.Repository, locales []*model.Locale) (map[string]string, error) {
	return map[string]string{model.SingleLocaleKey: f.revision}, nil
}

const sourcePOT = `msgid ""
msgstr ""
"Content-Type: text/plain; charset=UTF-8\n"

msgid "Hello"
msgstr ""

msgid "Goodbye"
msgstr ""
`

const frenchPO = `msgid ""
msgstr ""
"Content-Type: text/plain; charset=UTF-8\n"

msgid "Hello"
msgstr "Bonjour"

msgid "Goodbye"
msgstr ""
`

type syncFixture struct {
	store   *storage.Store
	manager *fakeRepoManager
	syncer  *Syncer
	project *model.Project
	locale  *model.Locale
	repo    *model.Repository
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(filepath.Join(t.TempDir(), "crowdlate.db"), logr.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	locale := &model.Locale{Code: "fr", Name: "French"}
	if err := store.Locales().Create(ctx, locale); err != nil {
		t.Fatalf("create locale: %v", err)
	}
	project := &model.Project{Name: "Demo", Slug: "demo"}
	if err := store.Projects().Create(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if err := store.ProjectLocales().Create(ctx, &model.ProjectLocale{ProjectID: project.ID, LocaleID: locale.ID}); err != nil {
		t.Fatalf("create project locale: %v", err)
	}
	repo := &model.Repository{ProjectID: project.ID, Type: model.Git, URL: "https://example.org/demo"}
	if err := store.Repositories().Create(ctx, repo); err != nil {
		t.Fatalf("create repository: %v", err)
	}

	checkout := t.TempDir()
	writeFile(t, filepath.Join(checkout, "templates", "app.pot"), sourcePOT)
	writeFile(t, filepath.Join(checkout, "fr", "app.po"), frenchPO)

	manager := &fakeRepoManager{checkout: checkout, revision: "rev1"}
	registry := formats.NewRegistry()
	builtin.Register(registry)

	syncer := NewSyncer(Options{
		Store:        store,
		Repos:        manager,
		Registry:     registry,
		Log:          logr.Discard(),
		CommitAuthor: vcs.Author{Name: "Crowdlate", Email: "sync@crowdlate.example"},
	})
	return &syncFixture{
		store: store, manager: manager, syncer: syncer,
		project: project, locale: locale, repo: repo,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestSyncProjectImportsFromVCS(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	resource, err := f.store.Resources().ByPath(ctx, f.project.ID, "app.po")
	if err != nil {
		t.Fatalf("resource not created: %v", err)
	}
	if resource.TotalStrings != 2 {
		t.Errorf("total strings = %d, want 2", resource.TotalStrings)
	}

	entities, err := f.store.Entities().ForProject(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("list entities: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(entities))
	}

	var hello *model.Entity
	for _, e := range entities {
		if e.Key == "Hello" {
			hello = e
		}
	}
	if hello == nil {
		t.Fatal("Hello entity missing")
	}
	translations, err := f.store.Translations().ForEntityLocale(ctx, hello.ID, f.locale.ID)
	if err != nil {
		t.Fatalf("list translations: %v", err)
	}
	if len(translations) != 1 || translations[0].String != "Bonjour" || !translations[0].Approved {
		t.Fatalf("imported translation = %+v", translations)
	}

	tr, err := f.store.TranslatedResources().Get(ctx, resource.ID, f.locale.ID)
	if err != nil {
		t.Fatalf("translated resource: %v", err)
	}
	if tr.TotalStrings != 2 || tr.ApprovedStrings != 1 {
		t.Errorf("stats = %+v", tr.AggregatedStats)
	}

	repos, _ := f.store.Repositories().ForProject(ctx, f.project.ID)
	if repos[0].LastSyncedRevisions[model.SingleLocaleKey] != "rev1" {
		t.Errorf("synced revisions = %v", repos[0].LastSyncedRevisions)
	}
}

func TestSyncPushesDatabaseChangesToVCS(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	entities, _ := f.store.Entities().ForProject(ctx, f.project.ID)
	var goodbye *model.Entity
	for _, e := range entities {
		if e.Key == "Goodbye" {
			goodbye = e
		}
	}
	if goodbye == nil {
		t.Fatal("Goodbye entity missing")
	}

	user := &model.UserProfile{FirstName: "Ada", Email: "ada@example.org"}
	if err := f.store.Users().Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	err := f.store.Translations().Save(ctx, &model.Translation{
		EntityID: goodbye.ID, LocaleID: f.locale.ID, UserID: user.ID,
		String: "Au revoir", PluralForm: model.NoPluralForm,
		Approved: true, ApprovedUserID: user.ID,
	})
	if err != nil {
		t.Fatalf("save translation: %v", err)
	}

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(f.manager.checkout, "fr", "app.po"))
	if err != nil {
		t.Fatalf("read locale file: %v", err)
	}
	if !strings.Contains(string(content), `msgstr "Au revoir"`) {
		t.Errorf("locale file not updated:\n%s", content)
	}
	if len(f.manager.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(f.manager.commits))
	}
	commit := f.manager.commits[0]
	if !strings.Contains(commit.message, "French (fr)") {
		t.Errorf("commit message = %q", commit.message)
	}
	if commit.author.Email != "ada@example.org" {
		t.Errorf("commit author = %+v, want translator", commit.author)
	}

	// markers are consumed by the run
	needs, _ := f.store.Projects().NeedsSync(ctx, f.project.ID)
	if needs {
		t.Error("changed markers should be cleared after sync")
	}
}

func TestSyncKeepsApprovalWhenLocaleFileMissing(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	// the locale never landed in VCS, only the source template exists
	if err := os.Remove(filepath.Join(f.manager.checkout, "fr", "app.po")); err != nil {
		t.Fatalf("remove locale file: %v", err)
	}
	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	entities, _ := f.store.Entities().ForProject(ctx, f.project.ID)
	var goodbye *model.Entity
	for _, e := range entities {
		if e.Key == "Goodbye" {
			goodbye = e
		}
	}
	if err := f.store.Translations().Save(ctx, &model.Translation{
		EntityID: goodbye.ID, LocaleID: f.locale.ID, String: "Au revoir",
		PluralForm: model.NoPluralForm, Approved: true,
	}); err != nil {
		t.Fatalf("save translation: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
			t.Fatalf("sync %d: %v", i+2, err)
		}
	}

	needs, err := f.store.Projects().NeedsSync(ctx, f.project.ID)
	if err != nil {
		t.Fatalf("needs sync: %v", err)
	}
	if !needs {
		t.Error("marker must survive while the locale file cannot be written")
	}
	translations, _ := f.store.Translations().ForEntityLocale(ctx, goodbye.ID, f.locale.ID)
	if len(translations) != 1 || !translations[0].Approved || translations[0].Rejected {
		t.Errorf("approval must survive unpushed syncs, got %+v", translations)
	}
}

func TestSyncKeepsMarkersWhenCommitFails(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	entities, _ := f.store.Entities().ForProject(ctx, f.project.ID)
	var goodbye *model.Entity
	for _, e := range entities {
		if e.Key == "Goodbye" {
			goodbye = e
		}
	}
	if err := f.store.Translations().Save(ctx, &model.Translation{
		EntityID: goodbye.ID, LocaleID: f.locale.ID, String: "Au revoir",
		PluralForm: model.NoPluralForm, Approved: true,
	}); err != nil {
		t.Fatalf("save translation: %v", err)
	}

	f.manager.commitErr = errors.New("push rejected")
	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("sync with failing commit: %v", err)
	}
	needs, _ := f.store.Projects().NeedsSync(ctx, f.project.ID)
	if !needs {
		t.Fatal("marker must survive a failed commit")
	}

	f.manager.commitErr = nil
	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("retry sync: %v", err)
	}
	if len(f.manager.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(f.manager.commits))
	}
	needs, _ = f.store.Projects().NeedsSync(ctx, f.project.ID)
	if needs {
		t.Error("marker must be consumed once the commit lands")
	}
	translations, _ := f.store.Translations().ForEntityLocale(ctx, goodbye.ID, f.locale.ID)
	if len(translations) != 1 || !translations[0].Approved || translations[0].Rejected {
		t.Errorf("approval must survive the retry, got %+v", translations)
	}
}

func TestSyncRepeatedImportIsIdempotent(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	entities, _ := f.store.Entities().ForProject(ctx, f.project.ID)
	before := map[int64][]*model.Translation{}
	for _, e := range entities {
		translations, err := f.store.Translations().ForEntityLocale(ctx, e.ID, f.locale.ID)
		if err != nil {
			t.Fatalf("list translations: %v", err)
		}
		before[e.ID] = translations
	}

	// a new revision with byte-identical content
	f.manager.revision = "rev2"
	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	for _, e := range entities {
		after, err := f.store.Translations().ForEntityLocale(ctx, e.ID, f.locale.ID)
		if err != nil {
			t.Fatalf("list translations: %v", err)
		}
		if len(after) != len(before[e.ID]) {
			t.Fatalf("entity %s translations %d -> %d", e.Key, len(before[e.ID]), len(after))
		}
		for i, tr := range after {
			prev := before[e.ID][i]
			if tr.Approved != prev.Approved || tr.Rejected != prev.Rejected || tr.Fuzzy != prev.Fuzzy {
				t.Errorf("entity %s translation %q flags changed: %+v -> %+v", e.Key, tr.String, prev, tr)
			}
		}
	}
}

func TestSyncObsoletesRemovedEntities(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	trimmed := `msgid ""
msgstr ""
"Content-Type: text/plain; charset=UTF-8\n"

msgid "Hello"
msgstr ""
`
	writeFile(t, filepath.Join(f.manager.checkout, "templates", "app.pot"), trimmed)
	f.manager.revision = "rev2"

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	entities, _ := f.store.Entities().ForProject(ctx, f.project.ID)
	byKey := map[string]*model.Entity{}
	for _, e := range entities {
		byKey[e.Key] = e
	}
	if !byKey["Goodbye"].Obsolete {
		t.Error("Goodbye should be obsolete")
	}
	if byKey["Hello"].Obsolete {
		t.Error("Hello should stay live")
	}
}

func TestSyncSkipsWhenNothingChanged(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	before, _ := f.store.Entities().ForProject(ctx, f.project.ID)

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("no-op sync: %v", err)
	}
	after, _ := f.store.Entities().ForProject(ctx, f.project.ID)
	if len(before) != len(after) {
		t.Errorf("entities changed on a no-op run: %d -> %d", len(before), len(after))
	}
	if len(f.manager.commits) != 0 {
		t.Errorf("no-op run committed: %+v", f.manager.commits)
	}
}

func TestCreateExistingEntityMergesInsteadOfDuplicating(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	dbResources, _ := f.store.Resources().ForProject(ctx, f.project.ID)
	resources := map[string]*model.Resource{}
	for _, r := range dbResources {
		resources[r.Path] = r
	}

	// a concurrent run created Hello already; scheduling it for
	// creation again must fold into the existing rows
	changeset := NewChangeSet(f.store, nil, &VCSProject{Resources: map[string]*VCSResource{}},
		resources, time.Now(), logr.Discard())
	changeset.CreateDBEntity("app.po", &VCSEntity{
		Key: "Hello", String: "Hello",
		Translations: map[int64]*VCSTranslation{
			f.locale.ID: {Strings: map[int]string{0: "Bonjour"}},
		},
	})
	if err := changeset.Execute(ctx, []*model.Locale{f.locale}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	entities, _ := f.store.Entities().ForProject(ctx, f.project.ID)
	count := 0
	var hello *model.Entity
	for _, e := range entities {
		if e.Key == "Hello" {
			count++
			hello = e
		}
	}
	if count != 1 {
		t.Fatalf("Hello entities = %d, want 1", count)
	}
	translations, _ := f.store.Translations().ForEntityLocale(ctx, hello.ID, f.locale.ID)
	if len(translations) != 1 {
		t.Fatalf("Hello translations = %d, want 1", len(translations))
	}
}

func TestChangeSetIsSingleUse(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	changeset := NewChangeSet(f.store, nil, &VCSProject{Resources: map[string]*VCSResource{}},
		map[string]*model.Resource{}, time.Now(), logr.Discard())
	if err := changeset.Execute(ctx, nil); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	err := changeset.Execute(ctx, nil)
	if !faults.IsCategory(err, faults.IntegrityError) {
		t.Errorf("second execute error = %v, want IntegrityError", err)
	}
}

func TestVCSMergeRevokesStaleApprovals(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	// someone edits the file directly in VCS
	edited := strings.Replace(frenchPO, `msgstr "Bonjour"`, `msgstr "Salut"`, 1)
	writeFile(t, filepath.Join(f.manager.checkout, "fr", "app.po"), edited)
	f.manager.revision = "rev2"

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	entities, _ := f.store.Entities().ForProject(ctx, f.project.ID)
	var hello *model.Entity
	for _, e := range entities {
		if e.Key == "Hello" {
			hello = e
		}
	}
	translations, err := f.store.Translations().ForEntityLocale(ctx, hello.ID, f.locale.ID)
	if err != nil {
		t.Fatalf("list translations: %v", err)
	}
	byString := map[string]*model.Translation{}
	for _, tr := range translations {
		byString[tr.String] = tr
	}
	if tr := byString["Salut"]; tr == nil || !tr.Approved {
		t.Errorf("VCS edit should be imported approved, got %+v", byString["Salut"])
	}
	if tr := byString["Bonjour"]; tr == nil || tr.Approved || !tr.Rejected {
		t.Errorf("stale approval should be revoked and rejected, got %+v", byString["Bonjour"])
	}
}

func TestVCSMergeReapprovalClearsRejection(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	// the file flips to another string and back again
	edited := strings.Replace(frenchPO, `msgstr "Bonjour"`, `msgstr "Salut"`, 1)
	writeFile(t, filepath.Join(f.manager.checkout, "fr", "app.po"), edited)
	f.manager.revision = "rev2"
	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	writeFile(t, filepath.Join(f.manager.checkout, "fr", "app.po"), frenchPO)
	f.manager.revision = "rev3"
	if err := f.syncer.SyncProject(ctx, "demo"); err != nil {
		t.Fatalf("third sync: %v", err)
	}

	entities, _ := f.store.Entities().ForProject(ctx, f.project.ID)
	var hello *model.Entity
	for _, e := range entities {
		if e.Key == "Hello" {
			hello = e
		}
	}
	translations, err := f.store.Translations().ForEntityLocale(ctx, hello.ID, f.locale.ID)
	if err != nil {
		t.Fatalf("list translations: %v", err)
	}
	byString := map[string]*model.Translation{}
	for _, tr := range translations {
		byString[tr.String] = tr
	}
	bonjour := byString["Bonjour"]
	if bonjour == nil || !bonjour.Approved {
		t.Fatalf("restored string should be approved again, got %+v", bonjour)
	}
	if bonjour.Rejected || !bonjour.RejectedDate.IsZero() {
		t.Errorf("re-approval must clear the rejection, got %+v", bonjour)
	}
	if salut := byString["Salut"]; salut == nil || salut.Approved || !salut.Rejected {
		t.Errorf("superseded string should be revoked, got %+v", salut)
	}
}
