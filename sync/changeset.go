package sync

import (
	"context"
	"sort"
	"time"

	"github.com/go-logr/logr"

	"github.com/crowdlate/crowdlate/checks"
	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
	"github.com/crowdlate/crowdlate/storage"
)

type entityChange struct {
	locale *model.Locale
	db     *model.Entity
	vcs    *VCSEntity
}

// ChangeSet accumulates the four kinds of reconciliation outcome and
// applies them all at once. A changeset is single use: Execute refuses
// to run twice because the accumulated changes are relative to the
// database state observed before the first run.
type ChangeSet struct {
	store     *storage.Store
	checker   checks.Checker
	vcs       *VCSProject
	resources map[string]*model.Resource
	start     time.Time
	log       logr.Logger

	executed bool

	updateVCS  []entityChange
	createDB   []createChange
	updateDB   []entityChange
	obsoleteDB []*model.Entity

	// CommitAuthors collects, per locale ID, the users whose database
	// translations were pushed out to VCS in this run.
	CommitAuthors map[int64][]int64

	// ChangedLocales is the set of locale IDs with dirty files to
	// commit.
	ChangedLocales map[int64]bool

	// syncedPairs records, per locale ID, the entities whose pending
	// database work reached the locale file. Only these pairs may have
	// their changed markers consumed after the run.
	syncedPairs map[int64][]int64

	touched       map[int64]map[int64]bool // resource ID -> locale IDs needing a recount
	toCheck       []checkTarget
	newlyApproved []int64
}

type checkTarget struct {
	entity      *model.Entity
	translation *model.Translation
}

func NewChangeSet(store *storage.Store, checker checks.Checker, vcs *VCSProject, resources map[string]*model.Resource, start time.Time, log logr.Logger) *ChangeSet {
	return &ChangeSet{
		store:          store,
		checker:        checker,
		vcs:            vcs,
		resources:      resources,
		start:          start,
		log:            log,
		CommitAuthors:  map[int64][]int64{},
		ChangedLocales: map[int64]bool{},
		syncedPairs:    map[int64][]int64{},
		touched:        map[int64]map[int64]bool{},
	}
}

// UpdateVCSEntity schedules pushing the database translations of the
// entity out to the locale's file. Chosen when the entity carries a
// changed marker for the locale, so reviewed database work wins over
// concurrent VCS edits.
func (c *ChangeSet) UpdateVCSEntity(locale *model.Locale, db *model.Entity, vcs *VCSEntity) {
	c.updateVCS = append(c.updateVCS, entityChange{locale: locale, db: db, vcs: vcs})
}

type createChange struct {
	resourcePath string
	vcs          *VCSEntity
}

// CreateDBEntity schedules creating a database entity for a unit that
// exists only in VCS, along with translations for every locale.
func (c *ChangeSet) CreateDBEntity(resourcePath string, vcs *VCSEntity) {
	c.createDB = append(c.createDB, createChange{resourcePath: resourcePath, vcs: vcs})
}

// UpdateDBEntity schedules refreshing the database from the locale's
// file. The default direction when the database has no pending work.
func (c *ChangeSet) UpdateDBEntity(locale *model.Locale, db *model.Entity, vcs *VCSEntity) {
	c.updateDB = append(c.updateDB, entityChange{locale: locale, db: db, vcs: vcs})
}

// ObsoleteDBEntity schedules soft-deleting an entity that disappeared
// from VCS.
func (c *ChangeSet) ObsoleteDBEntity(db *model.Entity) {
	c.obsoleteDB = append(c.obsoleteDB, db)
}

// Execute applies the accumulated changes: VCS files first so database
// reads are untainted, then database creations, updates and
// obsoletions, then the derived state (checks, translation memory,
// stats).
func (c *ChangeSet) Execute(ctx context.Context, locales []*model.Locale) error {
	if c.executed {
		return faults.Integrity("changeset was already executed")
	}
	c.executed = true

	if err := c.executeUpdateVCS(ctx); err != nil {
		return err
	}
	if err := c.executeCreateDB(ctx, locales); err != nil {
		return err
	}
	if err := c.executeUpdateDB(ctx); err != nil {
		return err
	}
	obsoleteIDs := make([]int64, 0, len(c.obsoleteDB))
	for _, e := range c.obsoleteDB {
		obsoleteIDs = append(obsoleteIDs, e.ID)
		for _, locale := range locales {
			c.touch(e.ResourceID, locale.ID)
		}
	}
	if err := c.store.Entities().MarkObsolete(ctx, obsoleteIDs); err != nil {
		return err
	}
	if err := c.runChecks(ctx); err != nil {
		return err
	}
	if err := c.store.Translations().CreateMemoryEntriesIfMissing(ctx, c.newlyApproved); err != nil {
		return err
	}
	return c.recountStats(ctx, locales)
}

func (c *ChangeSet) executeUpdateVCS(ctx context.Context) error {
	dirty := map[int64]map[*model.Locale]bool{} // resource ID -> locales with edits
	for _, change := range c.updateVCS {
		resource := c.resourceByID(change.db.ResourceID)
		if resource == nil {
			continue
		}
		vcsResource := c.vcs.Resources[resource.Path]
		if vcsResource == nil {
			continue
		}
		file := vcsResource.File(change.locale.ID)
		if file == nil {
			c.log.V(1).Info("no locale file to update",
				"resource", resource.Path, "locale", change.locale.Code)
			continue
		}

		translations, err := c.store.Translations().ForEntityLocale(ctx, change.db.ID, change.locale.ID)
		if err != nil {
			return err
		}
		strings := map[int]string{}
		fuzzy := false
		for _, t := range translations {
			if !t.Approved {
				continue
			}
			strings[dbToFileForm(t.PluralForm)] = t.String
			if t.Fuzzy {
				fuzzy = true
			}
			if t.UserID != 0 {
				c.CommitAuthors[change.locale.ID] = append(c.CommitAuthors[change.locale.ID], t.UserID)
			}
		}
		if len(strings) == 0 {
			// the pending change removed every approval; there is
			// nothing to write, so the marker is spent
			c.syncedPairs[change.locale.ID] = append(c.syncedPairs[change.locale.ID], change.db.ID)
			continue
		}
		if err := file.UpdateFromDB(change.db.Key, strings, fuzzy); err != nil {
			return err
		}
		c.syncedPairs[change.locale.ID] = append(c.syncedPairs[change.locale.ID], change.db.ID)
		if dirty[resource.ID] == nil {
			dirty[resource.ID] = map[*model.Locale]bool{}
		}
		dirty[resource.ID][change.locale] = true
		c.ChangedLocales[change.locale.ID] = true
	}

	for resourceID, locales := range dirty {
		resource := c.resourceByID(resourceID)
		vcsResource := c.vcs.Resources[resource.Path]
		for locale := range locales {
			if err := vcsResource.File(locale.ID).Save(locale); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *ChangeSet) executeCreateDB(ctx context.Context, locales []*model.Locale) error {
	localesByID := map[int64]*model.Locale{}
	for _, l := range locales {
		localesByID[l.ID] = l
	}
	for _, change := range c.createDB {
		resource := c.resources[change.resourcePath]
		if resource == nil {
			continue
		}
		vcsEntity := change.vcs
		entity := &model.Entity{
			ResourceID:   resource.ID,
			String:       vcsEntity.String,
			StringPlural: vcsEntity.StringPlural,
			Key:          vcsEntity.Key,
			Comment:      vcsEntity.Comment,
			Order:        vcsEntity.Order,
			Source:       vcsEntity.Source,
		}
		created, err := c.store.Entities().GetOrCreate(ctx, entity)
		if err != nil {
			return err
		}
		for localeID, vcsTranslation := range vcsEntity.Translations {
			locale := localesByID[localeID]
			if locale == nil {
				continue
			}
			if created {
				if err := c.importTranslations(ctx, entity, locale, vcsTranslation); err != nil {
					return err
				}
			} else {
				// a concurrent run won the creation; merge instead of
				// importing duplicate rows
				if err := c.mergeTranslations(ctx, entity, locale, vcsTranslation); err != nil {
					return err
				}
			}
			c.touch(resource.ID, localeID)
		}
	}
	return nil
}

func (c *ChangeSet) importTranslations(ctx context.Context, entity *model.Entity, locale *model.Locale, vcs *VCSTranslation) error {
	for form, s := range vcs.Strings {
		t := &model.Translation{
			EntityID:   entity.ID,
			LocaleID:   locale.ID,
			String:     s,
			PluralForm: fileToDBForm(entity, form),
			Date:       c.start,
			Approved:   !vcs.Fuzzy,
			Fuzzy:      vcs.Fuzzy,
		}
		if t.Approved {
			t.ApprovedDate = c.start
		}
		if err := c.store.Translations().Create(ctx, c.store.DB, t); err != nil {
			return err
		}
		if t.Approved {
			c.newlyApproved = append(c.newlyApproved, t.ID)
		}
		c.toCheck = append(c.toCheck, checkTarget{entity: entity, translation: t})
	}
	return nil
}

func (c *ChangeSet) executeUpdateDB(ctx context.Context) error {
	for _, change := range c.updateDB {
		if entityMetadataChanged(change.db, change.vcs) {
			change.db.String = change.vcs.String
			change.db.StringPlural = change.vcs.StringPlural
			change.db.Comment = change.vcs.Comment
			change.db.Order = change.vcs.Order
			change.db.Source = change.vcs.Source
			if err := c.store.Entities().Update(ctx, change.db); err != nil {
				return err
			}
		}

		vcsTranslation := change.vcs.Translations[change.locale.ID]
		if err := c.mergeTranslations(ctx, change.db, change.locale, vcsTranslation); err != nil {
			return err
		}
		c.touch(change.db.ResourceID, change.locale.ID)
	}
	return nil
}

// mergeTranslations reconciles the database translations of one
// (entity, locale) pair with the VCS state. Matching is by exact
// (plural form, string) equality. Unmatched database approvals granted
// before the sync started are revoked and rejected; unmatched fuzzies
// lose the flag. Approvals granted while the sync was running survive
// to the next cycle.
func (c *ChangeSet) mergeTranslations(ctx context.Context, entity *model.Entity, locale *model.Locale, vcs *VCSTranslation) error {
	existing, err := c.store.Translations().ForEntityLocale(ctx, entity.ID, locale.ID)
	if err != nil {
		return err
	}

	matched := map[int64]bool{}
	if vcs != nil {
		for form, s := range vcs.Strings {
			dbForm := fileToDBForm(entity, form)
			var match *model.Translation
			for _, t := range existing {
				if t.PluralForm == dbForm && t.String == s {
					match = t
					break
				}
			}
			if match != nil {
				matched[match.ID] = true
				changed := false
				if !match.Approved && !vcs.Fuzzy {
					match.Approved = true
					match.ApprovedUserID = 0
					match.ApprovedDate = c.start
					changed = true
					c.newlyApproved = append(c.newlyApproved, match.ID)
				}
				if match.Rejected {
					// the file carries this string again, so an earlier
					// rejection no longer stands
					match.Rejected = false
					match.RejectedUserID = 0
					match.RejectedDate = time.Time{}
					changed = true
				}
				if match.Fuzzy != vcs.Fuzzy {
					match.Fuzzy = vcs.Fuzzy
					changed = true
				}
				if changed {
					if err := c.store.Translations().Update(ctx, c.store.DB, match); err != nil {
						return err
					}
				}
				continue
			}
			t := &model.Translation{
				EntityID:   entity.ID,
				LocaleID:   locale.ID,
				String:     s,
				PluralForm: dbForm,
				Date:       c.start,
				Approved:   !vcs.Fuzzy,
				Fuzzy:      vcs.Fuzzy,
			}
			if t.Approved {
				t.ApprovedDate = c.start
			}
			if err := c.store.Translations().Create(ctx, c.store.DB, t); err != nil {
				return err
			}
			if t.Approved {
				c.newlyApproved = append(c.newlyApproved, t.ID)
			}
			c.toCheck = append(c.toCheck, checkTarget{entity: entity, translation: t})
		}
	}

	for _, t := range existing {
		if matched[t.ID] {
			continue
		}
		changed := false
		if t.Approved && !t.ApprovedDate.After(c.start) {
			t.Approved = false
			t.ApprovedUserID = 0
			t.ApprovedDate = time.Time{}
			t.Rejected = true
			t.RejectedDate = c.start
			changed = true
		}
		if t.Fuzzy {
			t.Fuzzy = false
			changed = true
		}
		if changed {
			if err := c.store.Translations().Update(ctx, c.store.DB, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *ChangeSet) runChecks(ctx context.Context) error {
	if c.checker == nil || len(c.toCheck) == 0 {
		return nil
	}
	failures := map[int64][]model.FailingCheck{}
	for _, target := range c.toCheck {
		failures[target.translation.ID] = c.checker.Check(target.entity, target.translation)
	}
	return c.store.Translations().ReplaceFailingChecks(ctx, failures)
}

func (c *ChangeSet) recountStats(ctx context.Context, locales []*model.Locale) error {
	localesByID := map[int64]*model.Locale{}
	for _, l := range locales {
		localesByID[l.ID] = l
	}
	resourceIDs := make([]int64, 0, len(c.touched))
	for id := range c.touched {
		resourceIDs = append(resourceIDs, id)
	}
	sort.Slice(resourceIDs, func(i, j int) bool { return resourceIDs[i] < resourceIDs[j] })

	for _, resourceID := range resourceIDs {
		resource := c.resourceByID(resourceID)
		if resource == nil {
			continue
		}
		for localeID := range c.touched[resourceID] {
			locale := localesByID[localeID]
			if locale == nil {
				continue
			}
			tr, err := c.store.TranslatedResources().GetOrCreate(ctx, resourceID, localeID)
			if err != nil {
				return err
			}
			if err := c.store.TranslatedResources().CalculateStats(ctx, tr, resource, locale); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *ChangeSet) touch(resourceID, localeID int64) {
	if c.touched[resourceID] == nil {
		c.touched[resourceID] = map[int64]bool{}
	}
	c.touched[resourceID][localeID] = true
}

func (c *ChangeSet) resourceByID(id int64) *model.Resource {
	for _, r := range c.resources {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func entityMetadataChanged(db *model.Entity, vcs *VCSEntity) bool {
	if db.String != vcs.String || db.StringPlural != vcs.StringPlural {
		return true
	}
	if db.Comment != vcs.Comment || db.Order != vcs.Order {
		return true
	}
	if len(db.Source) != len(vcs.Source) {
		return true
	}
	for i := range db.Source {
		if db.Source[i] != vcs.Source[i] {
			return true
		}
	}
	return false
}

// dbToFileForm maps the database plural form to the file-side index:
// singular translations live at form 0 in files.
func dbToFileForm(form int) int {
	if form == model.NoPluralForm {
		return 0
	}
	return form
}

// fileToDBForm is the inverse mapping, driven by whether the entity has
// plural forms at all.
func fileToDBForm(entity *model.Entity, form int) int {
	if !entity.HasPlural() {
		return model.NoPluralForm
	}
	return form
}
