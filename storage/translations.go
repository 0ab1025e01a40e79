package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

type TranslationStore struct {
	*Store
}

const translationColumns = `id, entity_id, locale_id, COALESCE(user_id, 0),
    string, plural_form, date,
    approved, COALESCE(approved_user_id, 0), approved_date,
    rejected, COALESCE(rejected_user_id, 0), rejected_date,
    fuzzy, extra`

func scanTranslation(row interface{ Scan(...any) error }) (*model.Translation, error) {
	var t model.Translation
	var date, approvedDate, rejectedDate, extra string
	if err := row.Scan(&t.ID, &t.EntityID, &t.LocaleID, &t.UserID,
		&t.String, &t.PluralForm, &date,
		&t.Approved, &t.ApprovedUserID, &approvedDate,
		&t.Rejected, &t.RejectedUserID, &rejectedDate,
		&t.Fuzzy, &extra); err != nil {
		return nil, err
	}
	t.Date = parseTime(date)
	t.ApprovedDate = parseTime(approvedDate)
	t.RejectedDate = parseTime(rejectedDate)
	t.Extra = unmarshalMap(extra)
	return &t, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// Create inserts the row without side effects. The sync engine uses it
// for bulk imports and recalculates stats itself afterwards.
func (s *TranslationStore) Create(ctx context.Context, e execer, t *model.Translation) error {
	if t.Date.IsZero() {
		t.Date = time.Now()
	}
	res, err := e.ExecContext(ctx, `INSERT INTO translations
        (entity_id, locale_id, user_id, string, plural_form, date,
         approved, approved_user_id, approved_date,
         rejected, rejected_user_id, rejected_date, fuzzy, extra)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.EntityID, t.LocaleID, nullableID(t.UserID), t.String, t.PluralForm,
		formatTime(t.Date),
		t.Approved, nullableID(t.ApprovedUserID), formatTime(t.ApprovedDate),
		t.Rejected, nullableID(t.RejectedUserID), formatTime(t.RejectedDate),
		t.Fuzzy, marshalJSON(t.Extra))
	if err != nil {
		return faults.Transient("create translation", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// Update persists the mutable state flags and string of an existing
// translation. Like Create it carries no side effects.
func (s *TranslationStore) Update(ctx context.Context, e execer, t *model.Translation) error {
	_, err := e.ExecContext(ctx, `UPDATE translations SET
        string = ?, user_id = ?, date = ?,
        approved = ?, approved_user_id = ?, approved_date = ?,
        rejected = ?, rejected_user_id = ?, rejected_date = ?,
        fuzzy = ?, extra = ?
        WHERE id = ?`,
		t.String, nullableID(t.UserID), formatTime(t.Date),
		t.Approved, nullableID(t.ApprovedUserID), formatTime(t.ApprovedDate),
		t.Rejected, nullableID(t.RejectedUserID), formatTime(t.RejectedDate),
		t.Fuzzy, marshalJSON(t.Extra), t.ID)
	if err != nil {
		return faults.Transient("update translation", err)
	}
	return nil
}

func (s *TranslationStore) ByID(ctx context.Context, id int64) (*model.Translation, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+translationColumns+` FROM translations WHERE id = ?`, id)
	t, err := scanTranslation(row)
	if err == sql.ErrNoRows {
		return nil, faults.NotFound("translation not found")
	}
	return t, err
}

// ForEntityLocale lists all translations of one entity in one locale,
// newest first within each plural form.
func (s *TranslationStore) ForEntityLocale(ctx context.Context, entityID, localeID int64) ([]*model.Translation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+translationColumns+`
        FROM translations WHERE entity_id = ? AND locale_id = ?
        ORDER BY plural_form, date DESC, id DESC`, entityID, localeID)
	if err != nil {
		return nil, faults.Transient("list translations", err)
	}
	defer rows.Close()
	return collectTranslations(rows)
}

// ForProjectLocale lists the project's translations in one locale,
// grouped by entity in the result map.
func (s *TranslationStore) ForProjectLocale(ctx context.Context, projectID, localeID int64) (map[int64][]*model.Translation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT t.id, t.entity_id, t.locale_id,
        COALESCE(t.user_id, 0), t.string, t.plural_form, t.date,
        t.approved, COALESCE(t.approved_user_id, 0), t.approved_date,
        t.rejected, COALESCE(t.rejected_user_id, 0), t.rejected_date,
        t.fuzzy, t.extra
        FROM translations t
        JOIN entities e ON e.id = t.entity_id
        JOIN resources r ON r.id = e.resource_id
        WHERE r.project_id = ? AND t.locale_id = ?
        ORDER BY t.plural_form, t.date DESC, t.id DESC`, projectID, localeID)
	if err != nil {
		return nil, faults.Transient("list translations", err)
	}
	defer rows.Close()
	out := map[int64][]*model.Translation{}
	for rows.Next() {
		t, err := scanTranslation(rows)
		if err != nil {
			return nil, err
		}
		out[t.EntityID] = append(out[t.EntityID], t)
	}
	return out, rows.Err()
}

func collectTranslations(rows *sql.Rows) ([]*model.Translation, error) {
	var out []*model.Translation
	for rows.Next() {
		t, err := scanTranslation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Save is the interactive write path. It upserts the translation and,
// when it is approved, unapproves every sibling on the same (entity,
// locale, plural form) triple in the same transaction, creates the
// translation memory entry on first approval, and marks the entity
// changed so the next sync pushes the locale out. Stats and activity
// pointers are refreshed afterwards.
func (s *TranslationStore) Save(ctx context.Context, t *model.Translation) error {
	if t.Approved && t.ApprovedDate.IsZero() {
		t.ApprovedDate = time.Now()
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if t.ID == 0 {
			if err := s.Create(ctx, tx, t); err != nil {
				return err
			}
		} else if err := s.Update(ctx, tx, t); err != nil {
			return err
		}
		if !t.Approved {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE translations SET
            approved = 0, approved_user_id = NULL, approved_date = ''
            WHERE entity_id = ? AND locale_id = ? AND plural_form = ? AND id != ?`,
			t.EntityID, t.LocaleID, t.PluralForm, t.ID); err != nil {
			return faults.Transient("unapprove siblings", err)
		}
		if err := s.createMemoryEntryIfMissing(ctx, tx, t); err != nil {
			return err
		}
		return s.Entities().MarkChanged(ctx, tx, t.EntityID, t.LocaleID)
	})
	if err != nil {
		return err
	}
	return s.refreshAggregates(ctx, t)
}

func (s *TranslationStore) refreshAggregates(ctx context.Context, t *model.Translation) error {
	entity, err := s.entityByID(ctx, t.EntityID)
	if err != nil {
		return err
	}
	resource, err := s.resourceByID(ctx, entity.ResourceID)
	if err != nil {
		return err
	}
	locale, err := s.Locales().ByID(ctx, t.LocaleID)
	if err != nil {
		return err
	}
	tr, err := s.TranslatedResources().GetOrCreate(ctx, resource.ID, t.LocaleID)
	if err != nil {
		return err
	}
	if err := s.TranslatedResources().CalculateStats(ctx, tr, resource, locale); err != nil {
		return err
	}
	return s.BumpLatestActivity(ctx, t, resource, locale)
}

// BumpLatestActivity advances the latest-translation pointers on the
// translated resource, project, locale and project-locale aggregates
// when the given translation's activity is newer than the current one.
func (s *TranslationStore) BumpLatestActivity(ctx context.Context, t *model.Translation, resource *model.Resource, locale *model.Locale) error {
	when, _ := t.LatestActivity()
	targets := []struct {
		table string
		where sq.Eq
	}{
		{"translated_resources", sq.Eq{"resource_id": resource.ID, "locale_id": locale.ID}},
		{"projects", sq.Eq{"id": resource.ProjectID}},
		{"locales", sq.Eq{"id": locale.ID}},
		{"project_locales", sq.Eq{"project_id": resource.ProjectID, "locale_id": locale.ID}},
	}
	for _, target := range targets {
		current, err := s.latestPointer(ctx, target.table, target.where)
		if err != nil {
			return err
		}
		if current != 0 {
			prev, err := s.ByID(ctx, current)
			if err == nil {
				prevWhen, _ := prev.LatestActivity()
				if !when.After(prevWhen) {
					continue
				}
			} else if !faults.IsCategory(err, faults.NotFoundError) {
				return err
			}
		}
		if _, err := s.SQ.Update(target.table).
			Set("latest_translation_id", t.ID).
			Where(target.where).
			RunWith(s.DB).ExecContext(ctx); err != nil {
			return faults.Transient("update latest translation", err)
		}
	}
	return nil
}

func (s *TranslationStore) latestPointer(ctx context.Context, table string, where sq.Eq) (int64, error) {
	query, args, err := s.SQ.Select("COALESCE(latest_translation_id, 0)").
		From(table).Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

func (s *TranslationStore) entityByID(ctx context.Context, id int64) (*model.Entity, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, faults.NotFound("entity not found")
	}
	return e, err
}

func (s *TranslationStore) resourceByID(ctx context.Context, id int64) (*model.Resource, error) {
	var r model.Resource
	var format string
	err := s.DB.QueryRowContext(ctx, `SELECT id, project_id, path, format, total_strings
        FROM resources WHERE id = ?`, id).
		Scan(&r.ID, &r.ProjectID, &r.Path, &format, &r.TotalStrings)
	if err == sql.ErrNoRows {
		return nil, faults.NotFound("resource not found")
	}
	if err != nil {
		return nil, err
	}
	r.Format = model.Format(format)
	return &r, nil
}

func (s *TranslationStore) createMemoryEntryIfMissing(ctx context.Context, e execer, t *model.Translation) error {
	var n int
	err := e.QueryRowContext(ctx, `SELECT COUNT(1)
        FROM translation_memory_entries WHERE translation_id = ?`, t.ID).Scan(&n)
	if err != nil {
		return faults.Transient("check memory entry", err)
	}
	if n > 0 {
		return nil
	}
	var source string
	var projectID int64
	err = e.QueryRowContext(ctx, `SELECT e.string, r.project_id
        FROM entities e JOIN resources r ON r.id = e.resource_id
        WHERE e.id = ?`, t.EntityID).Scan(&source, &projectID)
	if err != nil {
		return faults.Transient("load entity for memory entry", err)
	}
	_, err = e.ExecContext(ctx, `INSERT INTO translation_memory_entries
        (source, target, locale_id, entity_id, translation_id, project_id)
        VALUES (?, ?, ?, ?, ?, ?)`,
		source, t.String, t.LocaleID, t.EntityID, t.ID, projectID)
	if err != nil {
		return faults.Transient("create memory entry", err)
	}
	return nil
}

// CreateMemoryEntriesIfMissing is the bulk variant used after a sync
// run, covering freshly imported and freshly approved translations.
func (s *TranslationStore) CreateMemoryEntriesIfMissing(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		t, err := s.ByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.createMemoryEntryIfMissing(ctx, s.DB, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *TranslationStore) MemoryEntriesForLocale(ctx context.Context, localeID int64) ([]*model.TranslationMemoryEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, source, target, locale_id,
        COALESCE(entity_id, 0), COALESCE(translation_id, 0), COALESCE(project_id, 0)
        FROM translation_memory_entries WHERE locale_id = ? ORDER BY id`, localeID)
	if err != nil {
		return nil, faults.Transient("list memory entries", err)
	}
	defer rows.Close()
	var out []*model.TranslationMemoryEntry
	for rows.Next() {
		var m model.TranslationMemoryEntry
		if err := rows.Scan(&m.ID, &m.Source, &m.Target, &m.LocaleID,
			&m.EntityID, &m.TranslationID, &m.ProjectID); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MemoryExportRow is one joined translation memory pair with the
// context needed to derive a stable export identifier.
type MemoryExportRow struct {
	ProjectSlug  string
	ResourcePath string
	EntityKey    string
	Source       string
	Target       string
}

// ExportMemory lists the locale's memory entries joined with their
// project and resource context, for TMX export. Entries whose entity or
// project has been deleted are skipped because they cannot carry a
// stable identifier.
func (s *TranslationStore) ExportMemory(ctx context.Context, localeID int64) ([]MemoryExportRow, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT p.slug, r.path, e.key,
        tm.source, tm.target
        FROM translation_memory_entries tm
        JOIN entities e ON e.id = tm.entity_id
        JOIN resources r ON r.id = e.resource_id
        JOIN projects p ON p.id = tm.project_id
        WHERE tm.locale_id = ?
        ORDER BY p.slug, r.path, e.ord`, localeID)
	if err != nil {
		return nil, faults.Transient("export memory entries", err)
	}
	defer rows.Close()
	var out []MemoryExportRow
	for rows.Next() {
		var row MemoryExportRow
		if err := rows.Scan(&row.ProjectSlug, &row.ResourcePath, &row.EntityKey,
			&row.Source, &row.Target); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ReplaceFailingChecks swaps the stored check failures for the given
// translations with the fresh results.
func (s *TranslationStore) ReplaceFailingChecks(ctx context.Context, failures map[int64][]model.FailingCheck) error {
	if len(failures) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		query, args, err := s.SQ.Delete("failing_checks").
			Where(sq.Eq{"translation_id": ids}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return faults.Transient("clear failing checks", err)
		}
		for id, checks := range failures {
			for _, c := range checks {
				if _, err := tx.ExecContext(ctx, `INSERT INTO failing_checks
                    (translation_id, severity, message) VALUES (?, ?, ?)`,
					id, c.Severity, c.Message); err != nil {
					return faults.Transient("record failing check", err)
				}
			}
		}
		return nil
	})
}

func (s *TranslationStore) FailingChecksFor(ctx context.Context, translationID int64) ([]model.FailingCheck, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, translation_id, severity, message
        FROM failing_checks WHERE translation_id = ? ORDER BY id`, translationID)
	if err != nil {
		return nil, faults.Transient("list failing checks", err)
	}
	defer rows.Close()
	var out []model.FailingCheck
	for rows.Next() {
		var c model.FailingCheck
		if err := rows.Scan(&c.ID, &c.TranslationID, &c.Severity, &c.Message); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindAndReplace rewrites every approved translation of the project and
// locale containing find. Each hit gets a new approved translation with
// the substituted string; the old one is unapproved through the normal
// save path. Substitutions that would produce an empty string are
// rejected before any mutation, except for entities in asymmetric
// resources where an empty value means falling back to the source file.
func (s *TranslationStore) FindAndReplace(ctx context.Context, projectID, localeID int64, find, replace string, userID int64) (int, error) {
	if find == "" {
		return 0, faults.NotAllowed("cannot search for an empty string")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT t.id, t.entity_id, t.locale_id,
        COALESCE(t.user_id, 0), t.string, t.plural_form, t.date,
        t.approved, COALESCE(t.approved_user_id, 0), t.approved_date,
        t.rejected, COALESCE(t.rejected_user_id, 0), t.rejected_date,
        t.fuzzy, t.extra
        FROM translations t
        JOIN entities e ON e.id = t.entity_id
        JOIN resources r ON r.id = e.resource_id
        WHERE r.project_id = ? AND t.locale_id = ? AND t.approved = 1
        AND instr(t.string, ?) > 0`, projectID, localeID, find)
	if err != nil {
		return 0, faults.Transient("search translations", err)
	}
	matches, err := collectTranslations(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	formats, err := s.resourceFormats(ctx, matches)
	if err != nil {
		return 0, err
	}
	for _, old := range matches {
		if strings.ReplaceAll(old.String, find, replace) == "" && !formats[old.EntityID].IsAsymmetric() {
			return 0, faults.NotAllowed("value must not be empty")
		}
	}
	now := time.Now()
	for _, old := range matches {
		next := &model.Translation{
			EntityID:       old.EntityID,
			LocaleID:       old.LocaleID,
			UserID:         userID,
			String:         strings.ReplaceAll(old.String, find, replace),
			PluralForm:     old.PluralForm,
			Date:           now,
			Approved:       true,
			ApprovedUserID: userID,
			ApprovedDate:   now,
		}
		if err := s.Save(ctx, next); err != nil {
			return 0, err
		}
	}
	return len(matches), nil
}

// resourceFormats maps the matched translations' entity IDs to the
// format of the resource owning each entity.
func (s *TranslationStore) resourceFormats(ctx context.Context, matches []*model.Translation) (map[int64]model.Format, error) {
	out := map[int64]model.Format{}
	if len(matches) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(matches))
	for _, t := range matches {
		ids = append(ids, t.EntityID)
	}
	query, args, err := s.SQ.Select("e.id", "r.format").
		From("entities e").
		Join("resources r ON r.id = e.resource_id").
		Where(sq.Eq{"e.id": ids}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Transient("resolve resource formats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var format string
		if err := rows.Scan(&id, &format); err != nil {
			return nil, err
		}
		out[id] = model.Format(format)
	}
	return out, rows.Err()
}
