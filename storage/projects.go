package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

type ProjectStore struct {
	*Store
}

const projectColumns = `id, name, slug, disabled,
    total_strings, approved_strings, fuzzy_strings, translated_strings,
    COALESCE(latest_translation_id, 0)`

func scanProject(row interface{ Scan(...any) error }) (*model.Project, error) {
	var p model.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Disabled,
		&p.TotalStrings, &p.ApprovedStrings, &p.FuzzyStrings, &p.TranslatedStrings,
		&p.LatestTranslationID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProjectStore) Create(ctx context.Context, p *model.Project) error {
	res, err := s.SQ.Insert("projects").
		Columns("name", "slug", "disabled").
		Values(p.Name, p.Slug, p.Disabled).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("create project "+p.Slug, err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *ProjectStore) BySlug(ctx context.Context, slug string) (*model.Project, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE slug = ?`, slug)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("project " + slug + " not found")
	}
	return p, err
}

// Syncable lists enabled projects in slug order.
func (s *ProjectStore) Syncable(ctx context.Context) ([]*model.Project, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE disabled = 0 ORDER BY slug`)
	if err != nil {
		return nil, faults.Transient("list projects", err)
	}
	defer rows.Close()
	var out []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// NeedsSync reports whether any entity of the project carries a changed
// marker, i.e. the DB holds translation work not yet pushed to VCS.
func (s *ProjectStore) NeedsSync(ctx context.Context, projectID int64) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1)
        FROM changed_entity_locales cel
        JOIN entities e ON e.id = cel.entity_id
        JOIN resources r ON r.id = e.resource_id
        WHERE r.project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return false, faults.Transient("count changed entities", err)
	}
	return n > 0, nil
}

func (s *ProjectStore) AdjustStats(ctx context.Context, e execer, id int64, d model.StatsDiff) error {
	if d.IsZero() {
		return nil
	}
	_, err := e.ExecContext(ctx, `UPDATE projects SET
        total_strings = total_strings + ?,
        approved_strings = approved_strings + ?,
        fuzzy_strings = fuzzy_strings + ?,
        translated_strings = translated_strings + ?
        WHERE id = ?`,
		d.Total, d.Approved, d.Fuzzy, d.Translated, id)
	return err
}

type ProjectLocaleStore struct {
	*Store
}

func (s *ProjectLocaleStore) Create(ctx context.Context, pl *model.ProjectLocale) error {
	res, err := s.SQ.Insert("project_locales").
		Columns("project_id", "locale_id").
		Values(pl.ProjectID, pl.LocaleID).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("create project locale", err)
	}
	pl.ID, err = res.LastInsertId()
	return err
}

func (s *ProjectLocaleStore) Get(ctx context.Context, projectID, localeID int64) (*model.ProjectLocale, error) {
	var pl model.ProjectLocale
	err := s.DB.QueryRowContext(ctx, `SELECT id, project_id, locale_id,
        total_strings, approved_strings, fuzzy_strings, translated_strings,
        COALESCE(latest_translation_id, 0)
        FROM project_locales WHERE project_id = ? AND locale_id = ?`,
		projectID, localeID).
		Scan(&pl.ID, &pl.ProjectID, &pl.LocaleID,
			&pl.TotalStrings, &pl.ApprovedStrings, &pl.FuzzyStrings, &pl.TranslatedStrings,
			&pl.LatestTranslationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("project locale not found")
	}
	if err != nil {
		return nil, err
	}
	return &pl, nil
}

// LocalesForProject lists the locales enabled for the project, in code
// order.
func (s *ProjectLocaleStore) LocalesForProject(ctx context.Context, projectID int64) ([]*model.Locale, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT l.id, l.code, l.name,
        l.plural_rule, l.cldr_plurals,
        l.total_strings, l.approved_strings, l.fuzzy_strings, l.translated_strings,
        COALESCE(l.latest_translation_id, 0)
        FROM locales l
        JOIN project_locales pl ON pl.locale_id = l.id
        WHERE pl.project_id = ?
        ORDER BY l.code`, projectID)
	if err != nil {
		return nil, faults.Transient("list project locales", err)
	}
	defer rows.Close()
	var out []*model.Locale
	for rows.Next() {
		l, err := scanLocale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *ProjectLocaleStore) AdjustStats(ctx context.Context, e execer, projectID, localeID int64, d model.StatsDiff) error {
	if d.IsZero() {
		return nil
	}
	_, err := e.ExecContext(ctx, `UPDATE project_locales SET
        total_strings = total_strings + ?,
        approved_strings = approved_strings + ?,
        fuzzy_strings = fuzzy_strings + ?,
        translated_strings = translated_strings + ?
        WHERE project_id = ? AND locale_id = ?`,
		d.Total, d.Approved, d.Fuzzy, d.Translated, projectID, localeID)
	return err
}
