package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

type TranslatedResourceStore struct {
	*Store
}

func (s *TranslatedResourceStore) GetOrCreate(ctx context.Context, resourceID, localeID int64) (*model.TranslatedResource, error) {
	tr, err := s.Get(ctx, resourceID, localeID)
	if err == nil {
		return tr, nil
	}
	if !faults.IsCategory(err, faults.NotFoundError) {
		return nil, err
	}
	res, err := s.SQ.Insert("translated_resources").
		Columns("resource_id", "locale_id").
		Values(resourceID, localeID).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return nil, faults.Transient("create translated resource", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.TranslatedResource{ID: id, ResourceID: resourceID, LocaleID: localeID}, nil
}

func (s *TranslatedResourceStore) Get(ctx context.Context, resourceID, localeID int64) (*model.TranslatedResource, error) {
	var tr model.TranslatedResource
	err := s.DB.QueryRowContext(ctx, `SELECT id, resource_id, locale_id,
        total_strings, approved_strings, fuzzy_strings, translated_strings,
        COALESCE(latest_translation_id, 0)
        FROM translated_resources WHERE resource_id = ? AND locale_id = ?`,
		resourceID, localeID).
		Scan(&tr.ID, &tr.ResourceID, &tr.LocaleID,
			&tr.TotalStrings, &tr.ApprovedStrings, &tr.FuzzyStrings, &tr.TranslatedStrings,
			&tr.LatestTranslationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("translated resource not found")
	}
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

func (s *TranslatedResourceStore) ForLocale(ctx context.Context, localeID int64) ([]*model.TranslatedResource, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, resource_id, locale_id,
        total_strings, approved_strings, fuzzy_strings, translated_strings,
        COALESCE(latest_translation_id, 0)
        FROM translated_resources WHERE locale_id = ? ORDER BY id`, localeID)
	if err != nil {
		return nil, faults.Transient("list translated resources", err)
	}
	defer rows.Close()
	var out []*model.TranslatedResource
	for rows.Next() {
		var tr model.TranslatedResource
		if err := rows.Scan(&tr.ID, &tr.ResourceID, &tr.LocaleID,
			&tr.TotalStrings, &tr.ApprovedStrings, &tr.FuzzyStrings, &tr.TranslatedStrings,
			&tr.LatestTranslationID); err != nil {
			return nil, err
		}
		out = append(out, &tr)
	}
	return out, rows.Err()
}

// CalculateStats recounts the four counters for one (resource, locale)
// pair and applies the difference to the pair and, in one transaction,
// to its project, locale and project-locale parents. The increments are
// relative so interleaved recounts of sibling resources compose.
//
// An entity with plural forms counts as approved only when every plural
// form the locale requires has an approved translation; fuzzy works the
// same way. Everything translated but not fully approved or fuzzy lands
// in the translated counter.
func (s *TranslatedResourceStore) CalculateStats(ctx context.Context, tr *model.TranslatedResource, resource *model.Resource, locale *model.Locale) error {
	next := model.AggregatedStats{TotalStrings: resource.TotalStrings}

	err := s.DB.QueryRowContext(ctx, `SELECT
        COUNT(CASE WHEN t.approved THEN 1 END),
        COUNT(CASE WHEN t.fuzzy THEN 1 END)
        FROM translations t
        JOIN entities e ON e.id = t.entity_id
        WHERE e.resource_id = ? AND e.obsolete = 0 AND e.string_plural = ''
        AND t.locale_id = ?`, resource.ID, locale.ID).
		Scan(&next.ApprovedStrings, &next.FuzzyStrings)
	if err != nil {
		return faults.Transient("count singular translations", err)
	}

	nplurals := locale.NPlurals()
	rows, err := s.DB.QueryContext(ctx, `SELECT
        COUNT(DISTINCT CASE WHEN t.approved THEN t.plural_form END),
        COUNT(DISTINCT CASE WHEN t.fuzzy THEN t.plural_form END)
        FROM translations t
        JOIN entities e ON e.id = t.entity_id
        WHERE e.resource_id = ? AND e.obsolete = 0 AND e.string_plural != ''
        AND t.locale_id = ?
        GROUP BY t.entity_id`, resource.ID, locale.ID)
	if err != nil {
		return faults.Transient("count plural translations", err)
	}
	for rows.Next() {
		var approvedForms, fuzzyForms int
		if err := rows.Scan(&approvedForms, &fuzzyForms); err != nil {
			rows.Close()
			return err
		}
		if approvedForms == nplurals {
			next.ApprovedStrings++
		} else if fuzzyForms == nplurals {
			next.FuzzyStrings++
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	var translatedEntities int
	err = s.DB.QueryRowContext(ctx, `SELECT COUNT(DISTINCT t.entity_id)
        FROM translations t
        JOIN entities e ON e.id = t.entity_id
        WHERE e.resource_id = ? AND e.obsolete = 0 AND t.locale_id = ?`,
		resource.ID, locale.ID).Scan(&translatedEntities)
	if err != nil {
		return faults.Transient("count translated entities", err)
	}
	next.TranslatedStrings = translatedEntities - next.ApprovedStrings - next.FuzzyStrings
	if next.TranslatedStrings < 0 {
		next.TranslatedStrings = 0
	}

	diff := tr.AggregatedStats.Diff(next)
	if diff.IsZero() {
		return nil
	}
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE translated_resources SET
            total_strings = total_strings + ?,
            approved_strings = approved_strings + ?,
            fuzzy_strings = fuzzy_strings + ?,
            translated_strings = translated_strings + ?
            WHERE id = ?`,
			diff.Total, diff.Approved, diff.Fuzzy, diff.Translated, tr.ID); err != nil {
			return err
		}
		if err := s.Projects().AdjustStats(ctx, tx, resource.ProjectID, diff); err != nil {
			return err
		}
		if err := s.Locales().AdjustStats(ctx, tx, locale.ID, diff); err != nil {
			return err
		}
		return s.ProjectLocales().AdjustStats(ctx, tx, resource.ProjectID, locale.ID, diff)
	})
	if err != nil {
		return faults.Transient("apply stats diff", err)
	}
	tr.AggregatedStats = next
	return nil
}
