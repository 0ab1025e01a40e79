package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

type LocaleStore struct {
	*Store
}

const localeColumns = `id, code, name, plural_rule, cldr_plurals,
    total_strings, approved_strings, fuzzy_strings, translated_strings,
    COALESCE(latest_translation_id, 0)`

func scanLocale(row interface{ Scan(...any) error }) (*model.Locale, error) {
	var l model.Locale
	var plurals string
	if err := row.Scan(&l.ID, &l.Code, &l.Name, &l.PluralRule, &plurals,
		&l.TotalStrings, &l.ApprovedStrings, &l.FuzzyStrings, &l.TranslatedStrings,
		&l.LatestTranslationID); err != nil {
		return nil, err
	}
	ids, err := model.ParseCLDRPlurals(plurals)
	if err != nil {
		return nil, err
	}
	l.CLDRPluralIDs = ids
	return &l, nil
}

func (s *LocaleStore) Create(ctx context.Context, l *model.Locale) error {
	res, err := s.SQ.Insert("locales").
		Columns("code", "name", "plural_rule", "cldr_plurals").
		Values(l.Code, l.Name, l.PluralRule, model.FormatCLDRPlurals(l.CLDRPluralIDs)).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("create locale "+l.Code, err)
	}
	l.ID, err = res.LastInsertId()
	return err
}

func (s *LocaleStore) ByCode(ctx context.Context, code string) (*model.Locale, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+localeColumns+` FROM locales WHERE code = ?`, code)
	l, err := scanLocale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("locale " + code + " not found")
	}
	return l, err
}

func (s *LocaleStore) ByID(ctx context.Context, id int64) (*model.Locale, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+localeColumns+` FROM locales WHERE id = ?`, id)
	l, err := scanLocale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("locale not found")
	}
	return l, err
}

func (s *LocaleStore) All(ctx context.Context) ([]*model.Locale, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+localeColumns+` FROM locales ORDER BY code`)
	if err != nil {
		return nil, faults.Transient("list locales", err)
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

// AdjustStats applies a diff to the locale counters in place. The
// increments are relative so concurrent cascades from different
// resources never clobber each other.
func (s *LocaleStore) AdjustStats(ctx context.Context, e execer, id int64, d model.StatsDiff) error {
	if d.IsZero() {
		return nil
	}
	_, err := e.ExecContext(ctx, `UPDATE locales SET
        total_strings = total_strings + ?,
        approved_strings = approved_strings + ?,
        fuzzy_strings = fuzzy_strings + ?,
        translated_strings = translated_strings + ?
        WHERE id = ?`,
		d.Total, d.Approved, d.Fuzzy, d.Translated, id)
	return err
}
