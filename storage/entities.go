package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

type EntityStore struct {
	*Store
}

const entityColumns = `id, resource_id, string, string_plural, key,
    comment, ord, source, obsolete, date_created`

func scanEntity(row interface{ Scan(...any) error }) (*model.Entity, error) {
	var e model.Entity
	var source, created string
	if err := row.Scan(&e.ID, &e.ResourceID, &e.String, &e.StringPlural,
		&e.Key, &e.Comment, &e.Order, &source, &e.Obsolete, &created); err != nil {
		return nil, err
	}
	e.Source = unmarshalStrings(source)
	e.DateCreated = parseTime(created)
	return &e, nil
}

func (s *EntityStore) Create(ctx context.Context, e *model.Entity) error {
	if e.DateCreated.IsZero() {
		e.DateCreated = time.Now()
	}
	res, err := s.SQ.Insert("entities").
		Columns("resource_id", "string", "string_plural", "key", "comment",
			"ord", "source", "obsolete", "date_created").
		Values(e.ResourceID, e.String, e.StringPlural, e.Key, e.Comment,
			e.Order, marshalJSON(e.Source), e.Obsolete, formatTime(e.DateCreated)).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("create entity", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// GetOrCreate finds an entity by its identity within the resource, or
// creates it. Identity is the key for keyed formats and the source
// string otherwise; both are stored in Key, so matching Key suffices.
func (s *EntityStore) GetOrCreate(ctx context.Context, e *model.Entity) (created bool, err error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+entityColumns+`
        FROM entities WHERE resource_id = ? AND key = ? AND string = ?`,
		e.ResourceID, e.Key, e.String)
	existing, err := scanEntity(row)
	if err == nil {
		*e = *existing
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	return true, s.Create(ctx, e)
}

// ForProject returns all entities of the project keyed by entity ID,
// obsolete ones included, plus a mapping to their resource.
func (s *EntityStore) ForProject(ctx context.Context, projectID int64) ([]*model.Entity, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT e.id, e.resource_id,
        e.string, e.string_plural, e.key, e.comment, e.ord, e.source,
        e.obsolete, e.date_created
        FROM entities e
        JOIN resources r ON r.id = e.resource_id
        WHERE r.project_id = ?
        ORDER BY e.resource_id, e.ord`, projectID)
	if err != nil {
		return nil, faults.Transient("list entities", err)
	}
	defer rows.Close()
	var out []*model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Update persists metadata fields refreshed from VCS. Translations and
// obsolete state have their own operations.
func (s *EntityStore) Update(ctx context.Context, e *model.Entity) error {
	_, err := s.SQ.Update("entities").
		Set("string", e.String).
		Set("string_plural", e.StringPlural).
		Set("comment", e.Comment).
		Set("ord", e.Order).
		Set("source", marshalJSON(e.Source)).
		Where(sq.Eq{"id": e.ID}).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("update entity", err)
	}
	return nil
}

// MarkObsolete soft-deletes entities that disappeared from VCS. Rows
// are kept so history and TM entries stay intact; pending changed
// markers are dropped because there is no file left to push to.
func (s *EntityStore) MarkObsolete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.SQ.Update("entities").
		Set("obsolete", true).
		Where(sq.Eq{"id": ids}).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("mark entities obsolete", err)
	}
	_, err = s.SQ.Delete("changed_entity_locales").
		Where(sq.Eq{"entity_id": ids}).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("clear markers of obsolete entities", err)
	}
	return nil
}

// MarkChanged records that DB-side translations for the (entity,
// locale) pair changed since the last sync. A repeated mark refreshes
// the timestamp so work saved while a sync runs outlives that run's
// marker cleanup.
func (s *EntityStore) MarkChanged(ctx context.Context, e execer, entityID, localeID int64) error {
	_, err := e.ExecContext(ctx, `INSERT INTO changed_entity_locales
        (entity_id, locale_id, changed_at) VALUES (?, ?, ?)
        ON CONFLICT (entity_id, locale_id) DO UPDATE SET changed_at = excluded.changed_at`,
		entityID, localeID, formatTime(time.Now()))
	if err != nil {
		return faults.Transient("mark entity changed", err)
	}
	return nil
}

// ChangedLocales returns, per entity of the project, the set of locale
// IDs carrying a changed marker.
func (s *EntityStore) ChangedLocales(ctx context.Context, projectID int64) (map[int64]map[int64]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT cel.entity_id, cel.locale_id
        FROM changed_entity_locales cel
        JOIN entities e ON e.id = cel.entity_id
        JOIN resources r ON r.id = e.resource_id
        WHERE r.project_id = ?`, projectID)
	if err != nil {
		return nil, faults.Transient("list changed entities", err)
	}
	defer rows.Close()
	out := map[int64]map[int64]bool{}
	for rows.Next() {
		var entityID, localeID int64
		if err := rows.Scan(&entityID, &localeID); err != nil {
			return nil, err
		}
		if out[entityID] == nil {
			out[entityID] = map[int64]bool{}
		}
		out[entityID][localeID] = true
	}
	return out, rows.Err()
}

// ClearChangedPairs removes the locale's changed markers for the given
// entities, created at or before the cutoff. Markers written while the
// sync was running survive to the next cycle, as do markers for pairs
// the sync could not push out.
func (s *EntityStore) ClearChangedPairs(ctx context.Context, localeID int64, entityIDs []int64, before time.Time) error {
	if len(entityIDs) == 0 {
		return nil
	}
	_, err := s.SQ.Delete("changed_entity_locales").
		Where(sq.Eq{"locale_id": localeID}).
		Where(sq.Eq{"entity_id": entityIDs}).
		Where(sq.LtOrEq{"changed_at": formatTime(before)}).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("clear changed markers", err)
	}
	return nil
}

// StatusCounts computes the per-entity translation status projection
// for one resource and locale, the input to the status filters.
func (s *EntityStore) StatusCounts(ctx context.Context, resourceID int64, locale *model.Locale) (map[int64]model.StatusCounts, error) {
	entities := map[int64]*model.Entity{}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+entityColumns+`
        FROM entities WHERE resource_id = ? AND obsolete = 0`, resourceID)
	if err != nil {
		return nil, faults.Transient("list entities", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := map[int64]model.StatusCounts{}
	for id, e := range entities {
		out[id] = model.StatusCounts{Expected: e.ExpectedTranslationCount(locale)}
	}

	trows, err := s.DB.QueryContext(ctx, `SELECT t.entity_id, t.string,
        t.approved, t.fuzzy, t.rejected, e.string, e.string_plural, t.plural_form
        FROM translations t
        JOIN entities e ON e.id = t.entity_id
        WHERE e.resource_id = ? AND t.locale_id = ? AND e.obsolete = 0`,
		resourceID, locale.ID)
	if err != nil {
		return nil, faults.Transient("list translations", err)
	}
	defer trows.Close()
	for trows.Next() {
		var entityID int64
		var str, entityString, entityPlural string
		var approved, fuzzy, rejected bool
		var pluralForm int
		if err := trows.Scan(&entityID, &str, &approved, &fuzzy, &rejected,
			&entityString, &entityPlural, &pluralForm); err != nil {
			return nil, err
		}
		c := out[entityID]
		switch {
		case approved:
			c.Approved++
		case fuzzy:
			c.Fuzzy++
		case !rejected:
			c.Suggested++
		}
		if approved && str == entityString {
			c.Unchanged++
		}
		out[entityID] = c
	}
	return out, trows.Err()
}
