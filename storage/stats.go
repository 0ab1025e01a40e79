package storage

import (
	"context"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

// AggregateProjectStats recomputes the project counters from scratch as
// the sum of its translated resources. The incremental cascade keeps
// them current during normal operation; this is the repair path.
func (s *Store) AggregateProjectStats(ctx context.Context, projectID int64) error {
	next, err := s.sumStats(ctx, `SELECT
        COALESCE(SUM(tr.total_strings), 0),
        COALESCE(SUM(tr.approved_strings), 0),
        COALESCE(SUM(tr.fuzzy_strings), 0),
        COALESCE(SUM(tr.translated_strings), 0)
        FROM translated_resources tr
        JOIN resources r ON r.id = tr.resource_id
        WHERE r.project_id = ?`, projectID)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE projects SET
        total_strings = ?, approved_strings = ?, fuzzy_strings = ?, translated_strings = ?
        WHERE id = ?`,
		next.TotalStrings, next.ApprovedStrings, next.FuzzyStrings, next.TranslatedStrings,
		projectID)
	return err
}

// AggregateLocaleStats recomputes the locale counters from scratch.
// Disabled projects are excluded so retired work stops counting against
// the locale's completion.
func (s *Store) AggregateLocaleStats(ctx context.Context, localeID int64) error {
	next, err := s.sumStats(ctx, `SELECT
        COALESCE(SUM(tr.total_strings), 0),
        COALESCE(SUM(tr.approved_strings), 0),
        COALESCE(SUM(tr.fuzzy_strings), 0),
        COALESCE(SUM(tr.translated_strings), 0)
        FROM translated_resources tr
        JOIN resources r ON r.id = tr.resource_id
        JOIN projects p ON p.id = r.project_id
        WHERE tr.locale_id = ? AND p.disabled = 0`, localeID)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE locales SET
        total_strings = ?, approved_strings = ?, fuzzy_strings = ?, translated_strings = ?
        WHERE id = ?`,
		next.TotalStrings, next.ApprovedStrings, next.FuzzyStrings, next.TranslatedStrings,
		localeID)
	return err
}

// AggregateProjectLocaleStats recomputes one project-locale rollup.
func (s *Store) AggregateProjectLocaleStats(ctx context.Context, projectID, localeID int64) error {
	next, err := s.sumStats(ctx, `SELECT
        COALESCE(SUM(tr.total_strings), 0),
        COALESCE(SUM(tr.approved_strings), 0),
        COALESCE(SUM(tr.fuzzy_strings), 0),
        COALESCE(SUM(tr.translated_strings), 0)
        FROM translated_resources tr
        JOIN resources r ON r.id = tr.resource_id
        WHERE r.project_id = ? AND tr.locale_id = ?`, projectID, localeID)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE project_locales SET
        total_strings = ?, approved_strings = ?, fuzzy_strings = ?, translated_strings = ?
        WHERE project_id = ? AND locale_id = ?`,
		next.TotalStrings, next.ApprovedStrings, next.FuzzyStrings, next.TranslatedStrings,
		projectID, localeID)
	return err
}

func (s *Store) sumStats(ctx context.Context, query string, args ...any) (model.AggregatedStats, error) {
	var stats model.AggregatedStats
	err := s.DB.QueryRowContext(ctx, query, args...).
		Scan(&stats.TotalStrings, &stats.ApprovedStrings, &stats.FuzzyStrings, &stats.TranslatedStrings)
	if err != nil {
		return stats, faults.Transient("aggregate stats", err)
	}
	return stats, nil
}
