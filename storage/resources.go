package storage

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

type ResourceStore struct {
	*Store
}

func (s *ResourceStore) Create(ctx context.Context, r *model.Resource) error {
	res, err := s.SQ.Insert("resources").
		Columns("project_id", "path", "format", "total_strings").
		Values(r.ProjectID, r.Path, string(r.Format), r.TotalStrings).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("create resource "+r.Path, err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (s *ResourceStore) ByPath(ctx context.Context, projectID int64, path string) (*model.Resource, error) {
	var r model.Resource
	var format string
	err := s.DB.QueryRowContext(ctx, `SELECT id, project_id, path, format, total_strings
        FROM resources WHERE project_id = ? AND path = ?`, projectID, path).
		Scan(&r.ID, &r.ProjectID, &r.Path, &format, &r.TotalStrings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("resource " + path + " not found")
	}
	if err != nil {
		return nil, err
	}
	r.Format = model.Format(format)
	return &r, nil
}

func (s *ResourceStore) ForProject(ctx context.Context, projectID int64) ([]*model.Resource, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, project_id, path, format, total_strings
        FROM resources WHERE project_id = ? ORDER BY path`, projectID)
	if err != nil {
		return nil, faults.Transient("list resources", err)
	}
	defer rows.Close()
	var out []*model.Resource
	for rows.Next() {
		var r model.Resource
		var format string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Path, &format, &r.TotalStrings); err != nil {
			return nil, err
		}
		r.Format = model.Format(format)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *ResourceStore) SetTotalStrings(ctx context.Context, id int64, total int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE resources SET total_strings = ? WHERE id = ?`, total, id)
	return err
}

// AsymmetricPathsForEntities returns the distinct resource paths, in
// asymmetric formats only, that own the given entities. Used to list
// target files that should be deleted when their entities go obsolete.
func (s *ResourceStore) AsymmetricPathsForEntities(ctx context.Context, entityIDs []int64) ([]string, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	query, args, err := s.SQ.Select("DISTINCT r.path").
		From("resources r").
		Join("entities e ON e.resource_id = r.id").
		Where(sq.Eq{"e.id": entityIDs}).
		Where(sq.Eq{"r.format": asymmetricFormatNames()}).
		OrderBy("r.path").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Transient("list obsolete resource paths", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func asymmetricFormatNames() []string {
	var out []string
	for _, f := range []model.Format{
		model.FormatDTD, model.FormatProperties, model.FormatINI,
		model.FormatINC, model.FormatL20N, model.FormatFTL,
	} {
		out = append(out, string(f))
	}
	return out
}
