package storage

import (
	"context"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

type RepositoryStore struct {
	*Store
}

func (s *RepositoryStore) Create(ctx context.Context, r *model.Repository) error {
	res, err := s.SQ.Insert("repositories").
		Columns("project_id", "type", "url", "permalink_prefix",
			"last_synced_revisions", "source_repo").
		Values(r.ProjectID, string(r.Type), r.URL, r.PermalinkPrefix,
			marshalJSON(r.LastSyncedRevisions), r.SourceRepo).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("create repository "+r.URL, err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// ForProject lists the project's repositories in insertion order, which
// is also the precedence order for path resolution.
func (s *RepositoryStore) ForProject(ctx context.Context, projectID int64) ([]*model.Repository, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, project_id, type, url,
        permalink_prefix, last_synced_revisions, source_repo
        FROM repositories WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, faults.Transient("list repositories", err)
	}
	defer rows.Close()
	var out []*model.Repository
	for rows.Next() {
		var r model.Repository
		var typ, revisions string
		if err := rows.Scan(&r.ID, &r.ProjectID, &typ, &r.URL,
			&r.PermalinkPrefix, &revisions, &r.SourceRepo); err != nil {
			return nil, err
		}
		r.Type = model.VCSType(typ)
		r.LastSyncedRevisions = unmarshalStringMap(revisions)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SetLastSyncedRevisions overwrites the whole revision map. Partial
// syncs must merge before calling.
func (s *RepositoryStore) SetLastSyncedRevisions(ctx context.Context, id int64, revisions map[string]string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE repositories SET last_synced_revisions = ? WHERE id = ?`,
		marshalJSON(revisions), id)
	if err != nil {
		return faults.Transient("update synced revisions", err)
	}
	return nil
}
