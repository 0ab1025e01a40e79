package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

type UserStore struct {
	*Store
}

func (s *UserStore) Create(ctx context.Context, u *model.UserProfile) error {
	res, err := s.SQ.Insert("users").
		Columns("first_name", "email").
		Values(u.FirstName, u.Email).
		RunWith(s.DB).ExecContext(ctx)
	if err != nil {
		return faults.Transient("create user "+u.Email, err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (s *UserStore) ByID(ctx context.Context, id int64) (*model.UserProfile, error) {
	var u model.UserProfile
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, first_name, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.FirstName, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
