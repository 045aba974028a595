package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"passgate.org/internal/access"
)

func (s *Store) FindPassage(ctx context.Context, id int64) (access.Passage, error) {
	var p access.Passage
	err := s.db.QueryRowContext(ctx, `
		select passage_id, level, needs_dpi from passages where passage_id = $1
	`, id).Scan(&p.ID, &p.Level, &p.NeedsDPI)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Passage{}, access.ErrPassageNotFound
	}
	return p, err
}

func (s *Store) FindAuthorization(ctx context.Context, badge, passage int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from authorizations where badge_id = $1 and passage_id = $2)
	`, badge, passage).Scan(&ok)
	return ok, err
}

func (s *Store) CreateAuthorization(ctx context.Context, a access.Authorization) (access.Authorization, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into authorizations(badge_id, passage_id, created_at)
		values ($1, $2, $3)
		returning created_at
	`, a.Badge, a.Passage, a.CreatedAt).Scan(&a.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return access.Authorization{}, access.ErrAuthorizationConflict
			case pgErrForeignKeyViolation:
				if strings.Contains(pgErr.ConstraintName, "badge") {
					return access.Authorization{}, access.ErrUserNotFound
				}
				return access.Authorization{}, access.ErrPassageNotFound
			}
		}
		return access.Authorization{}, err
	}
	return a, nil
}

func (s *Store) DeleteAuthorization(ctx context.Context, badge, passage int64) error {
	res, err := s.db.ExecContext(ctx, `
		delete from authorizations where badge_id = $1 and passage_id = $2
	`, badge, passage)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return access.ErrAuthorizationNotFound
	}
	return nil
}
