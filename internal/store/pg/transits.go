package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"passgate.org/internal/access"
)

const transitColumns = `transit_id, passage_id, badge_id, transit_date, is_authorized, violation_dpi`

func scanTransit(row rowScanner) (access.Transit, error) {
	var t access.Transit
	err := row.Scan(&t.ID, &t.Passage, &t.Badge, &t.TransitDate, &t.IsAuthorized, &t.ViolationDPI)
	return t, err
}

func (s *Store) CreateTransit(ctx context.Context, t access.Transit) (access.Transit, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into transits(passage_id, badge_id, transit_date, is_authorized, violation_dpi)
		values ($1, $2, $3, $4, $5)
		returning transit_id
	`, t.Passage, t.Badge, t.TransitDate, t.IsAuthorized, t.ViolationDPI).Scan(&t.ID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			if strings.Contains(pgErr.ConstraintName, "badge") {
				return access.Transit{}, access.ErrUserNotFound
			}
			return access.Transit{}, access.ErrPassageNotFound
		}
		return access.Transit{}, err
	}
	return t, nil
}

func (s *Store) GetTransit(ctx context.Context, id int64) (access.Transit, error) {
	t, err := scanTransit(s.db.QueryRowContext(ctx, `select `+transitColumns+` from transits where transit_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return access.Transit{}, access.ErrTransitNotFound
	}
	return t, err
}

func (s *Store) UpdateTransit(ctx context.Context, id int64, patch access.TransitPatch) (access.Transit, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if patch.TransitDate != nil {
		sets = append(sets, fmt.Sprintf("transit_date = $%d", idx))
		args = append(args, *patch.TransitDate)
		idx++
	}
	if patch.ViolationDPI != nil {
		sets = append(sets, fmt.Sprintf("violation_dpi = $%d", idx))
		args = append(args, *patch.ViolationDPI)
		idx++
	}
	if len(sets) == 0 {
		return s.GetTransit(ctx, id)
	}
	query := fmt.Sprintf(`update transits set %s where transit_id = $%d returning %s`,
		strings.Join(sets, ", "), idx, transitColumns)
	args = append(args, id)
	t, err := scanTransit(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return access.Transit{}, access.ErrTransitNotFound
	}
	return t, err
}

func (s *Store) DeleteTransit(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from transits where transit_id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return access.ErrTransitNotFound
	}
	return nil
}

func (s *Store) FindTransits(ctx context.Context, f access.TransitFilter) ([]access.Transit, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Badge != 0 {
		add("badge_id = $%d", f.Badge)
	}
	if f.Passage != 0 {
		add("passage_id = $%d", f.Passage)
	}
	if !f.From.IsZero() {
		add("transit_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("transit_date <= $%d", f.To)
	}

	query := `select ` + transitColumns + ` from transits`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by transit_date, transit_id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` limit $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []access.Transit{}
	for rows.Next() {
		t, err := scanTransit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
