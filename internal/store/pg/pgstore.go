package pg

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"passgate.org/internal/access"
	"passgate.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements access.Repository on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ access.Repository = (*Store)(nil)

// Open connects with the pgx stdlib driver and tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const userColumns = `badge_id, email, password_hash, role, is_suspended, tokens, passage_reference,
	unauthorized_attempts, suspended_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (access.User, error) {
	var (
		u           access.User
		role        string
		passageRef  sql.NullInt64
		suspendedAt sql.NullTime
	)
	if err := row.Scan(&u.Badge, &u.Email, &u.PasswordHash, &role, &u.IsSuspended, &u.Tokens, &passageRef,
		&u.UnauthorizedAttempts, &suspendedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return access.User{}, err
	}
	u.Role, _ = auth.ParseRole(role)
	if passageRef.Valid {
		v := passageRef.Int64
		u.PassageReference = &v
	}
	if suspendedAt.Valid {
		v := suspendedAt.Time
		u.SuspendedAt = &v
	}
	return u, nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]access.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []access.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindUser(ctx context.Context, badge int64) (access.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where badge_id = $1`, badge))
	if errors.Is(err, sql.ErrNoRows) {
		return access.User{}, access.ErrUserNotFound
	}
	return u, err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (access.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return access.User{}, access.ErrUserNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, badges []int64) ([]access.User, error) {
	if len(badges) == 0 {
		return s.queryUsers(ctx, `select `+userColumns+` from users order by badge_id`)
	}
	in, args := inList(badges, 1)
	return s.queryUsers(ctx, `select `+userColumns+` from users where badge_id in (`+in+`) order by badge_id`, args...)
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

func (s *Store) CreateUser(ctx context.Context, u access.User) (access.User, error) {
	var ref sql.NullInt64
	if u.PassageReference != nil {
		ref = sql.NullInt64{Int64: *u.PassageReference, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		insert into users(email, password_hash, role, tokens, passage_reference, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning badge_id
	`, u.Email, u.PasswordHash, string(u.Role), u.Tokens, ref, u.CreatedAt, u.UpdatedAt).Scan(&u.Badge)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return access.User{}, &access.Error{Kind: access.KindValidation, Err: fmt.Errorf("user already exists: %s", pgErr.ConstraintName)}
			case pgErrForeignKeyViolation:
				return access.User{}, access.ErrPassageNotFound
			}
		}
		return access.User{}, err
	}
	return u, nil
}

// counterColumns whitelists the columns IncrementUserCounter may touch.
var counterColumns = map[access.CounterField]string{
	access.CounterUnauthorizedAttempts: "unauthorized_attempts",
}

func (s *Store) IncrementUserCounter(ctx context.Context, badge int64, field access.CounterField) (int, error) {
	col, ok := counterColumns[field]
	if !ok {
		return 0, fmt.Errorf("unknown counter %q", field)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`update users set %[1]s = %[1]s + 1 where badge_id = $1 returning %[1]s`, col),
		badge).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, access.ErrUserNotFound
	}
	return n, err
}

func (s *Store) SuspendUser(ctx context.Context, badge int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update users
		set is_suspended = true, unauthorized_attempts = 0, suspended_at = $2, updated_at = $2
		where badge_id = $1 and not is_suspended
	`, badge, at)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if aff > 0 {
		return true, nil
	}
	// Already suspended: drop strikes gathered meanwhile, keep the timestamps.
	res, err = s.db.ExecContext(ctx, `update users set unauthorized_attempts = 0 where badge_id = $1`, badge)
	if err != nil {
		return false, err
	}
	aff, err = res.RowsAffected()
	if err != nil {
		return false, err
	}
	if aff == 0 {
		return false, access.ErrUserNotFound
	}
	return false, nil
}

func (s *Store) ReactivateUser(ctx context.Context, badge int64, observed, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update users
		set is_suspended = false, suspended_at = null, updated_at = $3
		where badge_id = $1 and is_suspended and updated_at = $2
	`, badge, observed, at)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *Store) ResetUsers(ctx context.Context, badges []int64, at time.Time) ([]access.User, error) {
	query := `
		update users
		set is_suspended = false, unauthorized_attempts = 0, suspended_at = null, updated_at = $1
		where is_suspended`
	args := []any{at}
	if len(badges) > 0 {
		in, inArgs := inList(badges, 2)
		query += ` and badge_id in (` + in + `)`
		args = append(args, inArgs...)
	}
	users, err := s.queryUsers(ctx, query+` returning `+userColumns, args...)
	if err != nil {
		return nil, err
	}
	sortUsers(users)
	return users, nil
}

func (s *Store) FindAllSuspendedUsers(ctx context.Context) ([]access.User, error) {
	return s.queryUsers(ctx, `select `+userColumns+` from users where is_suspended order by badge_id`)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// inList renders $start..$start+n-1 placeholders for an IN clause.
func inList(ids []int64, start int) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}
	return strings.Join(ph, ", "), args
}

func sortUsers(us []access.User) {
	slices.SortFunc(us, func(a, b access.User) int { return cmp.Compare(a.Badge, b.Badge) })
}
