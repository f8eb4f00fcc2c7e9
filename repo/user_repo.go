package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Skryldev/mobile-boilerplate-api/db"
	"github.com/Skryldev/mobile-boilerplate-api/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// UserRepository interface
// ─────────────────────────────────────────────────────────────────────────────

// UserRepository defines the contract for user persistence operations.
// Errors carry the db sentinels: db.ErrNotFound, db.ErrDuplicateKey, ...
type UserRepository interface {
	Insert(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// List returns one page of users, newest first, and the number of rows
	// matching the search before pagination.
	List(ctx context.Context, params models.ListUsersParams) ([]*models.User, int64, error)
	Count(ctx context.Context, search string) (int64, error)
	Update(ctx context.Context, params models.UpdateUserParams) (*models.User, error)
	// Delete reports whether a row was removed. A missing id is not an error.
	Delete(ctx context.Context, id int64) (bool, error)
	BatchInsert(ctx context.Context, params []models.CreateUserParams) ([]*models.User, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// userRepo
// ─────────────────────────────────────────────────────────────────────────────

// userRepo is the production implementation backed by a db.Querier.
type userRepo struct {
	q db.Querier
}

// NewUserRepo returns a UserRepository backed by q.
// q can be a *db.DB or *db.Tx; both satisfy db.Querier.
func NewUserRepo(q db.Querier) UserRepository {
	return &userRepo{q: q}
}

// ─────────────────────────────────────────────────────────────────────────────
// SQL constants
// ─────────────────────────────────────────────────────────────────────────────

// Placeholders are always $N; the db layer rebinds them for MySQL and SQLite.
const (
	userColumns = `id, name, email, created_at, updated_at`

	sqlInsertUser = `
		INSERT INTO users (name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $3)`

	sqlGetUserByID = `
		SELECT ` + userColumns + `
		FROM   users
		WHERE  id = $1`

	sqlSearchFilter = `
		WHERE  LOWER(name) LIKE LOWER($1) OR LOWER(email) LIKE LOWER($1)`

	sqlDeleteUser = `
		DELETE FROM users WHERE id = $1`

	sqlDeleteAllUsers = `
		DELETE FROM users`

	sqlCountUsers = `
		SELECT COUNT(*) FROM users`

	returningUser = `
		RETURNING ` + userColumns
)

// ─────────────────────────────────────────────────────────────────────────────
// Insert
// ─────────────────────────────────────────────────────────────────────────────

// Insert creates a new user and returns the persisted record including the
// database-assigned id and timestamps.
func (r *userRepo) Insert(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	now := timestamp()
	if r.q.Dialect().Returning {
		return scanUser(r.q.QueryRow(ctx, sqlInsertUser+returningUser, params.Name, params.Email, now))
	}

	res, err := r.q.Exec(ctx, sqlInsertUser, params.Name, params.Email, now)
	if err != nil {
		return nil, fmt.Errorf("repo/user: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("repo/user: last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns a single user by primary key.
// Returns db.ErrNotFound when no record matches.
func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.q.QueryRow(ctx, sqlGetUserByID, id))
}

// ─────────────────────────────────────────────────────────────────────────────
// List / Count
// ─────────────────────────────────────────────────────────────────────────────

// List counts the matching rows, then fetches the requested page. The two
// statements do not share a snapshot, so a concurrent write can make the total
// disagree with the page.
func (r *userRepo) List(ctx context.Context, params models.ListUsersParams) ([]*models.User, int64, error) {
	params = params.Normalize()

	total, err := r.Count(ctx, params.Search)
	if err != nil {
		return nil, 0, err
	}

	where, args := searchClause(params.Search)
	n := len(args)
	query := fmt.Sprintf(`
		SELECT %s
		FROM   users %s
		ORDER  BY created_at DESC, id DESC
		LIMIT  $%d OFFSET $%d`, userColumns, where, n+1, n+2)
	args = append(args, params.Limit, params.Offset())

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repo/user: list: %w", err)
	}
	defer rows.Close()

	// limit comes from the request; grow with the rows actually returned.
	users := []*models.User{}
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("repo/user: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo/user: list: %w", err)
	}
	return users, total, nil
}

// Count returns the number of users matching search; an empty search counts
// every row.
func (r *userRepo) Count(ctx context.Context, search string) (int64, error) {
	where, args := searchClause(search)
	var n int64
	if err := r.q.QueryRow(ctx, sqlCountUsers+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo/user: count: %w", err)
	}
	return n, nil
}

// searchClause matches name or email as a case-insensitive substring. LIKE
// wildcards in the search text are not escaped.
func searchClause(search string) (string, []any) {
	if search == "" {
		return "", nil
	}
	return sqlSearchFilter, []any{"%" + search + "%"}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update: partial update with explicit SQL construction
// ─────────────────────────────────────────────────────────────────────────────

// Update applies a partial update to a user record. Only fields with non-nil
// pointers in params are written; updated_at is always refreshed.
// Returns db.ErrNotFound when the id does not exist.
func (r *userRepo) Update(ctx context.Context, params models.UpdateUserParams) (*models.User, error) {
	existing, err := r.GetByID(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	setClauses := make([]string, 0, 3)
	args := make([]any, 0, 4)
	argIdx := 1

	if params.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *params.Name)
		argIdx++
	}
	if params.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argIdx))
		args = append(args, *params.Email)
		argIdx++
	}

	// updated_at must move forward even when the clock has not ticked at the
	// column's precision.
	now := timestamp()
	if !now.After(existing.UpdatedAt) {
		now = existing.UpdatedAt.Add(time.Microsecond)
	}
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argIdx))
	args = append(args, now)
	argIdx++

	args = append(args, params.ID)

	query := fmt.Sprintf(`
		UPDATE users
		SET    %s
		WHERE  id = $%d`,
		strings.Join(setClauses, ", "), argIdx)

	if r.q.Dialect().Returning {
		return scanUser(r.q.QueryRow(ctx, query+returningUser, args...))
	}

	// MySQL reports zero affected rows when the values are unchanged, so a
	// vanished row is detected by the re-read rather than RowsAffected.
	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("repo/user: update: %w", err)
	}
	return r.GetByID(ctx, params.ID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────────────────

// Delete removes a user by id and reports whether a row was removed.
func (r *userRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.Exec(ctx, sqlDeleteUser, id)
	if err != nil {
		return false, fmt.Errorf("repo/user: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repo/user: rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteAll removes every user and returns the number of rows deleted.
func (r *userRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.q.Exec(ctx, sqlDeleteAllUsers)
	if err != nil {
		return 0, fmt.Errorf("repo/user: delete all: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repo/user: rows affected: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// BatchInsert
// ─────────────────────────────────────────────────────────────────────────────

// BatchInsert inserts multiple users through one prepared statement. Run it
// inside (*db.DB).ExecTx for all-or-nothing semantics.
func (r *userRepo) BatchInsert(ctx context.Context, params []models.CreateUserParams) ([]*models.User, error) {
	if len(params) == 0 {
		return nil, nil
	}

	returning := r.q.Dialect().Returning
	query := sqlInsertUser
	if returning {
		query += returningUser
	}

	stmt, err := r.q.Prepare(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repo/user: prepare: %w", err)
	}
	defer stmt.Close()

	now := timestamp()
	users := make([]*models.User, 0, len(params))
	for _, p := range params {
		var u *models.User
		if returning {
			u, err = scanUser(stmt.QueryRow(ctx, p.Name, p.Email, now))
		} else {
			u, err = r.insertWith(ctx, stmt, p, now)
		}
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *userRepo) insertWith(ctx context.Context, stmt *db.Stmt, p models.CreateUserParams, now time.Time) (*models.User, error) {
	res, err := stmt.Exec(ctx, p.Name, p.Email, now)
	if err != nil {
		return nil, fmt.Errorf("repo/user: insert %s: %w", p.Email, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("repo/user: last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

// scanUser scans a single user row. Centralising the scan call means that
// adding/removing columns only requires a change in one place.
func scanUser(row *db.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repo/user: %w", err)
	}
	return u, nil
}

// timestamp is truncated to microseconds, the finest precision shared by
// PostgreSQL and MySQL DATETIME(6).
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

var _ UserRepository = (*userRepo)(nil)
