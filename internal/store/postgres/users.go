package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
	"bazar/backend/internal/xid"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, username, email, password_hash, first_name, last_name, phone,
	role, status, login_attempts, lock_until, last_login, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var lockUntil, lastLogin sql.NullTime
	if err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Profile.FirstName, &user.Profile.LastName, &user.Profile.Phone,
		&user.Role, &user.Status, &user.LoginAttempts, &lockUntil, &lastLogin,
		&user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.LockUntil = timePtr(lockUntil)
	user.LastLogin = timePtr(lastLogin)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.ID == "" {
		user.ID = xid.New()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, user.ID, user.Username, user.Email, user.PasswordHash,
		user.Profile.FirstName, user.Profile.LastName, user.Profile.Phone,
		user.Role, user.Status, user.LoginAttempts, nullTime(user.LockUntil), nullTime(user.LastLogin),
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (s *Store) GetUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(username) = $1 OR lower(email) = $1
		LIMIT 1
	`, login))
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

var userSortColumns = map[string]string{
	"username":  "username",
	"email":     "email",
	"role":      "role",
	"createdAt": "created_at",
}

func (s *Store) ListUsers(ctx context.Context, filter store.ListFilter) (store.Page[domain.User], error) {
	filter = filter.Normalize()
	where := &whereClause{}
	if filter.Status != "" {
		where.add("status = " + where.arg(filter.Status))
	}
	where.search(filter.Search, "username", "email", "first_name", "last_name")

	total, err := s.count(ctx, "users", where)
	if err != nil {
		return store.Page[domain.User]{}, err
	}

	query := `SELECT ` + userColumns + ` FROM users ` + where.String() + " " +
		orderBy(filter.Sort, "username", userSortColumns) + " " + pageClause(where, filter)
	rows, err := s.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return store.Page[domain.User]{}, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, filter.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return store.Page[domain.User]{}, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return store.Page[domain.User]{}, err
	}
	return store.Page[domain.User]{Items: users, Total: total}, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&total)
	return total, err
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2, password_hash = $3, first_name = $4, last_name = $5, phone = $6,
			role = $7, status = $8, login_attempts = $9, lock_until = $10, updated_at = $11
		WHERE id = $1
	`, user.ID, user.Email, user.PasswordHash, user.Profile.FirstName, user.Profile.LastName,
		user.Profile.Phone, user.Role, user.Status, user.LoginAttempts, nullTime(user.LockUntil), user.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUserByID(ctx, user.ID)
}

// RecordLoginFailure locks the row so concurrent bad attempts count once each.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (*domain.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	user.RegisterFailedLogin(maxAttempts, lockFor, now)

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET login_attempts = $2, lock_until = $3, updated_at = $4 WHERE id = $1
	`, user.ID, user.LoginAttempts, nullTime(user.LockUntil), user.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET login_attempts = 0, lock_until = NULL, last_login = $2 WHERE id = $1
	`, id, now)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
