package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/budgetblitz/budgetblitz/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence. Writes join a
// transaction bound to ctx by db.RunInTx.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `u.id, u.first_name, u.last_name, u.email, u.date_of_birth, u.password_hash,
	u.email_verified, u.enabled, u.account_locked, u.credentials_expired, u.created_at, u.updated_at,
	COALESCE((SELECT array_agg(r.name ORDER BY r.name) FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id = u.id), '{}')`

// FindByEmail fetches a user by email, ignoring case.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE LOWER(u.email) = LOWER($1)`, email)
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *Repository) FindByID(ctx context.Context, id int64) (User, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id)
	return scanUser(row)
}

// ExistsByEmail reports whether an account uses email, ignoring case.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("users: exists: %w", err)
	}
	return exists, nil
}

// Create inserts the user together with its roles.
func (r *Repository) Create(ctx context.Context, user User, roles []string) (int64, error) {
	var id int64
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		now := time.Now().UTC()
		err := tx.QueryRow(ctx,
			`INSERT INTO users (first_name, last_name, email, date_of_birth, password_hash,
				email_verified, enabled, account_locked, credentials_expired, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) RETURNING id`,
			user.FirstName, user.LastName, user.Email, user.DateOfBirth, user.PasswordHash,
			user.EmailVerified, user.Enabled, user.AccountLocked, user.CredentialsExpired, now,
		).Scan(&id)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("users: insert: %w", err)
		}
		if len(roles) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id) SELECT $1, id FROM roles WHERE name = ANY($2)`,
			id, roles,
		); err != nil {
			return fmt.Errorf("users: assign roles: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateProfile replaces the name fields.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, firstName, lastName string) error {
	return r.exec(ctx, "update profile",
		`UPDATE users SET first_name = $2, last_name = $3, updated_at = NOW() WHERE id = $1`, id, firstName, lastName)
}

// UpdatePassword replaces the password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.exec(ctx, "update password",
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
}

// SetEnabled toggles the enabled flag.
func (r *Repository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return r.exec(ctx, "set enabled",
		`UPDATE users SET enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled)
}

// MarkVerified activates the account after email verification.
func (r *Repository) MarkVerified(ctx context.Context, id int64) error {
	return r.exec(ctx, "mark verified",
		`UPDATE users SET email_verified = TRUE, enabled = TRUE, updated_at = NOW() WHERE id = $1`, id)
}

func (r *Repository) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("users: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.DateOfBirth, &u.PasswordHash,
		&u.EmailVerified, &u.Enabled, &u.AccountLocked, &u.CredentialsExpired, &u.CreatedAt, &u.UpdatedAt, &u.Roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("users: scan: %w", err)
	}
	return u, nil
}
