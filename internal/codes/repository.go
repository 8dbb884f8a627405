package codes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/budgetblitz/budgetblitz/internal/platform/db"
)

// Repository defines persistence for one-time codes.
type Repository interface {
	Insert(ctx context.Context, code Code) (int64, error)
	// ListByPurpose returns every stored code of purpose, newest first.
	ListByPurpose(ctx context.Context, purpose Purpose) ([]Code, error)
	FindByID(ctx context.Context, id int64) (Code, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the read-modify-write steps of redemption.
type TxRepository interface {
	// LockByID loads the code and holds a row lock until the transaction ends.
	LockByID(ctx context.Context, id int64) (Code, error)
	// MarkValidated sets validated_at only if it is still NULL and reports
	// whether this call won.
	MarkValidated(ctx context.Context, id int64, at time.Time) (bool, error)
	// MarkRedeemed sets redeemed_at only if it is still NULL and reports
	// whether this call won.
	MarkRedeemed(ctx context.Context, id int64, at time.Time) (bool, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const codeColumns = `id, user_id, purpose, code_hash, created_at, expired_at, validated_at, redeemed_at`

// Insert stores a new code.
func (r *PGRepository) Insert(ctx context.Context, code Code) (int64, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO one_time_codes (user_id, purpose, code_hash, created_at, expired_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		code.UserID, string(code.Purpose), code.Hash, code.CreatedAt.UTC(), code.ExpiredAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("codes: insert: %w", err)
	}
	return id, nil
}

// ListByPurpose returns every code of purpose, newest first.
func (r *PGRepository) ListByPurpose(ctx context.Context, purpose Purpose) ([]Code, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+codeColumns+` FROM one_time_codes WHERE purpose = $1 ORDER BY created_at DESC, id DESC`,
		string(purpose),
	)
	if err != nil {
		return nil, fmt.Errorf("codes: list: %w", err)
	}
	defer rows.Close()

	var result []Code
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("codes: scan: %w", err)
		}
		result = append(result, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("codes: list rows: %w", err)
	}
	return result, nil
}

// FindByID loads a code by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (Code, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+codeColumns+` FROM one_time_codes WHERE id = $1`, id)
	code, err := scanCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Code{}, ErrNotFound
		}
		return Code{}, fmt.Errorf("codes: find: %w", err)
	}
	return code, nil
}

// PurgeExpired deletes codes that expired before cutoff and reports how many
// rows were removed.
func (r *PGRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM one_time_codes WHERE expired_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("codes: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// WithTx wraps fn in a repeatable-read transaction, joining one already bound to ctx.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) LockByID(ctx context.Context, id int64) (Code, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+codeColumns+` FROM one_time_codes WHERE id = $1 FOR UPDATE`, id)
	code, err := scanCode(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Code{}, ErrNotFound
	case db.IsSerializationFailure(err):
		// A concurrent transaction redeemed the row first.
		return Code{}, ErrAlreadyConsumed
	case err != nil:
		return Code{}, fmt.Errorf("codes: lock: %w", err)
	}
	return code, nil
}

func (t *txRepository) MarkValidated(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE one_time_codes SET validated_at = $2 WHERE id = $1 AND validated_at IS NULL`,
		id, at.UTC(),
	)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("codes: mark validated: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) MarkRedeemed(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE one_time_codes SET redeemed_at = $2 WHERE id = $1 AND redeemed_at IS NULL`,
		id, at.UTC(),
	)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("codes: mark redeemed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanCode(row pgx.Row) (Code, error) {
	var (
		code      Code
		purpose   string
		validated *time.Time
		redeemed  *time.Time
	)
	if err := row.Scan(&code.ID, &code.UserID, &purpose, &code.Hash, &code.CreatedAt, &code.ExpiredAt, &validated, &redeemed); err != nil {
		return Code{}, err
	}
	code.Purpose = Purpose(purpose)
	code.ValidatedAt = validated
	code.RedeemedAt = redeemed
	return code, nil
}

var _ Repository = (*PGRepository)(nil)
