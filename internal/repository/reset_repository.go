package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"knitkart/internal/models"
)

var ErrResetNotFound = errors.New("password reset not found")

type ResetRepository struct {
	pool *pgxpool.Pool
}

func NewResetRepository(pool *pgxpool.Pool) *ResetRepository {
	return &ResetRepository{pool: pool}
}

func (r *ResetRepository) Create(ctx context.Context, reset models.PasswordReset) error {
	const query = `
		INSERT INTO password_resets (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.pool.Exec(ctx, query, reset.ID, reset.UserID, reset.TokenHash, reset.ExpiresAt)
	return err
}

// Redeem consumes an unused, unexpired reset and stores the new password
// hash for its user in one transaction. A token can be redeemed once, and a
// failed password write leaves the token unused.
func (r *ResetRepository) Redeem(ctx context.Context, tokenHash []byte, now time.Time, passwordHash []byte) (models.PasswordReset, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.PasswordReset{}, fmt.Errorf("begin redeem: %w", err)
	}
	defer tx.Rollback(ctx)

	const consume = `
		UPDATE password_resets
		SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING id, user_id, token_hash, expires_at, used_at, created_at
	`

	var reset models.PasswordReset
	if err := tx.QueryRow(ctx, consume, tokenHash, now).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.TokenHash,
		&reset.ExpiresAt,
		&reset.UsedAt,
		&reset.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PasswordReset{}, ErrResetNotFound
		}
		return models.PasswordReset{}, err
	}

	const setPassword = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	cmd, err := tx.Exec(ctx, setPassword, reset.UserID, passwordHash, now)
	if err != nil {
		return models.PasswordReset{}, err
	}
	if cmd.RowsAffected() == 0 {
		return models.PasswordReset{}, ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return models.PasswordReset{}, fmt.Errorf("commit redeem: %w", err)
	}
	return reset, nil
}

func (r *ResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM password_resets WHERE expires_at <= $1 OR used_at IS NOT NULL`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
