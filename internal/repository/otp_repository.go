package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velora-app/accounts/internal/domain"
)

type OTPRepository interface {
	Create(ctx context.Context, userID int64, code string, purpose domain.OTPPurpose, expiresAt time.Time) error
	// Find returns nil on no match. Expired records still match; the caller
	// decides what expiry means.
	Find(ctx context.Context, userID int64, code string, purpose domain.OTPPurpose) (*domain.OTP, error)
	Delete(ctx context.Context, id int64) error
}

type otpRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(pool *pgxpool.Pool) OTPRepository {
	return &otpRepository{pool: pool}
}

const otpCols = `id, user_id, code, purpose, expires_at, created_at`

func (r *otpRepository) Create(ctx context.Context, userID int64, code string, purpose domain.OTPPurpose, expiresAt time.Time) error {
	const q = `
		INSERT INTO otps (user_id, code, purpose, expires_at)
		VALUES ($1, $2, $3, $4)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID, code, purpose, expiresAt)
	return err
}

func (r *otpRepository) Find(ctx context.Context, userID int64, code string, purpose domain.OTPPurpose) (*domain.OTP, error) {
	const q = `
		SELECT ` + otpCols + `
		FROM otps
		WHERE user_id = $1 AND code = $2 AND purpose = $3
		ORDER BY id DESC
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var o domain.OTP
	err := r.pool.QueryRow(ctx, q, userID, code, purpose).Scan(
		&o.ID, &o.UserID, &o.Code, &o.Purpose, &o.ExpiresAt, &o.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *otpRepository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM otps WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return nil
}
