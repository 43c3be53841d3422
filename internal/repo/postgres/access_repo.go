package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccessCode is a pending SMS sign-in code; the raw code never touches the
// database, only its argon2id hash.
type AccessCode struct {
	ID        uuid.UUID
	Phone     string
	CodeHash  string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

type AccessCodeRepository interface {
	Create(ctx context.Context, phone, codeHash string, expiresAt time.Time) error
	GetActive(ctx context.Context, phone string) (*AccessCode, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
	Consume(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type accessCodeRepository struct {
	pool *pgxpool.Pool
}

func NewAccessCodeRepository(pool *pgxpool.Pool) AccessCodeRepository {
	return &accessCodeRepository{pool: pool}
}

func (r *accessCodeRepository) Create(ctx context.Context, phone, codeHash string, expiresAt time.Time) error {
	const q = `
		INSERT INTO guest_access_codes (id, phone, code_hash, expires_at)
		VALUES ($1,$2,$3,$4)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, uuid.New(), phone, codeHash, expiresAt)
	return err
}

func (r *accessCodeRepository) GetActive(ctx context.Context, phone string) (*AccessCode, error) {
	const q = `
		SELECT id, phone, code_hash, attempts, expires_at, created_at
		FROM guest_access_codes
		WHERE phone=$1 AND used_at IS NULL AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c AccessCode
	err := r.pool.QueryRow(ctx, q, phone).Scan(&c.ID, &c.Phone, &c.CodeHash, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *accessCodeRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE guest_access_codes SET attempts = attempts + 1 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *accessCodeRepository) Consume(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE guest_access_codes SET used_at = now() WHERE id=$1 AND used_at IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *accessCodeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `
		DELETE FROM guest_access_codes
		WHERE (used_at IS NOT NULL AND used_at < now() - interval '30 days')
		   OR (used_at IS NULL AND expires_at < now() - interval '7 days')`
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
