package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/model"
)

type challengeRepo struct {
	db *sql.DB
}

// NewChallengeRepo creates a Postgres-backed ChallengeRepo
func NewChallengeRepo(db *sql.DB) ChallengeRepo {
	return &challengeRepo{db: db}
}

// Put stores c, replacing any previous challenge for the same phone hash
func (r *challengeRepo) Put(ctx context.Context, c model.VerificationChallenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_challenges
			(phone_hash, id, phone_number, name, code_hash, created_at, expires_at, attempts, max_attempts, consumed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (phone_hash) DO UPDATE SET
			id = EXCLUDED.id,
			phone_number = EXCLUDED.phone_number,
			name = EXCLUDED.name,
			code_hash = EXCLUDED.code_hash,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			attempts = EXCLUDED.attempts,
			max_attempts = EXCLUDED.max_attempts,
			consumed = EXCLUDED.consumed
	`, c.PhoneHash, c.ID, c.PhoneNumber, c.Name, c.CodeHash, c.CreatedAt, c.ExpiresAt,
		c.Attempts, c.MaxAttempts, c.Consumed)
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// Get returns the challenge for the phone hash whatever its state
func (r *challengeRepo) Get(ctx context.Context, phoneHash string) (model.VerificationChallenge, error) {
	var c model.VerificationChallenge
	err := r.db.QueryRowContext(ctx, `
		SELECT phone_hash, id, phone_number, name, code_hash, created_at, expires_at,
		       attempts, max_attempts, consumed
		FROM verification_challenges
		WHERE phone_hash = $1
	`, phoneHash).Scan(
		&c.PhoneHash,
		&c.ID,
		&c.PhoneNumber,
		&c.Name,
		&c.CodeHash,
		&c.CreatedAt,
		&c.ExpiresAt,
		&c.Attempts,
		&c.MaxAttempts,
		&c.Consumed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.VerificationChallenge{}, ErrNotFound
		}
		return model.VerificationChallenge{}, fmt.Errorf("query challenge: %w", err)
	}
	return c, nil
}

// IncrementAttempts sets attempts = attempts + 1 and returns the new count
func (r *challengeRepo) IncrementAttempts(ctx context.Context, phoneHash string, id uuid.UUID) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE verification_challenges
		SET attempts = attempts + 1
		WHERE phone_hash = $1 AND id = $2 AND NOT consumed AND attempts < max_attempts
		RETURNING attempts
	`, phoneHash, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrConditionFailed
		}
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return attempts, nil
}

// Consume sets consumed = true once
func (r *challengeRepo) Consume(ctx context.Context, phoneHash string, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE verification_challenges
		SET consumed = TRUE
		WHERE phone_hash = $1 AND id = $2 AND NOT consumed AND attempts < max_attempts
	`, phoneHash, id)
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrConditionFailed
	}
	return nil
}
