package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/model"
)

const accountColumns = `id, phone_hash, phone_number, region, name, bio, photo_key, photo_url,
	role, status, created_at, updated_at, approved_at, approved_by`

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo instance
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

func scanAccount(row rowScanner) (model.Account, error) {
	var a model.Account
	var approvedBy uuid.NullUUID
	err := row.Scan(
		&a.ID,
		&a.PhoneHash,
		&a.PhoneNumber,
		&a.Region,
		&a.Name,
		&a.Bio,
		&a.PhotoKey,
		&a.PhotoURL,
		&a.Role,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.ApprovedAt,
		&approvedBy,
	)
	if err != nil {
		return model.Account{}, err
	}
	if !a.Status.Valid() {
		return model.Account{}, fmt.Errorf("account %s has unknown status %q", a.ID, a.Status)
	}
	if approvedBy.Valid {
		a.ApprovedBy = &approvedBy.UUID
	}
	return a, nil
}

// ExistsByPhoneHash reports whether any account, in any status, uses the phone hash
func (r *accountRepo) ExistsByPhoneHash(ctx context.Context, phoneHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE phone_hash = $1)
	`, phoneHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account exists: %w", err)
	}
	return exists, nil
}

// CreatePending inserts the account and its approval request in one transaction
func (r *accountRepo) CreatePending(ctx context.Context, account model.Account, approval model.ApprovalRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, phone_hash, phone_number, region, name, bio, photo_key, photo_url,
		                      role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', '', '', $6, $7, $8, $8)
	`, account.ID, account.PhoneHash, account.PhoneNumber, account.Region, account.Name,
		account.Role, account.Status, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approval_requests (account_id, phone_number, name, outcome, requested_at)
		VALUES ($1, $2, $3, $4, $5)
	`, approval.AccountID, approval.PhoneNumber, approval.Name, approval.Outcome, approval.RequestedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert approval request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID retrieves an account by ID
func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("query account: %w", err)
	}
	return account, nil
}

// UpdateProfile sets name and/or bio; nil leaves the column unchanged
func (r *accountRepo) UpdateProfile(ctx context.Context, id uuid.UUID, name, bio *string, at time.Time) (model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET name = COALESCE($2, name), bio = COALESCE($3, bio), updated_at = $4
		WHERE id = $1
		RETURNING `+accountColumns,
		id, name, bio, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("update profile: %w", err)
	}
	return account, nil
}

// SetPhoto records the object key and public URL of the profile photo
func (r *accountRepo) SetPhoto(ctx context.Context, id uuid.UUID, key, url string, at time.Time) (model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET photo_key = $2, photo_url = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+accountColumns,
		id, key, url, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("set photo: %w", err)
	}
	return account, nil
}

// Transition moves the account from t.From to t.To. The status predicate in the
// WHERE clause is the compare-and-swap: a concurrent reviewer that already moved
// the account leaves zero rows and gets ErrConditionFailed.
func (r *accountRepo) Transition(ctx context.Context, t model.Transition) (model.Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Account{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var approvedAt *time.Time
	var approvedBy *uuid.UUID
	if t.To == model.StatusActive {
		approvedAt = &t.At
		approvedBy = &t.Reviewer
	}

	account, err := scanAccount(tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET status = $3,
		    updated_at = $4,
		    approved_at = COALESCE($5, approved_at),
		    approved_by = COALESCE($6, approved_by)
		WHERE id = $1 AND status = $2
		RETURNING `+accountColumns,
		t.AccountID, t.From, t.To, t.At, approvedAt, approvedBy))
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, t.AccountID).Scan(&exists); err != nil {
			return model.Account{}, fmt.Errorf("check account exists: %w", err)
		}
		if !exists {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, ErrConditionFailed
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("update status: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE approval_requests
		SET outcome = $2, reviewed_at = $3, reviewed_by = $4, rejection_reason = $5
		WHERE account_id = $1 AND outcome = 'pending'
	`, t.AccountID, t.Outcome, t.At, t.Reviewer, t.Reason)
	if err != nil {
		return model.Account{}, fmt.Errorf("update approval request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Account{}, fmt.Errorf("commit: %w", err)
	}
	return account, nil
}
