package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/model"
)

const approvalColumns = `account_id, phone_number, name, outcome, requested_at, reviewed_at,
	reviewed_by, rejection_reason, notification_sent`

type approvalRepo struct {
	db *sql.DB
}

// NewApprovalRepo creates a new ApprovalRepo instance
func NewApprovalRepo(db *sql.DB) ApprovalRepo {
	return &approvalRepo{db: db}
}

func scanApproval(row rowScanner) (model.ApprovalRequest, error) {
	var a model.ApprovalRequest
	var reviewedBy uuid.NullUUID
	err := row.Scan(
		&a.AccountID,
		&a.PhoneNumber,
		&a.Name,
		&a.Outcome,
		&a.RequestedAt,
		&a.ReviewedAt,
		&reviewedBy,
		&a.RejectionReason,
		&a.NotificationSent,
	)
	if err != nil {
		return model.ApprovalRequest{}, err
	}
	if reviewedBy.Valid {
		a.ReviewedBy = &reviewedBy.UUID
	}
	return a, nil
}

// ListPending returns pending requests, oldest first
func (r *approvalRepo) ListPending(ctx context.Context) ([]model.ApprovalRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+approvalColumns+`
		FROM approval_requests
		WHERE outcome = 'pending'
		ORDER BY requested_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending approvals: %w", err)
	}
	defer rows.Close()

	var out []model.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approvals: %w", err)
	}
	return out, nil
}

// Get returns the approval request of an account
func (r *approvalRepo) Get(ctx context.Context, accountID uuid.UUID) (model.ApprovalRequest, error) {
	a, err := scanApproval(r.db.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE account_id = $1`, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ApprovalRequest{}, ErrNotFound
		}
		return model.ApprovalRequest{}, fmt.Errorf("query approval: %w", err)
	}
	return a, nil
}

// MarkNotified records that the review outcome was delivered to the applicant
func (r *approvalRepo) MarkNotified(ctx context.Context, accountID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE approval_requests SET notification_sent = TRUE WHERE account_id = $1
	`, accountID)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
