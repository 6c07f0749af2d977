// Package approval implements the admin review of pending accounts. Status
// changes are applied by the store as compare-and-swap on the prior status,
// so concurrent reviews of one account produce exactly one transition.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/apperr"
	"github.com/sjc1990app/server/internal/model"
	"github.com/sjc1990app/server/internal/notify"
	"github.com/sjc1990app/server/internal/repo"
	"go.uber.org/zap"
)

// DefaultRejectionReason is stored when the reviewer gives none
const DefaultRejectionReason = "No reason provided"

// Result describes a completed review
type Result struct {
	AccountID        uuid.UUID
	Status           model.AccountStatus
	Reason           string
	NotificationSent bool
}

// Service approves and rejects pending accounts
type Service struct {
	accounts  repo.AccountRepo
	approvals repo.ApprovalRepo
	notifier  notify.Notifier
	appName   string
	log       *zap.Logger
	now       func() time.Time
}

// NewService creates a new approval service
func NewService(accounts repo.AccountRepo, approvals repo.ApprovalRepo, notifier notify.Notifier, appName string, log *zap.Logger) *Service {
	return &Service{
		accounts:  accounts,
		approvals: approvals,
		notifier:  notifier,
		appName:   appName,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListPending returns unreviewed requests, oldest first
func (s *Service) ListPending(ctx context.Context) ([]model.ApprovalRequest, error) {
	pending, err := s.approvals.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return pending, nil
}

// Approve activates a pending account and notifies the applicant
func (s *Service) Approve(ctx context.Context, accountID, adminID uuid.UUID) (Result, error) {
	account, err := s.transition(ctx, accountID, adminID, model.StatusActive, model.OutcomeApproved, "")
	if err != nil {
		return Result{}, err
	}
	sent := s.deliver(ctx, account.ID, notify.Approval(s.appName, account.PhoneNumber, account.Name, account.ID))
	return Result{AccountID: account.ID, Status: account.Status, NotificationSent: sent}, nil
}

// Reject closes a pending account. An empty reason is stored as
// DefaultRejectionReason; the SMS omits the reason sentence in that case.
func (s *Service) Reject(ctx context.Context, accountID, adminID uuid.UUID, reason string) (Result, error) {
	reason = strings.TrimSpace(reason)
	stored := reason
	if stored == "" {
		stored = DefaultRejectionReason
	}
	account, err := s.transition(ctx, accountID, adminID, model.StatusRejected, model.OutcomeRejected, stored)
	if err != nil {
		return Result{}, err
	}
	sent := s.deliver(ctx, account.ID, notify.Rejection(s.appName, account.PhoneNumber, reason, account.ID))
	return Result{AccountID: account.ID, Status: account.Status, Reason: stored, NotificationSent: sent}, nil
}

func (s *Service) transition(ctx context.Context, accountID, adminID uuid.UUID, to model.AccountStatus, outcome model.ApprovalOutcome, reason string) (model.Account, error) {
	current, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Account{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !model.CanTransition(current.Status, to) {
		return model.Account{}, apperr.BadRequest("User is not pending approval (current status: %s)", current.Status)
	}

	account, err := s.accounts.Transition(ctx, model.Transition{
		AccountID: accountID,
		From:      current.Status,
		To:        to,
		Outcome:   outcome,
		Reviewer:  adminID,
		Reason:    reason,
		At:        s.now(),
	})
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return model.Account{}, apperr.NotFound("User not found")
	case errors.Is(err, repo.ErrConditionFailed):
		// another reviewer changed the status between our read and the write
		return model.Account{}, apperr.BadRequest("User is not pending approval")
	case err != nil:
		return model.Account{}, fmt.Errorf("transition account: %w", err)
	}

	s.log.Info("account reviewed",
		zap.String("account_id", accountID.String()),
		zap.String("admin_id", adminID.String()),
		zap.String("status", string(to)),
	)
	return account, nil
}

// deliver sends msg once. The transition is already durable, so a failure is
// logged and reported as false instead of failing the review.
func (s *Service) deliver(ctx context.Context, accountID uuid.UUID, msg notify.Message) bool {
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.Warn("review notification failed",
			zap.String("account_id", accountID.String()),
			zap.String("kind", string(msg.Kind)),
			zap.Error(err),
		)
		return false
	}
	if err := s.approvals.MarkNotified(ctx, accountID); err != nil {
		s.log.Warn("mark notification sent failed", zap.String("account_id", accountID.String()), zap.Error(err))
	}
	return true
}
