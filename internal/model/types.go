package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the lifecycle state of an account
type AccountStatus string

const (
	StatusPendingApproval AccountStatus = "pending_approval"
	StatusActive          AccountStatus = "active"
	StatusSuspended       AccountStatus = "suspended"
	StatusRejected        AccountStatus = "rejected"
)

// Role is the authorization role carried in tokens
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account represents a registered user
type Account struct {
	ID          uuid.UUID
	PhoneHash   string
	PhoneNumber string
	Region      string
	Name        string
	Bio         string
	PhotoKey    string
	PhotoURL    string
	Role        Role
	Status      AccountStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ApprovedAt  *time.Time
	ApprovedBy  *uuid.UUID
}

// VerificationChallenge is a one-time code issued for a phone hash
type VerificationChallenge struct {
	ID          uuid.UUID
	PhoneHash   string
	PhoneNumber string
	Name        string
	CodeHash    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
	Consumed    bool
}

// Exhausted reports whether the attempt ceiling has been reached
func (c VerificationChallenge) Exhausted() bool {
	return c.Attempts >= c.MaxAttempts
}

// ApprovalOutcome is the review result of an approval request
type ApprovalOutcome string

const (
	OutcomePending  ApprovalOutcome = "pending"
	OutcomeApproved ApprovalOutcome = "approved"
	OutcomeRejected ApprovalOutcome = "rejected"
)

// ApprovalRequest tracks the admin review of a pending account
type ApprovalRequest struct {
	AccountID        uuid.UUID
	PhoneNumber      string
	Name             string
	Outcome          ApprovalOutcome
	RequestedAt      time.Time
	ReviewedAt       *time.Time
	ReviewedBy       *uuid.UUID
	RejectionReason  string
	NotificationSent bool
}

// Transition describes a conditional status change applied by the store
type Transition struct {
	AccountID uuid.UUID
	From      AccountStatus
	To        AccountStatus
	Outcome   ApprovalOutcome
	Reviewer  uuid.UUID
	Reason    string
	At        time.Time
}

// Classroom is a cohort reference record, e.g. "1985-P4B"
type Classroom struct {
	ID          string
	Year        int
	Grade       string
	Section     string
	DisplayName string
	TeacherName string
	CreatedAt   time.Time
}

// MembershipRole tags an account's role within a classroom
type MembershipRole string

const (
	MembershipStudent MembershipRole = "student"
	MembershipTeacher MembershipRole = "teacher"
)

// Membership joins an account to a classroom
type Membership struct {
	AccountID   uuid.UUID
	ClassroomID string
	Role        MembershipRole
	AddedAt     time.Time
}

// AccountClassroom is a classroom seen from one of its members
type AccountClassroom struct {
	Classroom
	Role    MembershipRole
	AddedAt time.Time
}

// MemberSummary is the public view of a classroom member
type MemberSummary struct {
	AccountID uuid.UUID
	Name      string
	PhotoURL  string
	Bio       string
	AddedAt   time.Time
}
