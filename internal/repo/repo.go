package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sjc1990app/server/internal/model"
)

var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed is returned when a conditional write lost its precondition
	ErrConditionFailed = errors.New("condition failed")
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")
)

// AccountRepo defines account persistence operations
type AccountRepo interface {
	ExistsByPhoneHash(ctx context.Context, phoneHash string) (bool, error)
	// CreatePending stores the account and its approval request atomically
	CreatePending(ctx context.Context, account model.Account, approval model.ApprovalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	// UpdateProfile sets the non-nil fields
	UpdateProfile(ctx context.Context, id uuid.UUID, name, bio *string, at time.Time) (model.Account, error)
	SetPhoto(ctx context.Context, id uuid.UUID, key, url string, at time.Time) (model.Account, error)
	// Transition applies t only if the account is still in t.From, and records the
	// review outcome on the approval request in the same write.
	Transition(ctx context.Context, t model.Transition) (model.Account, error)
}

// ApprovalRepo defines approval request read operations
type ApprovalRepo interface {
	ListPending(ctx context.Context) ([]model.ApprovalRequest, error)
	Get(ctx context.Context, accountID uuid.UUID) (model.ApprovalRequest, error)
	MarkNotified(ctx context.Context, accountID uuid.UUID) error
}

// ChallengeRepo defines verification challenge operations. At most one challenge
// exists per phone hash; the id pins conditional writes to one issuance.
type ChallengeRepo interface {
	Put(ctx context.Context, c model.VerificationChallenge) error
	Get(ctx context.Context, phoneHash string) (model.VerificationChallenge, error)
	// IncrementAttempts adds exactly one attempt while the challenge is unconsumed and under its limit
	IncrementAttempts(ctx context.Context, phoneHash string, id uuid.UUID) (int, error)
	// Consume marks the challenge used while it is unconsumed and under its limit
	Consume(ctx context.Context, phoneHash string, id uuid.UUID) error
}

// PreferencesRepo defines preference persistence operations
type PreferencesRepo interface {
	Get(ctx context.Context, accountID uuid.UUID) (model.Preferences, error)
	// Create inserts p unless a record exists, and returns whichever record is stored
	Create(ctx context.Context, p model.Preferences) (model.Preferences, error)
	Put(ctx context.Context, p model.Preferences) error
}

// ClassroomRepo defines classroom reference data operations
type ClassroomRepo interface {
	List(ctx context.Context, year *int) ([]model.Classroom, error)
	Get(ctx context.Context, id string) (model.Classroom, error)
	// MissingIDs returns the ids that have no classroom, in input order
	MissingIDs(ctx context.Context, ids []string) ([]string, error)
	Upsert(ctx context.Context, c model.Classroom) error
}

// MembershipRepo defines account to classroom joins
type MembershipRepo interface {
	// Assign upserts one student membership per classroom id atomically
	Assign(ctx context.Context, accountID uuid.UUID, classroomIDs []string, at time.Time) error
	ListForAccount(ctx context.Context, accountID uuid.UUID) ([]model.AccountClassroom, error)
	// ListMembers returns members whose account still exists
	ListMembers(ctx context.Context, classroomID string) ([]model.MemberSummary, error)
}

// Repos bundles the repositories a server needs
type Repos struct {
	Accounts    AccountRepo
	Approvals   ApprovalRepo
	Challenges  ChallengeRepo
	Preferences PreferencesRepo
	Classrooms  ClassroomRepo
	Memberships MembershipRepo
}

// NewPostgres creates all repositories on top of db
func NewPostgres(db *sql.DB) Repos {
	return Repos{
		Accounts:    NewAccountRepo(db),
		Approvals:   NewApprovalRepo(db),
		Challenges:  NewChallengeRepo(db),
		Preferences: NewPreferencesRepo(db),
		Classrooms:  NewClassroomRepo(db),
		Memberships: NewMembershipRepo(db),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}
