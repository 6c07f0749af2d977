// Package classroom serves the cohort reference data and the membership
// joins between accounts and classrooms.
package classroom

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/apperr"
	"github.com/sjc1990app/server/internal/model"
	"github.com/sjc1990app/server/internal/repo"
	"go.uber.org/zap"
)

const maxAssignments = 20

// unknownYear sorts classrooms without a year after all others
const unknownYear = 9999

// Service implements classroom listing and membership operations
type Service struct {
	accounts    repo.AccountRepo
	classrooms  repo.ClassroomRepo
	memberships repo.MembershipRepo
	log         *zap.Logger
	now         func() time.Time
}

// NewService creates a new classroom service
func NewService(accounts repo.AccountRepo, classrooms repo.ClassroomRepo, memberships repo.MembershipRepo, log *zap.Logger) *Service {
	return &Service{
		accounts:    accounts,
		classrooms:  classrooms,
		memberships: memberships,
		log:         log,
		now:         time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListClassrooms returns all classrooms or those of one year, ordered by year then display name
func (s *Service) ListClassrooms(ctx context.Context, year *int) ([]model.Classroom, error) {
	classrooms, err := s.classrooms.List(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	sort.SliceStable(classrooms, func(i, j int) bool {
		if classrooms[i].Year != classrooms[j].Year {
			return classrooms[i].Year < classrooms[j].Year
		}
		return classrooms[i].DisplayName < classrooms[j].DisplayName
	})
	return classrooms, nil
}

// AssignClassrooms adds the account to every listed classroom. Either all
// memberships are written or none.
func (s *Service) AssignClassrooms(ctx context.Context, accountID uuid.UUID, classroomIDs []string) (int, error) {
	ids := dedupe(classroomIDs)
	if len(ids) == 0 {
		return 0, apperr.BadRequest("classroomIds array is required and must not be empty")
	}
	if len(ids) > maxAssignments {
		return 0, apperr.BadRequest("Maximum %d classrooms can be assigned", maxAssignments)
	}

	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, apperr.NotFound("User not found")
		}
		return 0, fmt.Errorf("load account: %w", err)
	}

	missing, err := s.classrooms.MissingIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("check classrooms: %w", err)
	}
	if len(missing) > 0 {
		return 0, apperr.BadRequest("Classroom not found: %s", strings.Join(missing, ", "))
	}

	if err := s.memberships.Assign(ctx, accountID, ids, s.now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, apperr.BadRequest("Classroom not found")
		}
		return 0, fmt.Errorf("assign classrooms: %w", err)
	}

	s.log.Info("classrooms assigned", zap.String("account_id", accountID.String()), zap.Strings("classroom_ids", ids))
	return len(ids), nil
}

// GetUserClassrooms returns the account's classrooms ordered by year, unknown years last
func (s *Service) GetUserClassrooms(ctx context.Context, accountID uuid.UUID) ([]model.AccountClassroom, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	classrooms, err := s.memberships.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account classrooms: %w", err)
	}
	sort.SliceStable(classrooms, func(i, j int) bool {
		yi, yj := sortYear(classrooms[i].Year), sortYear(classrooms[j].Year)
		if yi != yj {
			return yi < yj
		}
		return classrooms[i].DisplayName < classrooms[j].DisplayName
	})
	return classrooms, nil
}

// GetClassroomMembers returns the classroom and its members ordered by name
func (s *Service) GetClassroomMembers(ctx context.Context, classroomID string) (model.Classroom, []model.MemberSummary, error) {
	classroomID = strings.TrimSpace(classroomID)
	if classroomID == "" {
		return model.Classroom{}, nil, apperr.BadRequest("Classroom ID is required")
	}
	classroom, err := s.classrooms.Get(ctx, classroomID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Classroom{}, nil, apperr.NotFound("Classroom not found")
	}
	if err != nil {
		return model.Classroom{}, nil, fmt.Errorf("load classroom: %w", err)
	}

	members, err := s.memberships.ListMembers(ctx, classroomID)
	if err != nil {
		return model.Classroom{}, nil, fmt.Errorf("list members: %w", err)
	}
	sort.SliceStable(members, func(i, j int) bool {
		return strings.ToLower(members[i].Name) < strings.ToLower(members[j].Name)
	})
	return classroom, members, nil
}

func sortYear(year int) int {
	if year == 0 {
		return unknownYear
	}
	return year
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
