// Package memstore is an in-memory implementation of the repo interfaces for
// tests and DEV_MODE runs without a database. It honors the same conditional
// write semantics as the Postgres repositories.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/model"
	"github.com/sjc1990app/server/internal/repo"
)

type membershipKey struct {
	accountID   uuid.UUID
	classroomID string
}

// Store holds all records behind one mutex
type Store struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]model.Account
	approvals   map[uuid.UUID]model.ApprovalRequest
	challenges  map[string]model.VerificationChallenge
	preferences map[uuid.UUID]model.Preferences
	classrooms  map[string]model.Classroom
	memberships map[membershipKey]model.Membership
}

// New returns an empty store
func New() *Store {
	return &Store{
		accounts:    make(map[uuid.UUID]model.Account),
		approvals:   make(map[uuid.UUID]model.ApprovalRequest),
		challenges:  make(map[string]model.VerificationChallenge),
		preferences: make(map[uuid.UUID]model.Preferences),
		classrooms:  make(map[string]model.Classroom),
		memberships: make(map[membershipKey]model.Membership),
	}
}

// Repos exposes the store through the repository interfaces
func (s *Store) Repos() repo.Repos {
	return repo.Repos{
		Accounts:    accounts{s},
		Approvals:   approvals{s},
		Challenges:  challenges{s},
		Preferences: preferences{s},
		Classrooms:  classrooms{s},
		Memberships: memberships{s},
	}
}

type accounts struct{ s *Store }

func (r accounts) ExistsByPhoneHash(_ context.Context, phoneHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.PhoneHash == phoneHash {
			return true, nil
		}
	}
	return false, nil
}

func (r accounts) CreatePending(_ context.Context, account model.Account, approval model.ApprovalRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[account.ID]; ok {
		return repo.ErrDuplicate
	}
	// mirrors the partial unique index on phone_hash
	for _, a := range r.s.accounts {
		if a.PhoneHash == account.PhoneHash && a.Status != model.StatusRejected {
			return repo.ErrDuplicate
		}
	}
	account.UpdatedAt = account.CreatedAt
	r.s.accounts[account.ID] = account
	r.s.approvals[approval.AccountID] = approval
	return nil
}

func (r accounts) GetByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	return a, nil
}

func (r accounts) UpdateProfile(_ context.Context, id uuid.UUID, name, bio *string, at time.Time) (model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	if name != nil {
		a.Name = *name
	}
	if bio != nil {
		a.Bio = *bio
	}
	a.UpdatedAt = at
	r.s.accounts[id] = a
	return a, nil
}

func (r accounts) SetPhoto(_ context.Context, id uuid.UUID, key, url string, at time.Time) (model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	a.PhotoKey = key
	a.PhotoURL = url
	a.UpdatedAt = at
	r.s.accounts[id] = a
	return a, nil
}

func (r accounts) Transition(_ context.Context, t model.Transition) (model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[t.AccountID]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	if a.Status != t.From {
		return model.Account{}, repo.ErrConditionFailed
	}
	a.Status = t.To
	a.UpdatedAt = t.At
	if t.To == model.StatusActive {
		at, reviewer := t.At, t.Reviewer
		a.ApprovedAt = &at
		a.ApprovedBy = &reviewer
	}
	r.s.accounts[t.AccountID] = a

	if req, ok := r.s.approvals[t.AccountID]; ok && req.Outcome == model.OutcomePending {
		at, reviewer := t.At, t.Reviewer
		req.Outcome = t.Outcome
		req.ReviewedAt = &at
		req.ReviewedBy = &reviewer
		req.RejectionReason = t.Reason
		r.s.approvals[t.AccountID] = req
	}
	return a, nil
}

type approvals struct{ s *Store }

func (r approvals) ListPending(_ context.Context) ([]model.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ApprovalRequest
	for _, req := range r.s.approvals {
		if req.Outcome == model.OutcomePending {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (r approvals) Get(_ context.Context, accountID uuid.UUID) (model.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.approvals[accountID]
	if !ok {
		return model.ApprovalRequest{}, repo.ErrNotFound
	}
	return req, nil
}

func (r approvals) MarkNotified(_ context.Context, accountID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.approvals[accountID]
	if !ok {
		return repo.ErrNotFound
	}
	req.NotificationSent = true
	r.s.approvals[accountID] = req
	return nil
}

type challenges struct{ s *Store }

func (r challenges) Put(_ context.Context, c model.VerificationChallenge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.challenges[c.PhoneHash] = c
	return nil
}

func (r challenges) Get(_ context.Context, phoneHash string) (model.VerificationChallenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.challenges[phoneHash]
	if !ok {
		return model.VerificationChallenge{}, repo.ErrNotFound
	}
	return c, nil
}

func (r challenges) IncrementAttempts(_ context.Context, phoneHash string, id uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.challenges[phoneHash]
	if !ok || c.ID != id || c.Consumed || c.Exhausted() {
		return 0, repo.ErrConditionFailed
	}
	c.Attempts++
	r.s.challenges[phoneHash] = c
	return c.Attempts, nil
}

func (r challenges) Consume(_ context.Context, phoneHash string, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.challenges[phoneHash]
	if !ok || c.ID != id || c.Consumed || c.Exhausted() {
		return repo.ErrConditionFailed
	}
	c.Consumed = true
	r.s.challenges[phoneHash] = c
	return nil
}

type preferences struct{ s *Store }

func copyPreferences(p model.Preferences) model.Preferences {
	p.EnabledChannels = append([]model.Channel(nil), p.EnabledChannels...)
	return p
}

func (r preferences) Get(_ context.Context, accountID uuid.UUID) (model.Preferences, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.preferences[accountID]
	if !ok {
		return model.Preferences{}, repo.ErrNotFound
	}
	return copyPreferences(p), nil
}

func (r preferences) Create(_ context.Context, p model.Preferences) (model.Preferences, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.preferences[p.AccountID]; ok {
		return copyPreferences(existing), nil
	}
	r.s.preferences[p.AccountID] = copyPreferences(p)
	return copyPreferences(p), nil
}

func (r preferences) Put(_ context.Context, p model.Preferences) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.preferences[p.AccountID]; !ok {
		return repo.ErrNotFound
	}
	r.s.preferences[p.AccountID] = copyPreferences(p)
	return nil
}

type classrooms struct{ s *Store }

func (r classrooms) List(_ context.Context, year *int) ([]model.Classroom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Classroom
	for _, c := range r.s.classrooms {
		if year == nil || c.Year == *year {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out, nil
}

func (r classrooms) Get(_ context.Context, id string) (model.Classroom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.classrooms[id]
	if !ok {
		return model.Classroom{}, repo.ErrNotFound
	}
	return c, nil
}

func (r classrooms) MissingIDs(_ context.Context, ids []string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var missing []string
	for _, id := range ids {
		if _, ok := r.s.classrooms[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r classrooms) Upsert(_ context.Context, c model.Classroom) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.classrooms[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	r.s.classrooms[c.ID] = c
	return nil
}

type memberships struct{ s *Store }

func (r memberships) Assign(_ context.Context, accountID uuid.UUID, classroomIDs []string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	// all-or-nothing like the transactional insert with foreign keys
	if _, ok := r.s.accounts[accountID]; !ok {
		return repo.ErrNotFound
	}
	for _, id := range classroomIDs {
		if _, ok := r.s.classrooms[id]; !ok {
			return repo.ErrNotFound
		}
	}
	for _, id := range classroomIDs {
		r.s.memberships[membershipKey{accountID, id}] = model.Membership{
			AccountID:   accountID,
			ClassroomID: id,
			Role:        model.MembershipStudent,
			AddedAt:     at,
		}
	}
	return nil
}

func (r memberships) ListForAccount(_ context.Context, accountID uuid.UUID) ([]model.AccountClassroom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.AccountClassroom
	for key, m := range r.s.memberships {
		if key.accountID != accountID {
			continue
		}
		c, ok := r.s.classrooms[key.classroomID]
		if !ok {
			continue
		}
		out = append(out, model.AccountClassroom{Classroom: c, Role: m.Role, AddedAt: m.AddedAt})
	}
	return out, nil
}

func (r memberships) ListMembers(_ context.Context, classroomID string) ([]model.MemberSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.MemberSummary
	for key, m := range r.s.memberships {
		if key.classroomID != classroomID {
			continue
		}
		a, ok := r.s.accounts[key.accountID]
		if !ok {
			continue
		}
		out = append(out, model.MemberSummary{
			AccountID: a.ID,
			Name:      a.Name,
			PhotoURL:  a.PhotoURL,
			Bio:       a.Bio,
			AddedAt:   m.AddedAt,
		})
	}
	return out, nil
}

// AddMembership inserts a raw membership without checks, for setting up
// dangling references in tests.
func (s *Store) AddMembership(m model.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[membershipKey{m.AccountID, m.ClassroomID}] = m
}

// PutAccount stores an account as-is, for seeding tests and dev fixtures
func (s *Store) PutAccount(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}
