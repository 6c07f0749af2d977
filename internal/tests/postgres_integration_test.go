package tests

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/model"
	"github.com/sjc1990app/server/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postgresRepos(t *testing.T) repo.Repos {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	database := openTestDB(t, databaseURL)
	require.NoError(t, TruncateTables(context.Background(), database), "truncate tables")
	return repo.NewPostgres(database)
}

func TestAPIFlow_Postgres(t *testing.T) {
	runFullFlow(t, postgresRepos(t))
}

func newPendingAccount(number string) (model.Account, model.ApprovalRequest) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	account := model.Account{
		ID:          uuid.New(),
		PhoneHash:   "hash-" + number,
		PhoneNumber: number,
		Name:        "Jane",
		Role:        model.RoleUser,
		Status:      model.StatusPendingApproval,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return account, model.ApprovalRequest{
		AccountID:   account.ID,
		PhoneNumber: number,
		Name:        account.Name,
		Outcome:     model.OutcomePending,
		RequestedAt: now,
	}
}

func TestPostgres_duplicateLiveAccount(t *testing.T) {
	repos := postgresRepos(t)
	ctx := context.Background()

	first, firstApproval := newPendingAccount("+85291234567")
	require.NoError(t, repos.Accounts.CreatePending(ctx, first, firstApproval))

	second, secondApproval := newPendingAccount("+85291234567")
	assert.ErrorIs(t, repos.Accounts.CreatePending(ctx, second, secondApproval), repo.ErrDuplicate)

	// a rejected account frees the phone hash at the storage level
	_, err := repos.Accounts.Transition(ctx, model.Transition{
		AccountID: first.ID,
		From:      model.StatusPendingApproval,
		To:        model.StatusRejected,
		Outcome:   model.OutcomeRejected,
		Reviewer:  uuid.New(),
		Reason:    "No reason provided",
		At:        time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, repos.Accounts.CreatePending(ctx, second, secondApproval))
}

func TestPostgres_concurrentTransitionSingleWinner(t *testing.T) {
	repos := postgresRepos(t)
	ctx := context.Background()

	account, approval := newPendingAccount("+85291234568")
	require.NoError(t, repos.Accounts.CreatePending(ctx, account, approval))

	const reviewers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.Accounts.Transition(ctx, model.Transition{
				AccountID: account.ID,
				From:      model.StatusPendingApproval,
				To:        model.StatusActive,
				Outcome:   model.OutcomeApproved,
				Reviewer:  uuid.New(),
				At:        time.Now(),
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repo.ErrConditionFailed)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)

	stored, err := repos.Accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, stored.Status)
	require.NotNil(t, stored.ApprovedAt)

	req, err := repos.Approvals.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeApproved, req.Outcome)
}

func TestPostgres_challengeGuards(t *testing.T) {
	repos := postgresRepos(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := model.VerificationChallenge{
		ID:          uuid.New(),
		PhoneHash:   "hash-challenge",
		PhoneNumber: "+85291234569",
		Name:        "Jane",
		CodeHash:    "deadbeef",
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
		MaxAttempts: 2,
	}
	require.NoError(t, repos.Challenges.Put(ctx, c))

	n, err := repos.Challenges.IncrementAttempts(ctx, c.PhoneHash, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repos.Challenges.IncrementAttempts(ctx, c.PhoneHash, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = repos.Challenges.IncrementAttempts(ctx, c.PhoneHash, c.ID)
	assert.ErrorIs(t, err, repo.ErrConditionFailed)
	assert.ErrorIs(t, repos.Challenges.Consume(ctx, c.PhoneHash, c.ID), repo.ErrConditionFailed)

	// a reissued challenge replaces the old one, and stale ids no longer match
	fresh := c
	fresh.ID = uuid.New()
	require.NoError(t, repos.Challenges.Put(ctx, fresh))
	assert.ErrorIs(t, repos.Challenges.Consume(ctx, c.PhoneHash, c.ID), repo.ErrConditionFailed)
	require.NoError(t, repos.Challenges.Consume(ctx, fresh.PhoneHash, fresh.ID))

	got, err := repos.Challenges.Get(ctx, c.PhoneHash)
	require.NoError(t, err)
	assert.True(t, got.Consumed)
	assert.Equal(t, 0, got.Attempts)
}

func TestPostgres_assignIsAllOrNothing(t *testing.T) {
	repos := postgresRepos(t)
	ctx := context.Background()

	account, approval := newPendingAccount("+85291234570")
	require.NoError(t, repos.Accounts.CreatePending(ctx, account, approval))
	require.NoError(t, repos.Classrooms.Upsert(ctx, model.Classroom{ID: "1985-P4A", Year: 1985, DisplayName: "Primary 4A", CreatedAt: time.Now()}))

	err := repos.Memberships.Assign(ctx, account.ID, []string{"1985-P4A", "missing"}, time.Now())
	assert.ErrorIs(t, err, repo.ErrNotFound)

	mine, err := repos.Memberships.ListForAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)

	missing, err := repos.Classrooms.MissingIDs(ctx, []string{"1985-P4A", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"missing"}, missing)
}
