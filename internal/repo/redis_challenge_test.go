package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sjc1990app/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisChallenges(t *testing.T) (ChallengeRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisChallengeRepo(client), mr
}

func testChallenge(maxAttempts int) model.VerificationChallenge {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return model.VerificationChallenge{
		ID:          uuid.New(),
		PhoneHash:   "hash-redis",
		PhoneNumber: "+85291234567",
		Name:        "Jane",
		CodeHash:    "deadbeef",
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
		MaxAttempts: maxAttempts,
	}
}

func TestRedisChallenge_putGet(t *testing.T) {
	challenges, mr := newRedisChallenges(t)
	ctx := context.Background()

	_, err := challenges.Get(ctx, "hash-redis")
	assert.ErrorIs(t, err, ErrNotFound)

	c := testChallenge(3)
	require.NoError(t, challenges.Put(ctx, c))

	got, err := challenges.Get(ctx, c.PhoneHash)
	require.NoError(t, err)
	assert.Equal(t, c, got)
	assert.Greater(t, mr.TTL(challengeKey(c.PhoneHash)), time.Hour)
}

func TestRedisChallenge_incrementStopsAtCap(t *testing.T) {
	challenges, _ := newRedisChallenges(t)
	ctx := context.Background()
	c := testChallenge(3)
	require.NoError(t, challenges.Put(ctx, c))

	for want := 1; want <= 3; want++ {
		n, err := challenges.IncrementAttempts(ctx, c.PhoneHash, c.ID)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	_, err := challenges.IncrementAttempts(ctx, c.PhoneHash, c.ID)
	assert.ErrorIs(t, err, ErrConditionFailed)
	assert.ErrorIs(t, challenges.Consume(ctx, c.PhoneHash, c.ID), ErrConditionFailed)

	got, err := challenges.Get(ctx, c.PhoneHash)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
	assert.True(t, got.Exhausted())
	assert.False(t, got.Consumed)
}

func TestRedisChallenge_consumeOnce(t *testing.T) {
	challenges, _ := newRedisChallenges(t)
	ctx := context.Background()
	c := testChallenge(3)
	require.NoError(t, challenges.Put(ctx, c))

	require.NoError(t, challenges.Consume(ctx, c.PhoneHash, c.ID))
	assert.ErrorIs(t, challenges.Consume(ctx, c.PhoneHash, c.ID), ErrConditionFailed)
	_, err := challenges.IncrementAttempts(ctx, c.PhoneHash, c.ID)
	assert.ErrorIs(t, err, ErrConditionFailed)

	got, err := challenges.Get(ctx, c.PhoneHash)
	require.NoError(t, err)
	assert.True(t, got.Consumed)
}

func TestRedisChallenge_reputInvalidatesOldID(t *testing.T) {
	challenges, _ := newRedisChallenges(t)
	ctx := context.Background()
	old := testChallenge(3)
	require.NoError(t, challenges.Put(ctx, old))
	_, err := challenges.IncrementAttempts(ctx, old.PhoneHash, old.ID)
	require.NoError(t, err)

	fresh := testChallenge(3)
	fresh.CodeHash = "cafebabe"
	require.NoError(t, challenges.Put(ctx, fresh))

	_, err = challenges.IncrementAttempts(ctx, old.PhoneHash, old.ID)
	assert.ErrorIs(t, err, ErrConditionFailed)
	assert.ErrorIs(t, challenges.Consume(ctx, old.PhoneHash, old.ID), ErrConditionFailed)

	got, err := challenges.Get(ctx, fresh.PhoneHash)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, got.ID)
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, "cafebabe", got.CodeHash)
	require.NoError(t, challenges.Consume(ctx, fresh.PhoneHash, fresh.ID))
}

func TestRedisChallenge_missingKey(t *testing.T) {
	challenges, _ := newRedisChallenges(t)
	ctx := context.Background()

	_, err := challenges.IncrementAttempts(ctx, "nobody", uuid.New())
	assert.ErrorIs(t, err, ErrConditionFailed)
	assert.ErrorIs(t, challenges.Consume(ctx, "nobody", uuid.New()), ErrConditionFailed)
}
