package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sjc1990app/server/internal/model"
)

// Challenges stay readable for a while after expiry so callers can tell
// "expired" apart from "never requested".
const challengeRetention = time.Hour

// incrementScript returns the new attempt count, or -1 when the guard fails
var incrementScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then return -1 end
if redis.call('HGET', KEYS[1], 'consumed') == '1' then return -1 end
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts'))
local max = tonumber(redis.call('HGET', KEYS[1], 'max_attempts'))
if attempts >= max then return -1 end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// consumeScript returns 1 when the challenge was consumed, 0 when the guard fails
var consumeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then return 0 end
if redis.call('HGET', KEYS[1], 'consumed') == '1' then return 0 end
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts'))
local max = tonumber(redis.call('HGET', KEYS[1], 'max_attempts'))
if attempts >= max then return 0 end
redis.call('HSET', KEYS[1], 'consumed', '1')
return 1
`)

type redisChallengeRepo struct {
	client *redis.Client
}

// NewRedisChallengeRepo creates a ChallengeRepo that keeps challenges in Redis hashes
func NewRedisChallengeRepo(client *redis.Client) ChallengeRepo {
	return &redisChallengeRepo{client: client}
}

func challengeKey(phoneHash string) string {
	return fmt.Sprintf("challenge:%s", phoneHash)
}

// Put replaces the challenge hash and sets its expiry
func (r *redisChallengeRepo) Put(ctx context.Context, c model.VerificationChallenge) error {
	key := challengeKey(c.PhoneHash)
	consumed := "0"
	if c.Consumed {
		consumed = "1"
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			"id":           c.ID.String(),
			"phone_number": c.PhoneNumber,
			"name":         c.Name,
			"code_hash":    c.CodeHash,
			"created_at":   c.CreatedAt.UnixMilli(),
			"expires_at":   c.ExpiresAt.UnixMilli(),
			"attempts":     c.Attempts,
			"max_attempts": c.MaxAttempts,
			"consumed":     consumed,
		})
		pipe.ExpireAt(ctx, key, c.ExpiresAt.Add(challengeRetention))
		return nil
	})
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// Get loads the challenge hash for the phone hash
func (r *redisChallengeRepo) Get(ctx context.Context, phoneHash string) (model.VerificationChallenge, error) {
	fields, err := r.client.HGetAll(ctx, challengeKey(phoneHash)).Result()
	if err != nil {
		return model.VerificationChallenge{}, fmt.Errorf("get challenge: %w", err)
	}
	if len(fields) == 0 {
		return model.VerificationChallenge{}, ErrNotFound
	}

	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return model.VerificationChallenge{}, fmt.Errorf("parse challenge id: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return model.VerificationChallenge{}, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return model.VerificationChallenge{}, fmt.Errorf("parse expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return model.VerificationChallenge{}, fmt.Errorf("parse attempts: %w", err)
	}
	maxAttempts, err := strconv.Atoi(fields["max_attempts"])
	if err != nil {
		return model.VerificationChallenge{}, fmt.Errorf("parse max_attempts: %w", err)
	}

	return model.VerificationChallenge{
		ID:          id,
		PhoneHash:   phoneHash,
		PhoneNumber: fields["phone_number"],
		Name:        fields["name"],
		CodeHash:    fields["code_hash"],
		CreatedAt:   time.UnixMilli(createdAt).UTC(),
		ExpiresAt:   time.UnixMilli(expiresAt).UTC(),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		Consumed:    fields["consumed"] == "1",
	}, nil
}

// IncrementAttempts runs the guarded increment atomically on the server
func (r *redisChallengeRepo) IncrementAttempts(ctx context.Context, phoneHash string, id uuid.UUID) (int, error) {
	n, err := incrementScript.Run(ctx, r.client, []string{challengeKey(phoneHash)}, id.String()).Int()
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	if n < 0 {
		return 0, ErrConditionFailed
	}
	return n, nil
}

// Consume runs the guarded consume atomically on the server
func (r *redisChallengeRepo) Consume(ctx context.Context, phoneHash string, id uuid.UUID) error {
	n, err := consumeScript.Run(ctx, r.client, []string{challengeKey(phoneHash)}, id.String()).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrConditionFailed
		}
		return fmt.Errorf("consume challenge: %w", err)
	}
	if n == 0 {
		return ErrConditionFailed
	}
	return nil
}
