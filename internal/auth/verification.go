package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/apperr"
	"github.com/sjc1990app/server/internal/model"
	"github.com/sjc1990app/server/internal/notify"
	"github.com/sjc1990app/server/internal/phone"
	"github.com/sjc1990app/server/internal/repo"
	"go.uber.org/zap"
)

const (
	codeTTL         = 300 * time.Second
	codeMaxAttempts = 3
	maxNameLength   = 100
)

var (
	codeMin   = big.NewInt(100000)
	codeRange = big.NewInt(900000)
)

// Limiter caps how often a key may proceed inside its window
type Limiter interface {
	Allow(key string) bool
}

// VerificationOptions configures the verification service
type VerificationOptions struct {
	Salt    string
	AppName string
	// IsAdmin reports whether a newly verified number gets the admin role
	IsAdmin func(number string) bool
	// SendLimiter caps verification codes per number, whatever address the
	// requests come from. Nil disables the cap.
	SendLimiter Limiter
}

// Registration is the result of a successful register call
type Registration struct {
	ExpiresIn int
}

// Verified is the result of a successful verify call
type Verified struct {
	AccountID uuid.UUID
	Status    model.AccountStatus
	Role      model.Role
	Token     string
	ExpiresAt time.Time
}

// VerificationService issues one-time SMS codes and creates accounts when a
// code is confirmed. It is the only path that creates accounts.
type VerificationService struct {
	accounts   repo.AccountRepo
	challenges repo.ChallengeRepo
	notifier   notify.Notifier
	tokens     *JWTService
	opts       VerificationOptions
	log        *zap.Logger

	now          func() time.Time
	generateCode func() (string, error)
}

// NewVerificationService creates a new verification service
func NewVerificationService(
	accounts repo.AccountRepo,
	challenges repo.ChallengeRepo,
	notifier notify.Notifier,
	tokens *JWTService,
	opts VerificationOptions,
	log *zap.Logger,
) *VerificationService {
	if opts.IsAdmin == nil {
		opts.IsAdmin = func(string) bool { return false }
	}
	return &VerificationService{
		accounts:     accounts,
		challenges:   challenges,
		notifier:     notifier,
		tokens:       tokens,
		opts:         opts,
		log:          log,
		now:          time.Now,
		generateCode: generateVerificationCode,
	}
}

// WithClock replaces the time source, for tests
func (s *VerificationService) WithClock(now func() time.Time) *VerificationService {
	s.now = now
	return s
}

// Register validates the number, stores a fresh challenge (replacing any
// previous one) and sends the code by SMS.
func (s *VerificationService) Register(ctx context.Context, rawPhone, name string) (Registration, error) {
	name = strings.TrimSpace(name)
	if strings.TrimSpace(rawPhone) == "" || name == "" {
		return Registration{}, apperr.BadRequest("Phone number and name are required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return Registration{}, apperr.BadRequest("Name must be at most %d characters", maxNameLength)
	}
	number := phone.Normalize(rawPhone)
	if !phone.Validate(number) {
		return Registration{}, apperr.BadRequest("Invalid phone number format. Use E.164 format (e.g., +85291234567)")
	}
	phoneHash := phone.Hash(number)

	exists, err := s.accounts.ExistsByPhoneHash(ctx, phoneHash)
	if err != nil {
		return Registration{}, fmt.Errorf("check existing account: %w", err)
	}
	if exists {
		s.log.Warn("registration for existing account", zap.String("phone_hash", phone.ShortHash(number)))
		return Registration{}, apperr.Conflict("Phone number already registered")
	}
	if s.opts.SendLimiter != nil && !s.opts.SendLimiter.Allow("phone:"+phoneHash) {
		s.log.Warn("verification code requests throttled", zap.String("phone_hash", phone.ShortHash(number)))
		return Registration{}, apperr.TooManyRequests("Too many verification requests for this number. Please try again later.")
	}

	code, err := s.generateCode()
	if err != nil {
		return Registration{}, fmt.Errorf("generate code: %w", err)
	}

	now := s.now()
	challenge := model.VerificationChallenge{
		ID:          uuid.New(),
		PhoneHash:   phoneHash,
		PhoneNumber: number,
		Name:        name,
		CodeHash:    hashCodeHex(number, code, s.opts.Salt),
		CreatedAt:   now,
		ExpiresAt:   now.Add(codeTTL),
		MaxAttempts: codeMaxAttempts,
	}
	if err := s.challenges.Put(ctx, challenge); err != nil {
		return Registration{}, fmt.Errorf("store challenge: %w", err)
	}

	// Never log the plaintext code
	if err := s.notifier.Send(ctx, notify.VerificationCode(s.opts.AppName, number, code)); err != nil {
		return Registration{}, fmt.Errorf("send verification code: %w", err)
	}

	s.log.Info("verification code sent", zap.String("phone_hash", phone.ShortHash(number)), zap.String("region", phone.Region(number)))
	return Registration{ExpiresIn: int(codeTTL / time.Second)}, nil
}

// Verify checks the code and, on a match, consumes the challenge, creates the
// account with its approval request and issues a token.
func (s *VerificationService) Verify(ctx context.Context, rawPhone, code string) (Verified, error) {
	if strings.TrimSpace(rawPhone) == "" || strings.TrimSpace(code) == "" {
		return Verified{}, apperr.BadRequest("Phone number and code are required")
	}
	number := phone.Normalize(rawPhone)
	if !phone.Validate(number) {
		return Verified{}, apperr.BadRequest("Invalid phone number format")
	}
	if !isSixDigits(code) {
		return Verified{}, apperr.BadRequest("Verification code must be 6 digits")
	}
	phoneHash := phone.Hash(number)
	logHash := zap.String("phone_hash", phone.ShortHash(number))

	challenge, err := s.challenges.Get(ctx, phoneHash)
	if errors.Is(err, repo.ErrNotFound) {
		s.log.Warn("verification challenge not found", logHash)
		return Verified{}, apperr.BadRequest("Verification code not found or expired")
	}
	if err != nil {
		return Verified{}, fmt.Errorf("load challenge: %w", err)
	}

	now := s.now()
	switch {
	case now.After(challenge.ExpiresAt):
		s.log.Warn("verification code expired", logHash)
		return Verified{}, apperr.BadRequest("Verification code expired. Please request a new one.")
	case challenge.Consumed:
		s.log.Warn("verification code already used", logHash)
		return Verified{}, apperr.BadRequest("Verification code already used")
	case challenge.Exhausted():
		s.log.Warn("verification attempts exhausted", logHash, zap.Int("attempts", challenge.Attempts))
		return Verified{}, apperr.BadRequest("Maximum verification attempts exceeded. Please request a new code.")
	}

	if !constantTimeCompare(hashCodeBytes(number, code, s.opts.Salt), challenge.CodeHash) {
		attempts, err := s.challenges.IncrementAttempts(ctx, phoneHash, challenge.ID)
		if errors.Is(err, repo.ErrConditionFailed) {
			// a concurrent attempt exhausted or consumed the challenge first
			return Verified{}, apperr.BadRequest("Invalid verification code")
		}
		if err != nil {
			return Verified{}, fmt.Errorf("record attempt: %w", err)
		}
		s.log.Warn("invalid verification code", logHash, zap.Int("attempts", attempts))
		return Verified{}, apperr.BadRequest("Invalid verification code")
	}

	if err := s.challenges.Consume(ctx, phoneHash, challenge.ID); err != nil {
		if errors.Is(err, repo.ErrConditionFailed) {
			return Verified{}, apperr.BadRequest("Verification code already used")
		}
		return Verified{}, fmt.Errorf("consume challenge: %w", err)
	}

	role := model.RoleUser
	if s.opts.IsAdmin(number) {
		role = model.RoleAdmin
	}
	account := model.Account{
		ID:          uuid.New(),
		PhoneHash:   phoneHash,
		PhoneNumber: number,
		Region:      phone.Region(number),
		Name:        challenge.Name,
		Role:        role,
		Status:      model.StatusPendingApproval,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	approval := model.ApprovalRequest{
		AccountID:   account.ID,
		PhoneNumber: number,
		Name:        challenge.Name,
		Outcome:     model.OutcomePending,
		RequestedAt: now,
	}
	if err := s.accounts.CreatePending(ctx, account, approval); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return Verified{}, apperr.Conflict("Phone number already registered")
		}
		return Verified{}, fmt.Errorf("create account: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(account.ID, number, account.Status, account.Role)
	if err != nil {
		return Verified{}, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info("account created",
		zap.String("account_id", account.ID.String()),
		zap.String("role", string(role)),
		zap.String("region", phone.Region(number)),
	)
	return Verified{
		AccountID: account.ID,
		Status:    account.Status,
		Role:      account.Role,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// generateVerificationCode returns a uniformly random code in [100000, 999999]
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", err
	}
	return n.Add(n, codeMin).String(), nil
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// hashCodeHex returns SHA-256(phone:code:salt) as hex for storage
func hashCodeHex(number, code, salt string) string {
	return hex.EncodeToString(hashCodeBytes(number, code, salt))
}

func hashCodeBytes(number, code, salt string) []byte {
	data := fmt.Sprintf("%s:%s:%s", number, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}

// constantTimeCompare compares a computed hash with a stored hex hash
func constantTimeCompare(computed []byte, storedHex string) bool {
	stored, err := hex.DecodeString(storedHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(computed, stored) == 1
}
