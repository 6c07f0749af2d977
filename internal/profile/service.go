// Package profile manages account profiles, profile photos and notification
// preferences.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/apperr"
	"github.com/sjc1990app/server/internal/model"
	"github.com/sjc1990app/server/internal/repo"
	"go.uber.org/zap"
)

const (
	maxNameLength   = 100
	maxBioLength    = 500
	maxPhotoSize    = 5 * 1024 * 1024
	uploadURLExpiry = 300 * time.Second
	photoKeyPrefix  = "profiles/"
)

// allowedContentTypes maps upload content types to object key extensions
var allowedContentTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ObjectStore is the photo bucket
type ObjectStore interface {
	PresignUpload(ctx context.Context, key, contentType string, size int64, metadata map[string]string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

// PhotoUpload is a presigned upload slot
type PhotoUpload struct {
	UploadURL string
	PhotoKey  string
	ExpiresIn int
}

// ProfileUpdate carries the fields to change; nil leaves a field as is
type ProfileUpdate struct {
	Name *string
	Bio  *string
}

// Service implements profile and preference operations
type Service struct {
	accounts    repo.AccountRepo
	preferences repo.PreferencesRepo
	objects     ObjectStore
	log         *zap.Logger
	now         func() time.Time
}

// NewService creates a new profile service
func NewService(accounts repo.AccountRepo, preferences repo.PreferencesRepo, objects ObjectStore, log *zap.Logger) *Service {
	return &Service{
		accounts:    accounts,
		preferences: preferences,
		objects:     objects,
		log:         log,
		now:         time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// UpdateProfile trims and stores name and bio. At least one must be non-blank.
func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, update ProfileUpdate) (model.Account, error) {
	var name, bio *string
	if update.Name != nil {
		if trimmed := strings.TrimSpace(*update.Name); trimmed != "" {
			if utf8.RuneCountInString(trimmed) > maxNameLength {
				return model.Account{}, apperr.BadRequest("Name must be at most %d characters", maxNameLength)
			}
			name = &trimmed
		}
	}
	if update.Bio != nil {
		if trimmed := strings.TrimSpace(*update.Bio); trimmed != "" {
			if utf8.RuneCountInString(trimmed) > maxBioLength {
				return model.Account{}, apperr.BadRequest("Bio must be at most %d characters", maxBioLength)
			}
			bio = &trimmed
		}
	}
	if name == nil && bio == nil {
		return model.Account{}, apperr.BadRequest("At least one field (name or bio) is required")
	}

	account, err := s.accounts.UpdateProfile(ctx, accountID, name, bio, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return model.Account{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("update profile: %w", err)
	}
	return account, nil
}

// RequestPhotoUpload validates the upload and returns a presigned PUT URL
func (s *Service) RequestPhotoUpload(ctx context.Context, accountID uuid.UUID, contentType string, fileSize int64) (PhotoUpload, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return PhotoUpload{}, apperr.BadRequest("Invalid content type. Allowed types: image/jpeg, image/png, image/webp")
	}
	if fileSize <= 0 {
		return PhotoUpload{}, apperr.BadRequest("File size must be greater than zero")
	}
	if fileSize > maxPhotoSize {
		return PhotoUpload{}, apperr.BadRequest("File size exceeds maximum allowed (%d MB)", maxPhotoSize/1024/1024)
	}
	if err := s.requireAccount(ctx, accountID); err != nil {
		return PhotoUpload{}, err
	}

	now := s.now()
	key := fmt.Sprintf("%s%s-%d.%s", photoKeyPrefix, accountID, now.UnixMilli(), ext)
	url, err := s.objects.PresignUpload(ctx, key, contentType, fileSize, map[string]string{
		"userId":     accountID.String(),
		"uploadedAt": strconv.FormatInt(now.UnixMilli(), 10),
	}, uploadURLExpiry)
	if err != nil {
		return PhotoUpload{}, fmt.Errorf("presign upload: %w", err)
	}

	s.log.Info("photo upload url issued", zap.String("account_id", accountID.String()), zap.String("photo_key", key))
	return PhotoUpload{UploadURL: url, PhotoKey: key, ExpiresIn: int(uploadURLExpiry / time.Second)}, nil
}

// CompletePhotoUpload confirms the object exists and stores its public URL
func (s *Service) CompletePhotoUpload(ctx context.Context, accountID uuid.UUID, photoKey string) (model.Account, error) {
	photoKey = strings.TrimSpace(photoKey)
	if photoKey == "" {
		return model.Account{}, apperr.BadRequest("Photo key is required")
	}
	// keys are only ever issued for the caller's own account
	if !strings.HasPrefix(photoKey, photoKeyPrefix+accountID.String()+"-") {
		return model.Account{}, apperr.BadRequest("Photo key does not belong to this user")
	}
	if err := s.requireAccount(ctx, accountID); err != nil {
		return model.Account{}, err
	}

	exists, err := s.objects.Exists(ctx, photoKey)
	if err != nil {
		return model.Account{}, fmt.Errorf("check uploaded photo: %w", err)
	}
	if !exists {
		return model.Account{}, apperr.NotFound("Photo not found. Please upload again.")
	}

	account, err := s.accounts.SetPhoto(ctx, accountID, photoKey, s.objects.PublicURL(photoKey), s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return model.Account{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("set photo: %w", err)
	}
	return account, nil
}

func (s *Service) requireAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("User not found")
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	return nil
}
