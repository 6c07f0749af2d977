package profile

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/apperr"
	"github.com/sjc1990app/server/internal/model"
	"github.com/sjc1990app/server/internal/repo"
)

var quietHoursPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// GetPreferences returns the stored preferences, creating the defaults on first read
func (s *Service) GetPreferences(ctx context.Context, accountID uuid.UUID) (model.Preferences, error) {
	prefs, err := s.preferences.Get(ctx, accountID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}

	if err := s.requireAccount(ctx, accountID); err != nil {
		return model.Preferences{}, err
	}
	// Create keeps whatever a concurrent first read stored
	prefs, err = s.preferences.Create(ctx, model.DefaultPreferences(accountID, s.now()))
	if err != nil {
		return model.Preferences{}, fmt.Errorf("create default preferences: %w", err)
	}
	return prefs, nil
}

// UpdatePreferences validates patch and merges it into the stored record
func (s *Service) UpdatePreferences(ctx context.Context, accountID uuid.UUID, patch model.PreferencesPatch) (model.Preferences, error) {
	if err := validatePatch(patch); err != nil {
		return model.Preferences{}, err
	}

	current, err := s.preferences.Get(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Preferences{}, apperr.NotFound("Preferences not found. Please get preferences first to initialize.")
	}
	if err != nil {
		return model.Preferences{}, fmt.Errorf("load preferences: %w", err)
	}

	updated := patch.Apply(current)
	updated.AccountID = accountID
	updated.UpdatedAt = s.now()
	if err := s.preferences.Put(ctx, updated); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Preferences{}, apperr.NotFound("Preferences not found. Please get preferences first to initialize.")
		}
		return model.Preferences{}, fmt.Errorf("store preferences: %w", err)
	}
	return updated, nil
}

func validatePatch(patch model.PreferencesPatch) error {
	err := validation.ValidateStruct(&patch,
		validation.Field(&patch.PrimaryChannel, validation.NilOrNotEmpty, validation.In(enumValues(model.Channels)...)),
		validation.Field(&patch.EnabledChannels, validation.By(validChannels)),
		validation.Field(&patch.DigestFrequency, validation.NilOrNotEmpty, validation.In(enumValues(model.DigestFrequencies)...)),
		validation.Field(&patch.ProfileVisibility, validation.NilOrNotEmpty, validation.In(enumValues(model.Visibilities)...)),
		validation.Field(&patch.QuietHoursStart, validation.NilOrNotEmpty, validation.Match(quietHoursPattern)),
		validation.Field(&patch.QuietHoursEnd, validation.NilOrNotEmpty, validation.Match(quietHoursPattern)),
	)
	if err != nil {
		return apperr.BadRequest("Invalid preferences: %s", err.Error())
	}
	return nil
}

func validChannels(value interface{}) error {
	channels, _ := value.([]model.Channel)
	for _, c := range channels {
		if err := validation.Validate(c, validation.Required, validation.In(enumValues(model.Channels)...)); err != nil {
			return fmt.Errorf("contains invalid channel %q", c)
		}
	}
	return nil
}

func enumValues[T ~string](values []T) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
