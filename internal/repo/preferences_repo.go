package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sjc1990app/server/internal/model"
)

type preferencesRepo struct {
	db *sql.DB
}

// NewPreferencesRepo creates a new PreferencesRepo instance
func NewPreferencesRepo(db *sql.DB) PreferencesRepo {
	return &preferencesRepo{db: db}
}

func channelsToArray(channels []model.Channel) pq.StringArray {
	out := make(pq.StringArray, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}

// Get returns the stored preferences of an account
func (r *preferencesRepo) Get(ctx context.Context, accountID uuid.UUID) (model.Preferences, error) {
	var p model.Preferences
	var enabled pq.StringArray
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, primary_channel, enabled_channels, sms_notifications, email_notifications,
		       whatsapp_notifications, notify_on_messages, notify_on_forum_posts, notify_on_events,
		       digest_frequency, quiet_hours_start, quiet_hours_end, profile_visibility,
		       show_phone_number, show_email, updated_at
		FROM preferences
		WHERE account_id = $1
	`, accountID).Scan(
		&p.AccountID,
		&p.PrimaryChannel,
		&enabled,
		&p.SMSNotifications,
		&p.EmailNotifications,
		&p.WhatsAppNotifications,
		&p.NotifyOnMessages,
		&p.NotifyOnForumPosts,
		&p.NotifyOnEvents,
		&p.DigestFrequency,
		&p.QuietHoursStart,
		&p.QuietHoursEnd,
		&p.ProfileVisibility,
		&p.ShowPhoneNumber,
		&p.ShowEmail,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Preferences{}, ErrNotFound
		}
		return model.Preferences{}, fmt.Errorf("query preferences: %w", err)
	}
	p.EnabledChannels = make([]model.Channel, len(enabled))
	for i, c := range enabled {
		p.EnabledChannels[i] = model.Channel(c)
	}
	return p, nil
}

// Create inserts p if the account has no preferences yet, then returns the stored row.
// A concurrent first read that wins the insert is returned unchanged.
func (r *preferencesRepo) Create(ctx context.Context, p model.Preferences) (model.Preferences, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (account_id, primary_channel, enabled_channels, sms_notifications,
		                         email_notifications, whatsapp_notifications, notify_on_messages,
		                         notify_on_forum_posts, notify_on_events, digest_frequency,
		                         quiet_hours_start, quiet_hours_end, profile_visibility,
		                         show_phone_number, show_email, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (account_id) DO NOTHING
	`, preferencesArgs(p)...)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("insert preferences: %w", err)
	}
	return r.Get(ctx, p.AccountID)
}

// Put overwrites the stored preferences
func (r *preferencesRepo) Put(ctx context.Context, p model.Preferences) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE preferences SET
			primary_channel = $2,
			enabled_channels = $3,
			sms_notifications = $4,
			email_notifications = $5,
			whatsapp_notifications = $6,
			notify_on_messages = $7,
			notify_on_forum_posts = $8,
			notify_on_events = $9,
			digest_frequency = $10,
			quiet_hours_start = $11,
			quiet_hours_end = $12,
			profile_visibility = $13,
			show_phone_number = $14,
			show_email = $15,
			updated_at = $16
		WHERE account_id = $1
	`, preferencesArgs(p)...)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func preferencesArgs(p model.Preferences) []any {
	return []any{
		p.AccountID,
		p.PrimaryChannel,
		channelsToArray(p.EnabledChannels),
		p.SMSNotifications,
		p.EmailNotifications,
		p.WhatsAppNotifications,
		p.NotifyOnMessages,
		p.NotifyOnForumPosts,
		p.NotifyOnEvents,
		p.DigestFrequency,
		p.QuietHoursStart,
		p.QuietHoursEnd,
		p.ProfileVisibility,
		p.ShowPhoneNumber,
		p.ShowEmail,
		p.UpdatedAt,
	}
}
