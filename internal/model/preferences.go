package model

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a communication channel
type Channel string

const (
	ChannelApp      Channel = "app"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// DigestFrequency controls how often digests are sent
type DigestFrequency string

const (
	DigestRealtime DigestFrequency = "realtime"
	DigestDaily    DigestFrequency = "daily"
	DigestWeekly   DigestFrequency = "weekly"
	DigestNever    DigestFrequency = "never"
)

// Visibility controls who can see a profile
type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilityClassmates  Visibility = "classmates"
	VisibilityConnections Visibility = "connections"
)

// Channels, DigestFrequencies and Visibilities are the legal enum values.
var (
	Channels          = []Channel{ChannelApp, ChannelSMS, ChannelEmail, ChannelWhatsApp}
	DigestFrequencies = []DigestFrequency{DigestRealtime, DigestDaily, DigestWeekly, DigestNever}
	Visibilities      = []Visibility{VisibilityPublic, VisibilityClassmates, VisibilityConnections}
)

// Preferences holds an account's notification and visibility settings
type Preferences struct {
	AccountID             uuid.UUID       `json:"userId"`
	PrimaryChannel        Channel         `json:"primaryChannel"`
	EnabledChannels       []Channel       `json:"enabledChannels"`
	SMSNotifications      bool            `json:"smsNotifications"`
	EmailNotifications    bool            `json:"emailNotifications"`
	WhatsAppNotifications bool            `json:"whatsappNotifications"`
	NotifyOnMessages      bool            `json:"notifyOnMessages"`
	NotifyOnForumPosts    bool            `json:"notifyOnForumPosts"`
	NotifyOnEvents        bool            `json:"notifyOnEvents"`
	DigestFrequency       DigestFrequency `json:"digestFrequency"`
	QuietHoursStart       string          `json:"quietHoursStart,omitempty"`
	QuietHoursEnd         string          `json:"quietHoursEnd,omitempty"`
	ProfileVisibility     Visibility      `json:"profileVisibility"`
	ShowPhoneNumber       bool            `json:"showPhoneNumber"`
	ShowEmail             bool            `json:"showEmail"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// DefaultPreferences returns the settings a new account starts with
func DefaultPreferences(accountID uuid.UUID, now time.Time) Preferences {
	return Preferences{
		AccountID:             accountID,
		PrimaryChannel:        ChannelApp,
		EnabledChannels:       []Channel{ChannelApp},
		SMSNotifications:      true,
		EmailNotifications:    true,
		WhatsAppNotifications: false,
		NotifyOnMessages:      true,
		NotifyOnForumPosts:    false,
		NotifyOnEvents:        true,
		DigestFrequency:       DigestDaily,
		QuietHoursStart:       "22:00",
		QuietHoursEnd:         "08:00",
		ProfileVisibility:     VisibilityClassmates,
		ShowPhoneNumber:       false,
		ShowEmail:             false,
		UpdatedAt:             now,
	}
}

// PreferencesPatch carries the fields of a partial update; nil means unchanged
type PreferencesPatch struct {
	PrimaryChannel        *Channel         `json:"primaryChannel"`
	EnabledChannels       []Channel        `json:"enabledChannels"`
	SMSNotifications      *bool            `json:"smsNotifications"`
	EmailNotifications    *bool            `json:"emailNotifications"`
	WhatsAppNotifications *bool            `json:"whatsappNotifications"`
	NotifyOnMessages      *bool            `json:"notifyOnMessages"`
	NotifyOnForumPosts    *bool            `json:"notifyOnForumPosts"`
	NotifyOnEvents        *bool            `json:"notifyOnEvents"`
	DigestFrequency       *DigestFrequency `json:"digestFrequency"`
	QuietHoursStart       *string          `json:"quietHoursStart"`
	QuietHoursEnd         *string          `json:"quietHoursEnd"`
	ProfileVisibility     *Visibility      `json:"profileVisibility"`
	ShowPhoneNumber       *bool            `json:"showPhoneNumber"`
	ShowEmail             *bool            `json:"showEmail"`
}

// Apply merges the provided fields into p
func (patch PreferencesPatch) Apply(p Preferences) Preferences {
	if patch.PrimaryChannel != nil {
		p.PrimaryChannel = *patch.PrimaryChannel
	}
	if patch.EnabledChannels != nil {
		p.EnabledChannels = append([]Channel(nil), patch.EnabledChannels...)
	}
	setBool(&p.SMSNotifications, patch.SMSNotifications)
	setBool(&p.EmailNotifications, patch.EmailNotifications)
	setBool(&p.WhatsAppNotifications, patch.WhatsAppNotifications)
	setBool(&p.NotifyOnMessages, patch.NotifyOnMessages)
	setBool(&p.NotifyOnForumPosts, patch.NotifyOnForumPosts)
	setBool(&p.NotifyOnEvents, patch.NotifyOnEvents)
	if patch.DigestFrequency != nil {
		p.DigestFrequency = *patch.DigestFrequency
	}
	if patch.QuietHoursStart != nil {
		p.QuietHoursStart = *patch.QuietHoursStart
	}
	if patch.QuietHoursEnd != nil {
		p.QuietHoursEnd = *patch.QuietHoursEnd
	}
	if patch.ProfileVisibility != nil {
		p.ProfileVisibility = *patch.ProfileVisibility
	}
	setBool(&p.ShowPhoneNumber, patch.ShowPhoneNumber)
	setBool(&p.ShowEmail, patch.ShowEmail)
	return p
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
