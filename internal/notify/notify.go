// Package notify delivers SMS notifications to applicants. Delivery is
// delegated to a sink: a Kafka topic consumed by the SMS gateway in
// production, or the application log in development.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies the notification template
type Kind string

const (
	KindVerificationCode Kind = "verification_code"
	KindApproval         Kind = "approval"
	KindRejection        Kind = "rejection"
)

// Message is one SMS to one recipient
type Message struct {
	Kind      Kind
	To        string
	Body      string
	AccountID uuid.UUID
}

// Notifier sends a message. Implementations attempt delivery once.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// VerificationCode builds the registration code SMS
func VerificationCode(appName, to, code string) Message {
	return Message{
		Kind: KindVerificationCode,
		To:   to,
		Body: fmt.Sprintf("Your %s verification code is: %s. Valid for 5 minutes.", appName, code),
	}
}

// Approval builds the SMS sent when an admin approves a registration
func Approval(appName, to, name string, accountID uuid.UUID) Message {
	return Message{
		Kind: KindApproval,
		To:   to,
		Body: fmt.Sprintf("Hi %s, your %s registration has been approved! You can now complete your profile and start connecting with classmates.",
			name, appName),
		AccountID: accountID,
	}
}

// Rejection builds the SMS sent when an admin rejects a registration.
// An empty reason omits the reason sentence.
func Rejection(appName, to, reason string, accountID uuid.UUID) Message {
	body := fmt.Sprintf("Your %s registration was not approved. Please contact support if you believe this is an error.", appName)
	if reason != "" {
		body = fmt.Sprintf("Your %s registration was not approved. Reason: %s. Please contact support if you believe this is an error.",
			appName, reason)
	}
	return Message{
		Kind:      KindRejection,
		To:        to,
		Body:      body,
		AccountID: accountID,
	}
}
