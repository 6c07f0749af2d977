package notify

import (
	"context"

	"github.com/sjc1990app/server/internal/phone"
	"go.uber.org/zap"
)

// LogNotifier writes messages to the log instead of delivering them. Used in
// DEV_MODE, where the verification code has to be read from the log.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a notifier that logs at info level
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.log.Info("sms notification",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", phone.Mask(msg.To)),
		zap.String("body", msg.Body),
	)
	return nil
}
