package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/sjc1990app/server/internal/phone"
)

// smsEvent is the record the SMS gateway consumes
type smsEvent struct {
	Kind        Kind      `json:"kind"`
	PhoneNumber string    `json:"phoneNumber"`
	Message     string    `json:"message"`
	UserID      string    `json:"userId,omitempty"`
	SMSType     string    `json:"smsType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// KafkaConfig holds producer settings. Username enables SASL/PLAIN over TLS.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	Username string
	Password string
}

// KafkaNotifier publishes SMS requests to a topic
type KafkaNotifier struct {
	writer *kafka.Writer
	now    func() time.Time
}

// NewKafkaNotifier creates a synchronous producer that waits for all in-sync replicas
func NewKafkaNotifier(cfg KafkaConfig) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: 10 * time.Second,
	}
	if cfg.Username != "" {
		writer.Transport = &kafka.Transport{
			SASL: plain.Mechanism{
				Username: cfg.Username,
				Password: cfg.Password,
			},
			TLS: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	return &KafkaNotifier{writer: writer, now: time.Now}
}

// Send writes one message keyed by the recipient's phone hash, so messages
// to the same number stay ordered within a partition.
func (k *KafkaNotifier) Send(ctx context.Context, msg Message) error {
	value, err := encodeEvent(msg, k.now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(phone.Hash(msg.To)),
		Value: value,
		Time:  k.now(),
	})
	if err != nil {
		return fmt.Errorf("publish %s notification: %w", msg.Kind, err)
	}
	return nil
}

// Close flushes and closes the writer
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

func encodeEvent(msg Message, at time.Time) ([]byte, error) {
	event := smsEvent{
		Kind:        msg.Kind,
		PhoneNumber: msg.To,
		Message:     msg.Body,
		SMSType:     "Transactional",
		CreatedAt:   at.UTC(),
	}
	if msg.AccountID != uuid.Nil {
		event.UserID = msg.AccountID.String()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return data, nil
}
