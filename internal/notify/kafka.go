package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier produces notification messages to a Kafka topic, keyed by recipient email.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaNotifier returns a producer for topic. Returns nil when brokers or topic are empty;
// callers then fall back to LogNotifier. Call Close when shutting down.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// Notify serializes msg as JSON and writes it to the topic.
func (p *KafkaNotifier) Notify(ctx context.Context, msg Message) error {
	if p == nil || p.writer == nil {
		return errors.New("notify: kafka producer not configured")
	}
	if !msg.Kind.Valid() {
		return errors.New("notify: unknown kind " + string(msg.Kind))
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.RecipientEmail),
		Value: value,
	})
}

// Close closes the Kafka writer. Safe on nil.
func (p *KafkaNotifier) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Decode parses a Kafka message value produced by KafkaNotifier.
func Decode(value []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return Message{}, err
	}
	if !msg.Kind.Valid() {
		return Message{}, errors.New("notify: unknown kind " + string(msg.Kind))
	}
	if msg.RecipientEmail == "" {
		return Message{}, errors.New("notify: recipient email is empty")
	}
	return msg, nil
}
