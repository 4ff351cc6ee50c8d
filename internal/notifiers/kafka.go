package notifiers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sbilibin2017/gw-user-signup/internal/models"
	"github.com/segmentio/kafka-go"
)

// MessageWriter writes messages to a topic. *kafka.Writer satisfies it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer for topic. Messages with the same key land on the same partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
}

// KafkaPublisher publishes registration events as JSON keyed by user id.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher creates a new KafkaPublisher instance.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish writes event to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, event models.UserRegisteredEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
	})
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
