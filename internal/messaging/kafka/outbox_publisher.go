package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

// DLQPublisher публикует outbox-сообщения, исчерпавшие попытки, в dead letter topic.
type DLQPublisher struct {
	producer      *Producer
	topic         string
	originalTopic string
	now           func() time.Time
}

// NewDLQPublisher создаёт Kafka-паблишер для писем, которые не удалось доставить.
func NewDLQPublisher(producer *Producer, topic, originalTopic string) *DLQPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	if originalTopic == "" {
		originalTopic = TopicReceiptEmails
	}
	return &DLQPublisher{
		producer:      producer,
		topic:         topic,
		originalTopic: originalTopic,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Publish кладёт сообщение в DLQ вместе с исходным payload.
func (p *DLQPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}

	failedAt := p.now()
	envelope := struct {
		ID            string          `json:"id"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		EventType     string          `json:"event_type"`
		Payload       json.RawMessage `json:"payload"`
		FailedAt      time.Time       `json:"failed_at"`
	}{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		FailedAt:      failedAt,
	}

	return p.producer.PublishEvent(ctx, p.topic, key, envelope, map[string]string{
		HeaderOriginalTopic: p.originalTopic,
		HeaderFailedAt:      failedAt.Format(time.RFC3339),
	})
}

var _ domain.OutboxPublisher = (*DLQPublisher)(nil)
