package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// EventTypeReceiptEmail — письмо с квитанцией для почтового relay.
	EventTypeReceiptEmail EventType = "ReceiptEmail"
)

// Topics для Kafka
const (
	TopicReceiptEmails   = "produce.receipts.outbound"
	TopicDeadLetterQueue = "produce.receipts.dlq" // письма, исчерпавшие попытки доставки
)

// Kafka headers для DLQ
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// ReceiptEmailEvent — сообщение, которое читает почтовый relay.
type ReceiptEmailEvent struct {
	EventType EventType    `json:"event_type"`
	Email     domain.Email `json:"email"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewReceiptEmailEvent создает событие отправки письма
func NewReceiptEmailEvent(email domain.Email) *ReceiptEmailEvent {
	return &ReceiptEmailEvent{
		EventType: EventTypeReceiptEmail,
		Email:     email,
		Timestamp: time.Now().UTC(),
	}
}
