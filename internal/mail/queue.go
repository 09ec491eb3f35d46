package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

const (
	// AggregateReceipt — тип агрегата outbox-сообщений с письмами.
	AggregateReceipt = "receipt"
	// EventReceiptEmail — тип события outbox для письма с квитанцией.
	EventReceiptEmail = "ReceiptEmail"
)

// Queue ставит неотправленные письма в outbox для повторной доставки.
type Queue struct {
	outbox domain.OutboxRepository
}

// NewQueue создаёт очередь поверх outbox.
func NewQueue(outbox domain.OutboxRepository) *Queue {
	return &Queue{outbox: outbox}
}

// Enqueue сохраняет письмо по заказу orderID.
func (q *Queue) Enqueue(ctx context.Context, orderID string, email domain.Email) error {
	payload, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("marshal email for order %s: %w", orderID, err)
	}
	_, err = q.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: AggregateReceipt,
		AggregateID:   orderID,
		EventType:     EventReceiptEmail,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue email for order %s: %w", orderID, err)
	}
	return nil
}

// RetryPublisher доставляет письма из outbox через Mailer. Используется outbox worker.
type RetryPublisher struct {
	mailer domain.Mailer
	logger *log.Entry
}

// NewRetryPublisher создаёт publisher для worker повторной отправки.
func NewRetryPublisher(mailer domain.Mailer) *RetryPublisher {
	return &RetryPublisher{
		mailer: mailer,
		logger: log.WithField("component", "receipt-retry"),
	}
}

// ErrUnsupportedMessage возвращается для outbox-сообщений, которые не являются письмами.
var ErrUnsupportedMessage = errors.New("unsupported outbox message")

// Publish декодирует письмо и отправляет его повторно.
func (p *RetryPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.EventType != EventReceiptEmail {
		return fmt.Errorf("%w: event type %q", ErrUnsupportedMessage, msg.EventType)
	}
	var email domain.Email
	if err := json.Unmarshal(msg.Payload, &email); err != nil {
		return fmt.Errorf("decode email %s: %w", msg.ID, err)
	}
	if err := p.mailer.Send(ctx, email); err != nil {
		return err
	}
	p.logger.WithFields(log.Fields{
		"outbox_id": msg.ID,
		"order_id":  msg.AggregateID,
	}).Info("queued receipt delivered")
	return nil
}

var _ domain.OutboxPublisher = (*RetryPublisher)(nil)
