package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
	"github.com/vladislavdragonenkov/delivery/internal/messaging/kafka"
)

// KafkaMailer передаёт письма почтовому relay через Kafka topic.
type KafkaMailer struct {
	producer *kafka.Producer
	topic    string
	logger   *log.Entry
}

// NewKafkaMailer создаёт mailer поверх producer. Пустой topic означает topic по умолчанию.
func NewKafkaMailer(producer *kafka.Producer, topic string) *KafkaMailer {
	if topic == "" {
		topic = kafka.TopicReceiptEmails
	}
	return &KafkaMailer{
		producer: producer,
		topic:    topic,
		logger:   log.WithField("component", "kafka-mailer"),
	}
}

// Send публикует письмо. Любая ошибка публикации оборачивается в ErrEmailDelivery.
func (m *KafkaMailer) Send(ctx context.Context, email domain.Email) error {
	if err := validate(email); err != nil {
		return err
	}

	if err := m.producer.PublishEvent(ctx, m.topic, email.To[0], kafka.NewReceiptEmailEvent(email), nil); err != nil {
		return errors.Join(domain.ErrEmailDelivery, domain.FromContext(err))
	}

	m.logger.WithFields(log.Fields{
		"to":      strings.Join(email.To, ","),
		"subject": email.Subject,
	}).Debug("email handed to relay")
	return nil
}

// validate отбрасывает письма, которые relay всё равно не примет.
func validate(email domain.Email) error {
	if len(email.To) == 0 || strings.TrimSpace(email.To[0]) == "" {
		return fmt.Errorf("%w: email has no recipients", domain.ErrValidation)
	}
	return nil
}

var _ domain.Mailer = (*KafkaMailer)(nil)
