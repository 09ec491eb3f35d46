package mail

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

// LogMailer только пишет письмо в лог. Используется, когда Kafka не настроена.
type LogMailer struct {
	logger *log.Entry
}

// NewLogMailer создаёт LogMailer; logger может быть nil.
func NewLogMailer(logger *log.Entry) *LogMailer {
	if logger == nil {
		logger = log.WithField("component", "log-mailer")
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, email domain.Email) error {
	if err := ctx.Err(); err != nil {
		return domain.FromContext(err)
	}
	if err := validate(email); err != nil {
		return err
	}
	m.logger.WithFields(log.Fields{
		"from":    email.From,
		"to":      strings.Join(email.To, ","),
		"bcc":     strings.Join(email.Bcc, ","),
		"subject": email.Subject,
	}).Info("email not delivered: mail relay is not configured")
	return nil
}

var _ domain.Mailer = (*LogMailer)(nil)
