package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer)

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event ReceiptEmailEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.EventType != EventTypeReceiptEmail {
			return errors.New("unexpected event type " + string(event.EventType))
		}
		if event.Email.Subject != "Delivery Confirmation for Order: 17050" {
			return errors.New("unexpected subject " + event.Email.Subject)
		}
		return nil
	})

	event := NewReceiptEmailEvent(domain.Email{
		From:    "orders@maoproduce.test",
		To:      []string{"alice@example.com"},
		Subject: "Delivery Confirmation for Order: 17050",
	})

	if err := producer.PublishEvent(context.Background(), TopicReceiptEmails, "17050", event, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(context.Background(), TopicReceiptEmails, "17050", NewReceiptEmailEvent(domain.Email{}), nil)
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishCanceledContext(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Ожиданий нет: сообщение не должно дойти до producer.
	if err := producer.Publish(ctx, TopicReceiptEmails, "k", []byte("{}"), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewReceiptEmailEvent(t *testing.T) {
	email := domain.Email{To: []string{"bob@example.com"}, Subject: "s"}

	event := NewReceiptEmailEvent(email)

	if event.EventType != EventTypeReceiptEmail {
		t.Errorf("expected event type %s, got %s", EventTypeReceiptEmail, event.EventType)
	}
	if event.Email.To[0] != "bob@example.com" {
		t.Error("email not set correctly")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}
