package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, brokers := range [][]string{nil, {}, {" ", ""}} {
		producer, err := initKafkaProducer(brokers, logger)
		if err != nil {
			t.Errorf("expected no error for empty brokers %q, got %v", brokers, err)
		}
		if producer != nil {
			t.Errorf("expected nil producer for empty brokers %q", brokers)
		}
	}
}

func TestInitKafkaProducer_UnreachableBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	producer, err := initKafkaProducer([]string{"127.0.0.1:1", " 127.0.0.1:2 "}, logger)
	if err == nil {
		t.Error("expected error for unreachable brokers")
	}
	if producer != nil {
		t.Error("expected nil producer on error")
	}

	// Не должно паниковать
	closeKafka(producer, logger)
}
