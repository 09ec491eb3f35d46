package app

import (
	"time"

	"github.com/vladislavdragonenkov/delivery/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/delivery/internal/receipt"
)

const (
	// StorageDriverMemory хранит заказы в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит документы заказов в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

const (
	// DefaultSignatureBucketURL — endpoint S3-совместимого хранилища подписей.
	DefaultSignatureBucketURL = "https://{bucket}.s3-ap-southeast-2.amazonaws.com"
	// DefaultSignatureBucket — bucket с изображениями подписей клиентов.
	DefaultSignatureBucket = "maoproduce-stack-customer-signatures"
)

// Config описывает настройки запуска сервиса доставки.
type Config struct {
	MetricsAddr string
	LogLevel    string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// SignatureBucketURL может содержать {bucket}; пустое значение включает in-memory store.
	SignatureBucketURL string
	SignatureBucket    string

	MailFrom         string
	MailBcc          []string
	MailReplyTo      []string
	DefaultLocale    string
	OperationTimeout time.Duration

	// KafkaBrokers пуст, если письма только логируются.
	KafkaBrokers []string
	ReceiptTopic string
	DLQTopic     string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:         ":9090",
		LogLevel:            "info",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SignatureBucketURL:  DefaultSignatureBucketURL,
		SignatureBucket:     DefaultSignatureBucket,
		MailFrom:            "orders@maoproduce.co.nz",
		DefaultLocale:       receipt.DefaultLocaleTag,
		OperationTimeout:    15 * time.Second,
		ReceiptTopic:        kafka.TopicReceiptEmails,
		DLQTopic:            kafka.TopicDeadLetterQueue,
		OutboxPollInterval:  5 * time.Second,
		OutboxBatchSize:     50,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    200 * time.Millisecond,
	}
}
