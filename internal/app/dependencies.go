package app

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/delivery/internal/health"
	"github.com/vladislavdragonenkov/delivery/internal/mail"
	"github.com/vladislavdragonenkov/delivery/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/delivery/internal/metrics"
	"github.com/vladislavdragonenkov/delivery/internal/objectstore"
	"github.com/vladislavdragonenkov/delivery/internal/orders"
	"github.com/vladislavdragonenkov/delivery/internal/receipt"
	"github.com/vladislavdragonenkov/delivery/internal/service/outbox"
	"github.com/vladislavdragonenkov/delivery/internal/signature"
)

// Dependencies содержит собранные сервисы приложения. Используется сервисом и CLI.
type Dependencies struct {
	Repo       domain.OrderRepository
	OutboxRepo domain.OutboxRepository
	Workflow   *orders.Workflow
	Aggregator *orders.Aggregator
	Mailer     domain.Mailer
	Logger     *log.Entry

	checkers map[string]healthcheck.Checker
	producer *kafka.Producer
	dlq      domain.OutboxPublisher
	closeFn  func() error
}

// NewDependencies создаёт хранилища, внешние клиенты и сервисы заказов по конфигурации.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	runtime, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Repo:       runtime.repo,
		OutboxRepo: runtime.outboxRepo,
		Logger:     logger,
		checkers:   map[string]healthcheck.Checker{"storage": runtime.storageChecker},
		closeFn:    runtime.closeFn,
	}

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	if producer != nil {
		deps.producer = producer
		deps.Mailer = mail.NewKafkaMailer(producer, cfg.ReceiptTopic)
		deps.dlq = kafka.NewDLQPublisher(producer, cfg.DLQTopic, cfg.ReceiptTopic)
	} else {
		logger.Warn("KAFKA_BROKERS is empty, receipts will only be logged")
		deps.Mailer = mail.NewLogMailer(logger.WithField("mailer", "log"))
	}

	store := newObjectStore(cfg, logger)
	if checker, ok := store.(interface {
		Check(ctx context.Context, bucket string) error
	}); ok {
		deps.checkers["signatures"] = healthcheck.NewProbeChecker("signatures", 0, false, func(ctx context.Context) error {
			return checker.Check(ctx, cfg.SignatureBucket)
		})
	}

	workflowMetrics := metrics.NewWorkflowMetrics()
	allocator := orders.NewAllocator(
		runtime.repo,
		runtime.sequences,
		orders.WithAllocatorMetrics(workflowMetrics),
	)
	deps.Workflow = orders.NewWorkflow(
		runtime.repo,
		allocator,
		signature.NewArchiver(store, cfg.SignatureBucket, nil),
		receipt.NewRenderer(receipt.WithDefaultLocale(cfg.DefaultLocale)),
		deps.Mailer,
		orders.Config{
			MailFrom:         cfg.MailFrom,
			MailBcc:          cfg.MailBcc,
			MailReplyTo:      cfg.MailReplyTo,
			DefaultLocale:    cfg.DefaultLocale,
			OperationTimeout: cfg.OperationTimeout,
		},
		orders.WithMetrics(workflowMetrics),
		orders.WithReceiptQueue(mail.NewQueue(runtime.outboxRepo)),
	)
	deps.Aggregator = orders.NewAggregator(runtime.repo, nil, workflowMetrics)

	return deps, nil
}

// memorySignatureEndpoint — адрес-заглушка для подписей в памяти. Схема http нужна,
// чтобы html/template не заменял ссылку в квитанции на #ZgotmplZ.
const memorySignatureEndpoint = "http://localhost/{bucket}"

// newObjectStore возвращает HTTP-клиент bucket либо in-memory store, если endpoint не задан.
func newObjectStore(cfg Config, logger *log.Entry) domain.ObjectStore {
	endpoint := strings.TrimSpace(cfg.SignatureBucketURL)
	if endpoint == "" {
		logger.Warn("signature bucket url is empty, signatures are kept in memory")
		return objectstore.NewMemoryStore(memorySignatureEndpoint)
	}
	return objectstore.NewHTTPStore(endpoint)
}

// RegisterCheckers добавляет проверки зависимостей в health handler.
func (d *Dependencies) RegisterCheckers(handler *healthcheck.Handler) {
	for name, checker := range d.checkers {
		handler.RegisterChecker(name, checker)
	}
}

// NewOutboxWorker создаёт worker повторной отправки квитанций.
func (d *Dependencies) NewOutboxWorker(cfg Config) *outbox.Worker {
	opts := []outbox.Option{
		outbox.WithLogger(d.Logger.WithField("worker", "receipt-outbox")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if d.dlq != nil {
		opts = append(opts, outbox.WithDLQPublisher(d.dlq))
	}
	return outbox.NewWorker(d.OutboxRepo, mail.NewRetryPublisher(d.Mailer), opts...)
}

// Close освобождает Kafka producer и подключение к хранилищу.
func (d *Dependencies) Close() error {
	closeKafka(d.producer, d.Logger)
	d.producer = nil
	if d.closeFn == nil {
		return nil
	}
	closeFn := d.closeFn
	d.closeFn = nil
	return closeFn()
}
