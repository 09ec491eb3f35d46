package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
	"github.com/vladislavdragonenkov/delivery/internal/metrics"
	"github.com/vladislavdragonenkov/delivery/internal/receipt"
	"github.com/vladislavdragonenkov/delivery/internal/signature"
)

const (
	defaultOperationTimeout = 15 * time.Second
	defaultMaxSaveAttempts  = 5
)

// SignatureArchiver сохраняет изображение подписи и возвращает его URL.
type SignatureArchiver interface {
	Archive(ctx context.Context, data, key string) (string, error)
}

// ReceiptRenderer строит письмо по заказу.
type ReceiptRenderer interface {
	Render(order domain.Order, customer domain.Customer, locale string) (receipt.Receipt, error)
}

// ReceiptQueue принимает письма, которые не удалось отправить сразу.
type ReceiptQueue interface {
	Enqueue(ctx context.Context, orderID string, email domain.Email) error
}

// Config задаёт параметры OrderWorkflow.
type Config struct {
	MailFrom    string
	MailBcc     []string
	MailReplyTo []string
	// DefaultLocale используется, если в запросе локаль не указана.
	DefaultLocale string
	// OperationTimeout ограничивает одну операцию целиком.
	OperationTimeout time.Duration
	// MaxSaveAttempts — число попыток read-modify-write ledger при конфликте версий.
	MaxSaveAttempts int
}

// Option настраивает Workflow.
type Option func(*Workflow)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics задаёт метрики операций.
func WithMetrics(m *metrics.WorkflowMetrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithReceiptQueue включает очередь повторной отправки квитанций.
func WithReceiptQueue(queue ReceiptQueue) Option {
	return func(w *Workflow) {
		w.queue = queue
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// Workflow реализует операции над заказами: создание, изменение, удаление и отправку квитанции.
type Workflow struct {
	repo      domain.OrderRepository
	allocator *Allocator
	archiver  SignatureArchiver
	renderer  ReceiptRenderer
	mailer    domain.Mailer
	queue     ReceiptQueue
	cfg       Config
	logger    *log.Entry
	metrics   *metrics.WorkflowMetrics
	now       func() time.Time
}

// NewWorkflow собирает Workflow из зависимостей.
func NewWorkflow(
	repo domain.OrderRepository,
	allocator *Allocator,
	archiver SignatureArchiver,
	renderer ReceiptRenderer,
	mailer domain.Mailer,
	cfg Config,
	opts ...Option,
) *Workflow {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	if cfg.MaxSaveAttempts <= 0 {
		cfg.MaxSaveAttempts = defaultMaxSaveAttempts
	}

	w := &Workflow{
		repo:      repo,
		allocator: allocator,
		archiver:  archiver,
		renderer:  renderer,
		mailer:    mailer,
		cfg:       cfg,
		logger:    log.WithField("component", "order-workflow"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CreateOrder создаёт заказ и возвращает его номер.
func (w *Workflow) CreateOrder(ctx context.Context, req CreateOrderRequest) (orderID string, err error) {
	ctx, finish := w.begin(ctx, "create_order")
	defer func() { err = finish(err) }()

	return w.createOrder(ctx, req)
}

// UpdateOrder применяет патч к заказу клиента. Если заказа нет, ledger не меняется.
func (w *Workflow) UpdateOrder(ctx context.Context, customerID, orderID string, patch OrderPatch) (err error) {
	ctx, finish := w.begin(ctx, "update_order")
	defer func() { err = finish(err) }()

	return w.updateOrder(ctx, customerID, orderID, patch)
}

// RemoveOrder удаляет заказ из ledger клиента. Отсутствующий заказ или ledger не считается ошибкой.
func (w *Workflow) RemoveOrder(ctx context.Context, customerID, orderID string) (err error) {
	ctx, finish := w.begin(ctx, "remove_order")
	defer func() { err = finish(err) }()

	if customerID == "" {
		return domain.ErrCustomerIDRequired
	}
	if orderID == "" {
		return domain.ErrOrderIDRequired
	}

	removed := false
	err = w.mutateLedger(ctx, customerID, false, func(ledger *domain.CustomerOrderLedger) (bool, error) {
		removed = ledger.RemoveOrder(orderID)
		return removed, nil
	})
	if errors.Is(err, domain.ErrLedgerNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if removed {
		w.logger.WithFields(log.Fields{
			"customer_id": customerID,
			"order_id":    orderID,
		}).Info("order removed")
	}
	return nil
}

// SendReceipt при необходимости создаёт или обновляет заказ, затем отправляет квитанцию клиенту.
//
// Ошибка отправки не откатывает изменение заказа. Если настроена очередь, письмо ставится
// в неё и результат содержит Queued=true, но ErrEmailDelivery всё равно возвращается.
func (w *Workflow) SendReceipt(ctx context.Context, req SendReceiptRequest) (result ReceiptResult, err error) {
	ctx, finish := w.begin(ctx, "send_receipt")
	defer func() { err = finish(err) }()

	if err := req.Validate(); err != nil {
		return ReceiptResult{}, err
	}

	orderID := req.OrderID
	switch {
	case req.Create != nil:
		create := *req.Create
		create.CustomerID = req.CustomerID
		orderID, err = w.createOrder(ctx, create)
		if err != nil {
			return ReceiptResult{}, err
		}
	case req.Patch != nil:
		if err := w.updateOrder(ctx, req.CustomerID, orderID, *req.Patch); err != nil {
			return ReceiptResult{}, err
		}
	}

	customer, err := w.repo.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return ReceiptResult{OrderID: orderID}, fmt.Errorf("customer %s: %w", req.CustomerID, err)
	}
	if customer.Email == "" {
		return ReceiptResult{OrderID: orderID}, fmt.Errorf("%w: customer %s has no email", domain.ErrValidation, customer.ID)
	}

	ledger, err := w.repo.GetLedger(ctx, req.CustomerID)
	if err != nil {
		return ReceiptResult{OrderID: orderID}, fmt.Errorf("customer %s: %w", req.CustomerID, err)
	}
	if orderID == "" {
		orderID = ledger.LastOrderID
	}
	if orderID == "" {
		return ReceiptResult{}, domain.ErrOrderIDRequired
	}
	idx := ledger.FindOrder(orderID)
	if idx < 0 {
		return ReceiptResult{OrderID: orderID}, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}

	locale := req.Locale
	if locale == "" {
		locale = w.cfg.DefaultLocale
	}
	rendered, err := w.renderer.Render(ledger.Orders[idx], customer, locale)
	if err != nil {
		return ReceiptResult{OrderID: orderID}, fmt.Errorf("render receipt for order %s: %w", orderID, err)
	}

	result = ReceiptResult{OrderID: orderID, Subject: rendered.Subject}
	email := w.buildEmail(customer, rendered)
	entry := w.logger.WithFields(log.Fields{
		"customer_id": customer.ID,
		"order_id":    orderID,
	})

	sendErr := w.mailer.Send(ctx, email)
	if sendErr == nil {
		w.metrics.RecordReceipt(metrics.ReceiptSent)
		entry.Info("receipt sent")
		return result, nil
	}

	w.metrics.RecordReceipt(metrics.ReceiptFailed)
	entry.WithError(sendErr).Warn("receipt delivery failed")
	if w.queue != nil {
		// Постановка в очередь не зависит от дедлайна операции.
		queueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.OperationTimeout)
		defer cancel()
		if qErr := w.queue.Enqueue(queueCtx, orderID, email); qErr != nil {
			entry.WithError(qErr).Error("failed to enqueue receipt for retry")
		} else {
			result.Queued = true
			w.metrics.RecordReceipt(metrics.ReceiptQueued)
			entry.Info("receipt queued for retry")
		}
	}
	if !errors.Is(sendErr, domain.ErrEmailDelivery) {
		sendErr = errors.Join(domain.ErrEmailDelivery, sendErr)
	}
	return result, fmt.Errorf("send receipt for order %s: %w", orderID, sendErr)
}

func (w *Workflow) createOrder(ctx context.Context, req CreateOrderRequest) (string, error) {
	items, err := req.parse()
	if err != nil {
		return "", err
	}

	orderID, err := w.allocator.NextOrderID(ctx)
	if err != nil {
		return "", err
	}

	now := w.now()
	var sig *domain.SignatureRecord
	if req.SignatureBase64 != "" {
		url, err := w.archiver.Archive(ctx, req.SignatureBase64, signature.ObjectKey(orderID, now))
		if err != nil {
			return "", err
		}
		sig = &domain.SignatureRecord{SignedBy: req.Signee, ImageURL: url}
	} else if req.Signee != "" {
		sig = &domain.SignatureRecord{SignedBy: req.Signee}
	}

	order := domain.Order{
		ID:         orderID,
		CreatedAt:  now,
		IsOpen:     req.IsOpen,
		TotalPrice: domain.SumLineItems(items),
		LineItems:  items,
		Signature:  sig,
	}

	err = w.mutateLedger(ctx, req.CustomerID, true, func(ledger *domain.CustomerOrderLedger) (bool, error) {
		ledger.AddOrder(order)
		return true, nil
	})
	if err != nil {
		return "", err
	}

	w.logger.WithFields(log.Fields{
		"customer_id": req.CustomerID,
		"order_id":    orderID,
		"total":       order.TotalPrice.StringFixed(2),
	}).Info("order created")
	return orderID, nil
}

func (w *Workflow) updateOrder(ctx context.Context, customerID, orderID string, patch OrderPatch) error {
	if customerID == "" {
		return domain.ErrCustomerIDRequired
	}
	if orderID == "" {
		return domain.ErrOrderIDRequired
	}
	parsed, err := patch.parse()
	if err != nil {
		return err
	}

	err = w.mutateLedger(ctx, customerID, false, func(ledger *domain.CustomerOrderLedger) (bool, error) {
		idx := ledger.FindOrder(orderID)
		if idx < 0 {
			return false, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
		}
		if err := parsed.apply(&ledger.Orders[idx]); err != nil {
			return false, err
		}
		return true, nil
	})
	if errors.Is(err, domain.ErrLedgerNotFound) {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	if err != nil {
		return err
	}

	w.logger.WithFields(log.Fields{
		"customer_id": customerID,
		"order_id":    orderID,
	}).Info("order updated")
	return nil
}

// mutateLedger выполняет read-modify-write ledger с повтором при конфликте версий.
// mutate возвращает false, если ledger не изменился и сохранять его не нужно.
func (w *Workflow) mutateLedger(
	ctx context.Context,
	customerID string,
	createIfMissing bool,
	mutate func(*domain.CustomerOrderLedger) (bool, error),
) error {
	for attempt := 1; attempt <= w.cfg.MaxSaveAttempts; attempt++ {
		ledger, err := w.repo.GetLedger(ctx, customerID)
		switch {
		case errors.Is(err, domain.ErrLedgerNotFound) && createIfMissing:
			ledger = domain.NewLedger(customerID)
		case err != nil:
			return err
		}

		changed, err := mutate(&ledger)
		if err != nil || !changed {
			return err
		}

		if _, err := w.repo.SaveLedger(ctx, ledger); err != nil {
			if domain.IsVersionConflict(err) {
				w.metrics.RecordConflict("ledger")
				w.logger.WithFields(log.Fields{
					"customer_id": customerID,
					"attempt":     attempt,
				}).Debug("ledger changed concurrently, retrying")
				continue
			}
			return fmt.Errorf("save ledger %s: %w", customerID, err)
		}
		return nil
	}
	return fmt.Errorf("save ledger %s after %d attempts: %w", customerID, w.cfg.MaxSaveAttempts, domain.ErrLedgerVersionConflict)
}

func (w *Workflow) buildEmail(customer domain.Customer, r receipt.Receipt) domain.Email {
	return domain.Email{
		From:     w.cfg.MailFrom,
		To:       []string{customer.Email},
		Bcc:      append([]string(nil), w.cfg.MailBcc...),
		ReplyTo:  append([]string(nil), w.cfg.MailReplyTo...),
		Subject:  r.Subject,
		HTMLBody: r.HTMLBody,
		TextBody: r.TextBody,
	}
}

// begin ограничивает операцию дедлайном и возвращает функцию, которая
// фиксирует метрики и переводит истёкший дедлайн в ErrTimeout.
func (w *Workflow) begin(ctx context.Context, operation string) (context.Context, func(error) error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.OperationTimeout)
	done := w.metrics.StartOperation(operation)
	return ctx, func(err error) error {
		cancel()
		err = domain.FromContext(err)
		done(err)
		return err
	}
}
