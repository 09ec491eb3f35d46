package orders

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
	"github.com/vladislavdragonenkov/delivery/internal/metrics"
)

const (
	// OrderIDSequence — имя счётчика, через который выдаются номера заказов.
	OrderIDSequence = "order_id"
	// SeedOrderID — первый номер, если ни одного ledger ещё нет.
	SeedOrderID int64 = 17050

	defaultAllocationAttempts = 8
)

// LedgerScanner читает все ledger; нужен аллокатору один раз для инициализации счётчика.
type LedgerScanner interface {
	ScanLedgers(ctx context.Context) ([]domain.CustomerOrderLedger, error)
}

// AllocatorOption настраивает Allocator.
type AllocatorOption func(*Allocator)

// WithAllocatorLogger задаёт logger аллокатора.
func WithAllocatorLogger(logger *log.Entry) AllocatorOption {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAllocatorMetrics задаёт метрики аллокатора.
func WithAllocatorMetrics(m *metrics.WorkflowMetrics) AllocatorOption {
	return func(a *Allocator) {
		a.metrics = m
	}
}

// WithMaxAllocationAttempts ограничивает число попыток compare-and-swap.
func WithMaxAllocationAttempts(n int) AllocatorOption {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// Allocator выдаёт последовательные номера заказов.
//
// Номер хранится в счётчике OrderIDSequence и продвигается compare-and-swap по версии,
// поэтому два параллельных вызова не получат один и тот же номер. При первом обращении
// счётчик инициализируется значением max(lastOrderId) по всем ledger.
type Allocator struct {
	ledgers     LedgerScanner
	sequences   domain.SequenceRepository
	maxAttempts int
	logger      *log.Entry
	metrics     *metrics.WorkflowMetrics
}

// NewAllocator создаёт аллокатор номеров заказов.
func NewAllocator(ledgers LedgerScanner, sequences domain.SequenceRepository, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		ledgers:     ledgers,
		sequences:   sequences,
		maxAttempts: defaultAllocationAttempts,
		logger:      log.WithField("component", "order-id-allocator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NextOrderID возвращает следующий свободный номер заказа.
func (a *Allocator) NextOrderID(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		seq, found, err := a.sequences.Get(ctx, OrderIDSequence)
		if err != nil {
			return "", fmt.Errorf("read order id sequence: %w", err)
		}

		var next, expectedVersion int64
		if found {
			next, expectedVersion = seq.Value+1, seq.Version
		} else {
			next, err = a.bootstrap(ctx)
			if err != nil {
				return "", err
			}
		}

		if _, err := a.sequences.CompareAndSet(ctx, OrderIDSequence, expectedVersion, next); err != nil {
			if domain.IsVersionConflict(err) {
				a.metrics.RecordConflict("sequence")
				a.logger.WithFields(log.Fields{
					"attempt":  attempt,
					"order_id": next,
				}).Debug("order id already taken, retrying")
				continue
			}
			return "", fmt.Errorf("advance order id sequence: %w", err)
		}

		a.metrics.RecordAllocatedID()
		return formatID(next), nil
	}

	return "", fmt.Errorf("after %d attempts: %w", a.maxAttempts, domain.ErrAllocationRace)
}

// bootstrap вычисляет первый номер по существующим ledger.
func (a *Allocator) bootstrap(ctx context.Context) (int64, error) {
	ledgers, err := a.ledgers.ScanLedgers(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan ledgers: %w", err)
	}

	next, err := NextFromLedgers(ledgers)
	if err != nil {
		return 0, err
	}
	a.logger.WithFields(log.Fields{
		"ledgers":  len(ledgers),
		"order_id": next,
	}).Info("order id sequence initialised from ledgers")
	return next, nil
}

// NextFromLedgers возвращает max(lastOrderId)+1 либо SeedOrderID, если номеров нет.
// Пустой lastOrderId пропускается, нечисловой приводит к ErrInvalidLastOrderID.
func NextFromLedgers(ledgers []domain.CustomerOrderLedger) (int64, error) {
	var (
		maxID int64
		seen  bool
	)
	for _, ledger := range ledgers {
		raw := strings.TrimSpace(ledger.LastOrderID)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("customer %s last_order_id %q: %w", ledger.CustomerID, raw, domain.ErrInvalidLastOrderID)
		}
		if !seen || id > maxID {
			maxID, seen = id, true
		}
	}
	if !seen {
		return SeedOrderID, nil
	}
	return maxID + 1, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
