package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

// Результаты отправки квитанций.
const (
	ReceiptSent   = "sent"
	ReceiptFailed = "failed"
	ReceiptQueued = "queued"
)

// WorkflowMetrics содержит метрики операций над заказами.
// Все методы безопасны для nil-получателя.
type WorkflowMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	inFlight          prometheus.Gauge

	receipts     *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	orphanOrders prometheus.Counter
	allocatedIDs prometheus.Counter
}

// NewWorkflowMetrics регистрирует метрики в DefaultRegisterer.
func NewWorkflowMetrics() *WorkflowMetrics {
	return NewWorkflowMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWorkflowMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewWorkflowMetricsWithRegisterer(registerer prometheus.Registerer) *WorkflowMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkflowMetrics{
		operations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_operations_total",
			Help: "Total number of order workflow operations grouped by operation and result.",
		}, []string{"operation", "result"}), "delivery_operations_total"),
		operationDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "delivery_operation_duration_seconds",
			Help:    "Duration of order workflow operations in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}), "delivery_operation_duration_seconds"),
		inFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "delivery_operations_in_flight",
			Help: "Number of order workflow operations currently running.",
		}), "delivery_operations_in_flight"),
		receipts: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_receipts_total",
			Help: "Receipt emails grouped by delivery result.",
		}, []string{"result"}), "delivery_receipts_total"),
		conflicts: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_version_conflicts_total",
			Help: "Optimistic concurrency conflicts grouped by resource.",
		}, []string{"resource"}), "delivery_version_conflicts_total"),
		orphanOrders: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delivery_orphan_orders_skipped_total",
			Help: "Orders skipped during aggregation because their customer record is missing.",
		}), "delivery_orphan_orders_skipped_total"),
		allocatedIDs: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delivery_order_ids_allocated_total",
			Help: "Order ids handed out by the allocator.",
		}), "delivery_order_ids_allocated_total"),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T, name string) T {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// StartOperation отмечает начало операции и возвращает функцию её завершения.
func (m *WorkflowMetrics) StartOperation(operation string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	started := time.Now()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
		m.operations.WithLabelValues(operation, resultLabel(err)).Inc()
	}
}

// RecordReceipt учитывает результат отправки квитанции.
func (m *WorkflowMetrics) RecordReceipt(result string) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(result).Inc()
}

// RecordConflict учитывает конфликт версий ledger или счётчика.
func (m *WorkflowMetrics) RecordConflict(resource string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(resource).Inc()
}

// RecordOrphanOrder учитывает заказ, пропущенный из-за отсутствующего клиента.
func (m *WorkflowMetrics) RecordOrphanOrder() {
	if m == nil {
		return
	}
	m.orphanOrders.Inc()
}

// RecordAllocatedID учитывает выданный номер заказа.
func (m *WorkflowMetrics) RecordAllocatedID() {
	if m == nil {
		return
	}
	m.allocatedIDs.Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}
