package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
	"github.com/vladislavdragonenkov/delivery/internal/metrics"
)

// Aggregator собирает заказы всех клиентов в единый список.
type Aggregator struct {
	repo    domain.OrderRepository
	logger  *log.Entry
	metrics *metrics.WorkflowMetrics
}

// NewAggregator создаёт сервис агрегации заказов. metrics может быть nil.
func NewAggregator(repo domain.OrderRepository, logger *log.Entry, m *metrics.WorkflowMetrics) *Aggregator {
	if logger == nil {
		logger = log.WithField("component", "order-aggregation")
	}
	return &Aggregator{repo: repo, logger: logger, metrics: m}
}

// ListOrders возвращает заказы всех клиентов вместе с именем владельца,
// от новых к старым. При openOnly остаются только открытые заказы.
// Заказы клиентов без записи Customer пропускаются.
func (a *Aggregator) ListOrders(ctx context.Context, openOnly bool) ([]domain.EnrichedOrder, error) {
	ledgers, err := a.repo.ScanLedgers(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan ledgers: %w", err)
	}

	customers := make(map[string]*domain.Customer, len(ledgers))
	result := make([]domain.EnrichedOrder, 0)
	for _, ledger := range ledgers {
		customer, err := a.lookupCustomer(ctx, customers, ledger.CustomerID)
		if err != nil {
			return nil, err
		}

		for _, order := range ledger.Orders {
			if openOnly && !order.IsOpen {
				continue
			}
			if customer == nil {
				a.metrics.RecordOrphanOrder()
				a.logger.WithFields(log.Fields{
					"customer_id": ledger.CustomerID,
					"order_id":    order.ID,
				}).Debug("skipping order of unknown customer")
				continue
			}
			result = append(result, domain.EnrichedOrder{
				Order:        order.Clone(),
				CustomerID:   customer.ID,
				CustomerName: customer.Name,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListOrdersForCustomer возвращает заказы одного клиента от новых к старым.
// Для клиента без ledger возвращается ErrLedgerNotFound, а не пустой список.
func (a *Aggregator) ListOrdersForCustomer(ctx context.Context, customerID string, openOnly bool) ([]domain.Order, error) {
	if customerID == "" {
		return nil, domain.ErrCustomerIDRequired
	}

	ledger, err := a.repo.GetLedger(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", customerID, err)
	}

	result := make([]domain.Order, 0, len(ledger.Orders))
	for _, order := range ledger.Orders {
		if openOnly && !order.IsOpen {
			continue
		}
		result = append(result, order.Clone())
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// lookupCustomer кэширует клиентов в пределах одного вызова; nil означает отсутствующего клиента.
func (a *Aggregator) lookupCustomer(ctx context.Context, cache map[string]*domain.Customer, id string) (*domain.Customer, error) {
	if customer, ok := cache[id]; ok {
		return customer, nil
	}
	customer, err := a.repo.GetCustomer(ctx, id)
	switch {
	case errors.Is(err, domain.ErrCustomerNotFound):
		cache[id] = nil
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	cache[id] = &customer
	return &customer, nil
}
