package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация document store клиентов и ledger.
type orderRepositoryInMemory struct {
	mu        sync.RWMutex
	customers map[string]domain.Customer
	ledgers   map[string]domain.CustomerOrderLedger
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		customers: make(map[string]domain.Customer),
		ledgers:   make(map[string]domain.CustomerOrderLedger),
	}
}

// GetCustomer возвращает клиента или ErrCustomerNotFound.
func (r *orderRepositoryInMemory) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Customer{}, domain.FromContext(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, ok := r.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

// SaveCustomer создаёт или перезаписывает клиента.
func (r *orderRepositoryInMemory) SaveCustomer(ctx context.Context, customer domain.Customer) error {
	if err := ctx.Err(); err != nil {
		return domain.FromContext(err)
	}
	if customer.ID == "" {
		return domain.ErrCustomerIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.customers[customer.ID] = customer
	return nil
}

// ListCustomers возвращает клиентов, отсортированных по имени.
func (r *orderRepositoryInMemory) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.FromContext(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Customer, 0, len(r.customers))
	for _, customer := range r.customers {
		result = append(result, customer)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetLedger возвращает копию ledger или ErrLedgerNotFound.
func (r *orderRepositoryInMemory) GetLedger(ctx context.Context, customerID string) (domain.CustomerOrderLedger, error) {
	if err := ctx.Err(); err != nil {
		return domain.CustomerOrderLedger{}, domain.FromContext(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	ledger, ok := r.ledgers[customerID]
	if !ok {
		return domain.CustomerOrderLedger{}, domain.ErrLedgerNotFound
	}
	return ledger.Clone(), nil
}

// ScanLedgers возвращает копии всех ledger в порядке идентификаторов клиентов.
func (r *orderRepositoryInMemory) ScanLedgers(ctx context.Context) ([]domain.CustomerOrderLedger, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.FromContext(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.CustomerOrderLedger, 0, len(r.ledgers))
	for _, ledger := range r.ledgers {
		result = append(result, ledger.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CustomerID < result[j].CustomerID
	})
	return result, nil
}

// SaveLedger перезаписывает ledger, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) SaveLedger(ctx context.Context, ledger domain.CustomerOrderLedger) (domain.CustomerOrderLedger, error) {
	if err := ctx.Err(); err != nil {
		return domain.CustomerOrderLedger{}, domain.FromContext(err)
	}
	if ledger.CustomerID == "" {
		return domain.CustomerOrderLedger{}, domain.ErrCustomerIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.ledgers[ledger.CustomerID]
	switch {
	case !ok && ledger.Version != 0:
		return domain.CustomerOrderLedger{}, domain.ErrLedgerVersionConflict
	case ok && current.Version != ledger.Version:
		return domain.CustomerOrderLedger{}, domain.ErrLedgerVersionConflict
	}

	// Храним копию, чтобы вызывающий код не мог изменить ledger в обход версии.
	stored := ledger.Clone()
	stored.Version++
	r.ledgers[stored.CustomerID] = stored
	return stored.Clone(), nil
}

// DeleteLedger удаляет ledger клиента.
func (r *orderRepositoryInMemory) DeleteLedger(ctx context.Context, customerID string) error {
	if err := ctx.Err(); err != nil {
		return domain.FromContext(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.ledgers, customerID)
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
