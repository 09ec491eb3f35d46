package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

type orderRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Заказы клиента хранятся одним JSONB-документом в customer_orders.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *orderRepository) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var customer domain.Customer
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Email, &customer.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	if err != nil {
		return domain.Customer{}, storageErr("get customer", err)
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return customer, nil
}

func (r *orderRepository) SaveCustomer(ctx context.Context, customer domain.Customer) error {
	if customer.ID == "" {
		return domain.ErrCustomerIDRequired
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	createdAt := customer.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email
	`, customer.ID, customer.Name, customer.Email, createdAt)
	if err != nil {
		return storageErr("save customer", err)
	}
	return nil
}

func (r *orderRepository) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, created_at
		FROM customers
		ORDER BY name, id
	`)
	if err != nil {
		return nil, storageErr("list customers", err)
	}
	defer rows.Close()

	result := make([]domain.Customer, 0)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt); err != nil {
			return nil, storageErr("scan customer", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate customers", err)
	}
	return result, nil
}

func (r *orderRepository) GetLedger(ctx context.Context, customerID string) (domain.CustomerOrderLedger, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ledger, err := scanLedger(r.db.QueryRowContext(ctx, `
		SELECT customer_id, last_order_id, orders, version
		FROM customer_orders
		WHERE customer_id = $1
	`, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CustomerOrderLedger{}, domain.ErrLedgerNotFound
	}
	if err != nil {
		return domain.CustomerOrderLedger{}, storageErr("get ledger", err)
	}
	return ledger, nil
}

func (r *orderRepository) ScanLedgers(ctx context.Context) ([]domain.CustomerOrderLedger, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT customer_id, last_order_id, orders, version
		FROM customer_orders
		ORDER BY customer_id
	`)
	if err != nil {
		return nil, storageErr("scan ledgers", err)
	}
	defer rows.Close()

	result := make([]domain.CustomerOrderLedger, 0)
	for rows.Next() {
		ledger, err := scanLedger(rows)
		if err != nil {
			return nil, storageErr("scan ledger row", err)
		}
		result = append(result, ledger)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate ledgers", err)
	}
	return result, nil
}

func (r *orderRepository) SaveLedger(ctx context.Context, ledger domain.CustomerOrderLedger) (domain.CustomerOrderLedger, error) {
	if ledger.CustomerID == "" {
		return domain.CustomerOrderLedger{}, domain.ErrCustomerIDRequired
	}
	orders := ledger.Orders
	if orders == nil {
		orders = []domain.Order{}
	}
	payload, err := json.Marshal(orders)
	if err != nil {
		return domain.CustomerOrderLedger{}, fmt.Errorf("marshal ledger orders: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.now()
	if ledger.Version == 0 {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO customer_orders (customer_id, last_order_id, orders, version, updated_at)
			VALUES ($1, $2, $3, 1, $4)
		`, ledger.CustomerID, ledger.LastOrderID, payload, now)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.CustomerOrderLedger{}, domain.ErrLedgerVersionConflict
			}
			return domain.CustomerOrderLedger{}, storageErr("insert ledger", err)
		}
	} else {
		res, err := r.db.ExecContext(ctx, `
			UPDATE customer_orders
			SET last_order_id = $3,
			    orders = $4,
			    version = version + 1,
			    updated_at = $5
			WHERE customer_id = $1 AND version = $2
		`, ledger.CustomerID, ledger.Version, ledger.LastOrderID, payload, now)
		if err != nil {
			return domain.CustomerOrderLedger{}, storageErr("update ledger", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return domain.CustomerOrderLedger{}, storageErr("rows affected for ledger", err)
		}
		if affected == 0 {
			return domain.CustomerOrderLedger{}, domain.ErrLedgerVersionConflict
		}
	}

	saved := ledger.Clone()
	saved.Orders = orders
	saved.Version = ledger.Version + 1
	return saved, nil
}

func (r *orderRepository) DeleteLedger(ctx context.Context, customerID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM customer_orders WHERE customer_id = $1`, customerID); err != nil {
		return storageErr("delete ledger", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedger(row rowScanner) (domain.CustomerOrderLedger, error) {
	var (
		ledger  domain.CustomerOrderLedger
		payload []byte
	)
	if err := row.Scan(&ledger.CustomerID, &ledger.LastOrderID, &payload, &ledger.Version); err != nil {
		return domain.CustomerOrderLedger{}, err
	}
	ledger.Orders = []domain.Order{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &ledger.Orders); err != nil {
			return domain.CustomerOrderLedger{}, fmt.Errorf("decode orders of %s: %w", ledger.CustomerID, err)
		}
	}
	return ledger, nil
}

// storageErr переводит ошибки драйвера в доменные: дедлайн в ErrTimeout, остальное в ErrStorageUnavailable.
func storageErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FromContext(fmt.Errorf("%s: %w", op, err))
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.Unavailable(op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
