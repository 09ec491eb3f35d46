package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

func sampleLedger(customerID, orderID string, createdAt time.Time) domain.CustomerOrderLedger {
	ledger := domain.NewLedger(customerID)
	ledger.AddOrder(domain.Order{
		ID:         orderID,
		CreatedAt:  createdAt,
		IsOpen:     true,
		TotalPrice: decimal.RequireFromString("5.00"),
		LineItems: []domain.LineItem{
			{Title: "Apples", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(5)},
			{Title: "Apples return", Quantity: decimal.NewFromInt(-1), UnitPrice: decimal.NewFromInt(5)},
		},
		Signature: &domain.SignatureRecord{SignedBy: "Jo", ImageURL: "https://bucket/17050.png"},
	})
	return ledger
}

func TestOrderRepository_PostgresCustomers(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	if _, err := repo.GetCustomer(ctx, "c1"); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}

	if err := repo.SaveCustomer(ctx, domain.Customer{ID: "c2", Name: "Zest Cafe", Email: "zest@example.com"}); err != nil {
		t.Fatalf("save c2: %v", err)
	}
	if err := repo.SaveCustomer(ctx, domain.Customer{ID: "c1", Name: "Apple Bar", Email: "apple@example.com"}); err != nil {
		t.Fatalf("save c1: %v", err)
	}

	got, err := repo.GetCustomer(ctx, "c1")
	if err != nil {
		t.Fatalf("get c1: %v", err)
	}
	if got.Name != "Apple Bar" || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected customer: %+v", got)
	}

	list, err := repo.ListCustomers(ctx)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c1" {
		t.Fatalf("unexpected customers: %+v", list)
	}
}

func TestOrderRepository_PostgresLedgerRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	saved, err := repo.SaveLedger(ctx, sampleLedger("c1", "17050", now))
	if err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	if saved.Version != 1 {
		t.Fatalf("expected version 1, got %d", saved.Version)
	}

	got, err := repo.GetLedger(ctx, "c1")
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	if got.LastOrderID != "17050" || len(got.Orders) != 1 {
		t.Fatalf("unexpected ledger: %+v", got)
	}
	order := got.Orders[0]
	if !order.TotalPrice.Equal(decimal.NewFromInt(5)) || len(order.LineItems) != 2 {
		t.Fatalf("unexpected order payload: %+v", order)
	}
	if !order.LineItems[1].IsReturn() || order.Signature == nil || order.Signature.SignedBy != "Jo" {
		t.Fatalf("unexpected line items or signature: %+v", order)
	}

	if _, err := repo.SaveLedger(ctx, sampleLedger("c1", "17051", now)); !errors.Is(err, domain.ErrLedgerVersionConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	got.Orders[0].IsOpen = false
	updated, err := repo.SaveLedger(ctx, got)
	if err != nil {
		t.Fatalf("update ledger: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if _, err := repo.SaveLedger(ctx, got); !errors.Is(err, domain.ErrLedgerVersionConflict) {
		t.Fatalf("expected stale version conflict, got %v", err)
	}

	if _, err := repo.SaveLedger(ctx, sampleLedger("c0", "17049", now)); err != nil {
		t.Fatalf("create second ledger: %v", err)
	}
	ledgers, err := repo.ScanLedgers(ctx)
	if err != nil {
		t.Fatalf("scan ledgers: %v", err)
	}
	if len(ledgers) != 2 || ledgers[0].CustomerID != "c0" {
		t.Fatalf("unexpected scan result: %+v", ledgers)
	}

	if err := repo.DeleteLedger(ctx, "c1"); err != nil {
		t.Fatalf("delete ledger: %v", err)
	}
	if _, err := repo.GetLedger(ctx, "c1"); !errors.Is(err, domain.ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}
}

func TestSequenceRepository_PostgresCompareAndSet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewSequenceRepository(store)
	ctx := context.Background()

	if _, found, err := repo.Get(ctx, "order_id"); err != nil || found {
		t.Fatalf("expected missing sequence, got found=%v err=%v", found, err)
	}
	if _, err := repo.CompareAndSet(ctx, "order_id", 0, 17050); err != nil {
		t.Fatalf("initial set: %v", err)
	}
	if _, err := repo.CompareAndSet(ctx, "order_id", 0, 17050); !errors.Is(err, domain.ErrSequenceVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	seq, err := repo.CompareAndSet(ctx, "order_id", 1, 17051)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	got, found, err := repo.Get(ctx, "order_id")
	if err != nil || !found || got != seq {
		t.Fatalf("unexpected sequence: %+v found=%v err=%v", got, found, err)
	}
}
