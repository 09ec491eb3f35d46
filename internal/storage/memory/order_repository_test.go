package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
	"github.com/vladislavdragonenkov/delivery/internal/storage/memory"
)

func newLedger(customerID, orderID string) domain.CustomerOrderLedger {
	ledger := domain.NewLedger(customerID)
	ledger.AddOrder(domain.Order{
		ID:         orderID,
		CreatedAt:  time.Now().UTC(),
		IsOpen:     true,
		TotalPrice: decimal.NewFromInt(10),
		LineItems: []domain.LineItem{
			{Title: "Bananas", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(5)},
		},
	})
	return ledger
}

func TestOrderRepository_CustomerRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	if _, err := repo.GetCustomer(ctx, "c1"); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}

	for _, c := range []domain.Customer{
		{ID: "c2", Name: "Zest Cafe", Email: "zest@example.com"},
		{ID: "c1", Name: "Apple Bar", Email: "apple@example.com"},
	} {
		if err := repo.SaveCustomer(ctx, c); err != nil {
			t.Fatalf("save customer failed: %v", err)
		}
	}

	got, err := repo.GetCustomer(ctx, "c1")
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if got.Email != "apple@example.com" {
		t.Fatalf("unexpected customer: %+v", got)
	}

	list, err := repo.ListCustomers(ctx)
	if err != nil {
		t.Fatalf("list customers failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Apple Bar" {
		t.Fatalf("expected customers sorted by name, got %+v", list)
	}
}

func TestOrderRepository_SaveLedgerVersioning(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	saved, err := repo.SaveLedger(ctx, newLedger("c1", "17050"))
	if err != nil {
		t.Fatalf("create ledger failed: %v", err)
	}
	if saved.Version != 1 {
		t.Fatalf("expected version 1, got %d", saved.Version)
	}

	// Повторное создание поверх существующего ledger — конфликт.
	if _, err := repo.SaveLedger(ctx, newLedger("c1", "17051")); !errors.Is(err, domain.ErrLedgerVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	saved.AddOrder(domain.Order{ID: "17051"})
	updated, err := repo.SaveLedger(ctx, saved)
	if err != nil {
		t.Fatalf("update ledger failed: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	// Устаревшая версия отклоняется.
	if _, err := repo.SaveLedger(ctx, saved); !errors.Is(err, domain.ErrLedgerVersionConflict) {
		t.Fatalf("expected stale version conflict, got %v", err)
	}

	stored, err := repo.GetLedger(ctx, "c1")
	if err != nil {
		t.Fatalf("get ledger failed: %v", err)
	}
	if stored.LastOrderID != "17051" || len(stored.Orders) != 2 {
		t.Fatalf("unexpected ledger: %+v", stored)
	}
}

func TestOrderRepository_GetLedgerReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	if _, err := repo.SaveLedger(ctx, newLedger("c1", "17050")); err != nil {
		t.Fatalf("create ledger failed: %v", err)
	}

	first, err := repo.GetLedger(ctx, "c1")
	if err != nil {
		t.Fatalf("get ledger failed: %v", err)
	}
	first.Orders[0].IsOpen = false

	second, err := repo.GetLedger(ctx, "c1")
	if err != nil {
		t.Fatalf("get ledger failed: %v", err)
	}
	if !second.Orders[0].IsOpen {
		t.Fatal("mutation of returned ledger leaked into repository")
	}
}

func TestOrderRepository_ScanAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	for _, l := range []domain.CustomerOrderLedger{newLedger("b", "17051"), newLedger("a", "17050")} {
		if _, err := repo.SaveLedger(ctx, l); err != nil {
			t.Fatalf("save ledger failed: %v", err)
		}
	}

	ledgers, err := repo.ScanLedgers(ctx)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(ledgers) != 2 || ledgers[0].CustomerID != "a" {
		t.Fatalf("unexpected scan result: %+v", ledgers)
	}

	if err := repo.DeleteLedger(ctx, "a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := repo.DeleteLedger(ctx, "missing"); err != nil {
		t.Fatalf("delete of missing ledger must be a no-op, got %v", err)
	}
	if _, err := repo.GetLedger(ctx, "a"); !errors.Is(err, domain.ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}
}

func TestOrderRepository_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := memory.NewOrderRepository()
	if _, err := repo.ScanLedgers(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
