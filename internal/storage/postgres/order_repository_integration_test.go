package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", "buyer-1", now.Add(-2*time.Minute))
	order2 := sampleOrder("order-2", "buyer-1", now.Add(-time.Minute))

	if err := repo.Create(order1); err != nil {
		t.Fatalf("create order1: %v", err)
	}
	if err := repo.Create(order2); err != nil {
		t.Fatalf("create order2: %v", err)
	}

	got, err := repo.Get(order1.ID)
	if err != nil {
		t.Fatalf("get order1: %v", err)
	}
	if got.ID != order1.ID || got.BuyerID != order1.BuyerID || got.Status != order1.Status {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if got.ShippingAddress != order1.ShippingAddress {
		t.Fatalf("unexpected shipping address: %+v", got.ShippingAddress)
	}
	if got.TotalMinor != order1.TotalMinor {
		t.Fatalf("unexpected total: got=%d want=%d", got.TotalMinor, order1.TotalMinor)
	}
	if len(got.Items) != len(order1.Items) {
		t.Fatalf("unexpected items count: got=%d want=%d", len(got.Items), len(order1.Items))
	}
	if got.Items[0].ProductID != order1.Items[0].ProductID {
		t.Fatalf("unexpected first item: %+v", got.Items[0])
	}

	listed, err := repo.ListByBuyer("buyer-1", 1)
	if err != nil {
		t.Fatalf("list by buyer with limit: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != order2.ID {
		t.Fatalf("unexpected list result with limit: %+v", listed)
	}

	all, err := repo.ListByBuyer("buyer-1", 0)
	if err != nil {
		t.Fatalf("list by buyer without limit: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}

	if err := got.MarkStockReserved(); err != nil {
		t.Fatalf("mark stock reserved: %v", err)
	}
	if err := got.MarkAsPaid(); err != nil {
		t.Fatalf("mark as paid: %v", err)
	}
	if err := repo.Save(got); err != nil {
		t.Fatalf("save order: %v", err)
	}

	updated, err := repo.Get(order1.ID)
	if err != nil {
		t.Fatalf("get updated order: %v", err)
	}
	if updated.Status != domain.OrderStatusPaid {
		t.Fatalf("unexpected status after save: %s", updated.Status)
	}
	if updated.PaidAt == nil {
		t.Fatal("expected paid_at to be set after save")
	}
	if updated.Version != got.Version+1 {
		t.Fatalf("unexpected version after save: got=%d want=%d", updated.Version, got.Version+1)
	}
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	base := sampleOrder("order-errors", "buyer-2", now)

	if _, err := repo.Get("missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if err := repo.Save(base); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on save missing, got %v", err)
	}

	if err := repo.Create(base); err != nil {
		t.Fatalf("create base order: %v", err)
	}
	if err := repo.Create(base); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on duplicate create, got %v", err)
	}

	stale := base
	stale.Status = domain.OrderStatusFailed
	stale.FailureReason = "stale writer"
	stale.UpdatedAt = now.Add(time.Minute)
	stale.Version = 42
	if err := repo.Save(stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on stale save, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("unexpected unique violation for non-unique code")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be unique violation")
	}
}

func sampleOrder(id, buyerID string, createdAt time.Time) domain.Order {
	items := []domain.OrderItem{
		{
			ID:             id + "-item-1",
			ProductID:      "product-a",
			ProductName:    "Walnut Desk Organizer",
			UnitPriceMinor: 1999,
			Quantity:       2,
			LineTotalMinor: 3998,
		},
	}

	return domain.Order{
		ID:          id,
		OrderNumber: "ORD-20260901-" + id,
		BuyerID:     buyerID,
		BuyerEmail:  buyerID + "@example.com",
		ShippingAddress: domain.ShippingAddress{
			Name:   "Pat Fulton",
			Email:  buyerID + "@example.com",
			Street: "12 Harbor Ln",
			City:   "Portland",
			State:  "OR",
			Zip:    "97201",
		},
		Items:             items,
		SubtotalMinor:     3998,
		TaxMinor:          320,
		ShippingCostMinor: domain.ShippingCostMinor,
		TotalMinor:        4917,
		Status:            domain.OrderStatusSubmitted,
		Version:           0,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
}
