package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

func testAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		Name:   "Jane Doe",
		Email:  "jane@example.com",
		Street: "1 Main St",
		City:   "Springfield",
		State:  "IL",
		Zip:    "62701",
	}
}

func newTestOrder(t *testing.T) domain.Order {
	t.Helper()

	order, _, err := domain.NewOrder("buyer-1", "jane@example.com", testAddress(), []domain.NewOrderItem{
		{ProductID: "product-a", ProductName: "Widget", UnitPriceMinor: 1999, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	return order
}

func TestOrderRepositoryCreateAndGet(t *testing.T) {
	repo := NewOrderRepository()
	order := newTestOrder(t)

	if err := repo.Create(order); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != order.ID || got.TotalMinor != order.TotalMinor {
		t.Fatalf("got %+v, want %+v", got, order)
	}
	if len(got.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got.Items))
	}
}

func TestOrderRepositoryCreateDuplicate(t *testing.T) {
	repo := NewOrderRepository()
	order := newTestOrder(t)

	if err := repo.Create(order); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(order); !domain.IsVersionConflict(err) {
		t.Fatalf("got %v, want version conflict", err)
	}
}

func TestOrderRepositoryGetMissing(t *testing.T) {
	repo := NewOrderRepository()

	_, err := repo.Get("missing")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("got %v, want ErrOrderNotFound", err)
	}
}

func TestOrderRepositorySaveVersionConflict(t *testing.T) {
	repo := NewOrderRepository()
	order := newTestOrder(t)

	if err := repo.Create(order); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Первое сохранение инкрементирует версию в хранилище.
	if err := order.MarkStockReserved(); err != nil {
		t.Fatalf("MarkStockReserved: %v", err)
	}
	if err := repo.Save(order); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Повтор с устаревшей версией проигрывает.
	if err := repo.Save(order); !domain.IsVersionConflict(err) {
		t.Fatalf("got %v, want version conflict", err)
	}

	fresh, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fresh.Version != order.Version+1 {
		t.Fatalf("expected version %d, got %d", order.Version+1, fresh.Version)
	}
	if fresh.Status != domain.OrderStatusStockReserved {
		t.Fatalf("expected status stock_reserved, got %s", fresh.Status)
	}
}

func TestOrderRepositoryListByBuyer(t *testing.T) {
	repo := NewOrderRepository()

	var last domain.Order
	for i := 0; i < 3; i++ {
		order := newTestOrder(t)
		order.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if err := repo.Create(order); err != nil {
			t.Fatalf("Create: %v", err)
		}
		last = order
	}

	stranger := newTestOrder(t)
	stranger.BuyerID = "buyer-2"
	if err := repo.Create(stranger); err != nil {
		t.Fatalf("Create stranger: %v", err)
	}

	orders, err := repo.ListByBuyer("buyer-1", 2)
	if err != nil {
		t.Fatalf("ListByBuyer: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	// Сначала самые свежие.
	if orders[0].ID != last.ID {
		t.Fatalf("expected newest order first, got %s", orders[0].ID)
	}
}

func TestOrderRepositoryReturnsCopies(t *testing.T) {
	repo := NewOrderRepository()
	order := newTestOrder(t)

	if err := repo.Create(order); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Items[0].Quantity = 42

	again, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Items[0].Quantity == 42 {
		t.Fatal("repository must not expose internal state to callers")
	}
}
