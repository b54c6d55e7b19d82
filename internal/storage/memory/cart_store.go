package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

// cartStoreInMemory хранит корзины по buyer_id. Истёкшие корзины
// считаются отсутствующими при чтении.
type cartStoreInMemory struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartStore возвращает in-memory реализацию CartStore.
func NewCartStore() domain.CartStore {
	return &cartStoreInMemory{
		carts: make(map[string]domain.Cart),
	}
}

// Get возвращает корзину покупателя или ErrCartNotFound.
func (s *cartStoreInMemory) Get(_ context.Context, buyerID string) (domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[buyerID]
	if !ok || time.Now().UTC().After(cart.ExpiresAt) {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cloneCart(cart), nil
}

// Save сохраняет корзину целиком.
func (s *cartStoreInMemory) Save(_ context.Context, cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.carts[cart.BuyerID] = cloneCart(cart)
	return nil
}

// DeleteByBuyer удаляет корзину вместе с позициями. Отсутствующая — no-op.
func (s *cartStoreInMemory) DeleteByBuyer(_ context.Context, buyerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, buyerID)
	return nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	clone := cart
	if cart.Items != nil {
		clone.Items = make([]domain.CartItem, len(cart.Items))
		copy(clone.Items, cart.Items)
	}
	return clone
}

var _ domain.CartStore = (*cartStoreInMemory)(nil)
