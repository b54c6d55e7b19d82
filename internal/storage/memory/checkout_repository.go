package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

// checkoutRepositoryInMemory хранит экземпляры checkout-саги по OrderID.
type checkoutRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.CheckoutState
}

// NewCheckoutRepository возвращает in-memory реализацию CheckoutRepository.
func NewCheckoutRepository() domain.CheckoutRepository {
	return &checkoutRepositoryInMemory{
		items: make(map[string]domain.CheckoutState),
	}
}

// Create сохраняет новый экземпляр саги, если OrderID ещё не занят.
func (r *checkoutRepositoryInMemory) Create(state domain.CheckoutState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[state.OrderID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[state.OrderID] = state
	return nil
}

// Get возвращает экземпляр или ErrCheckoutNotFound, если его нет.
func (r *checkoutRepositoryInMemory) Get(orderID string) (domain.CheckoutState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.items[orderID]
	if !ok {
		return domain.CheckoutState{}, domain.ErrCheckoutNotFound
	}
	return state, nil
}

// Save перезаписывает экземпляр, проверяя версию (optimistic locking).
func (r *checkoutRepositoryInMemory) Save(state domain.CheckoutState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[state.OrderID]
	if !ok {
		return domain.ErrCheckoutNotFound
	}
	if current.Version != state.Version {
		return domain.ErrVersionConflict
	}
	state.Version++
	r.items[state.OrderID] = state
	return nil
}

// Delete удаляет финализированный экземпляр. Отсутствующий — no-op.
func (r *checkoutRepositoryInMemory) Delete(orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, orderID)
	return nil
}

var _ domain.CheckoutRepository = (*checkoutRepositoryInMemory)(nil)
