package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

// stockRepositoryInMemory хранит складские записи по product_id.
type stockRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.StockItem
}

// NewStockRepository возвращает in-memory реализацию StockRepository.
func NewStockRepository() domain.StockRepository {
	return &stockRepositoryInMemory{
		items: make(map[string]domain.StockItem),
	}
}

// Create сохраняет новую складскую запись, если товар ещё не зарегистрирован.
func (r *stockRepositoryInMemory) Create(item domain.StockItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ProductID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[item.ProductID] = cloneStockItem(item)
	return nil
}

// GetByProduct возвращает запись или ErrStockItemNotFound, если её нет.
func (r *stockRepositoryInMemory) GetByProduct(productID string) (domain.StockItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[productID]
	if !ok {
		return domain.StockItem{}, domain.ErrStockItemNotFound
	}
	return cloneStockItem(item), nil
}

// Save перезаписывает запись, проверяя версию (optimistic locking).
// Проигравший конкурентный писатель получает ErrVersionConflict.
func (r *stockRepositoryInMemory) Save(item domain.StockItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[item.ProductID]
	if !ok {
		return domain.ErrStockItemNotFound
	}
	if current.Version != item.Version {
		return domain.ErrVersionConflict
	}
	item.Version++
	r.items[item.ProductID] = cloneStockItem(item)
	return nil
}

// cloneStockItem копирует запись вместе с резервами и журналом корректировок.
func cloneStockItem(item domain.StockItem) domain.StockItem {
	clone := item
	if item.Reservations != nil {
		clone.Reservations = make([]domain.StockReservation, len(item.Reservations))
		copy(clone.Reservations, item.Reservations)
	}
	if item.Adjustments != nil {
		clone.Adjustments = make([]domain.StockAdjustment, len(item.Adjustments))
		copy(clone.Adjustments, item.Adjustments)
	}
	return clone
}

var _ domain.StockRepository = (*stockRepositoryInMemory)(nil)
