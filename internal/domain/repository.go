package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ с позициями по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// ListByBuyer возвращает заказы покупателя с опциональным ограничением на количество.
	ListByBuyer(buyerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// StockRepository описывает хранилище складских записей вместе с их резервами.
type StockRepository interface {
	// Create сохраняет новую складскую запись.
	Create(item StockItem) error
	// GetByProduct возвращает запись по товару или ErrStockItemNotFound.
	GetByProduct(productID string) (StockItem, error)
	// Save применяет обновления с учётом optimistic locking: проигравший
	// конкурентный писатель получает ErrVersionConflict, не теряя чужих изменений.
	Save(item StockItem) error
}

// CheckoutRepository хранит персистентные экземпляры checkout-саги.
type CheckoutRepository interface {
	// Create сохраняет новый экземпляр саги.
	Create(state CheckoutState) error
	// Get возвращает экземпляр по OrderID или ErrCheckoutNotFound.
	Get(orderID string) (CheckoutState, error)
	// Save применяет обновления с учётом optimistic locking.
	Save(state CheckoutState) error
	// Delete удаляет финализированный экземпляр. Отсутствующий — no-op.
	Delete(orderID string) error
}

// CartStore хранит корзины покупателей.
type CartStore interface {
	// Get возвращает корзину покупателя или ErrCartNotFound.
	Get(ctx context.Context, buyerID string) (Cart, error)
	// Save сохраняет корзину целиком.
	Save(ctx context.Context, cart Cart) error
	// DeleteByBuyer удаляет корзину вместе с позициями. Отсутствующая — no-op.
	DeleteByBuyer(ctx context.Context, buyerID string) error
}

// TimelineRepository хранит события истории оформления заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}
