package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора покупателя.
	ErrBuyerIDRequired = errors.New("buyer_id is required")
	// Ошибка отсутствующего email покупателя.
	ErrBuyerEmailRequired = errors.New("buyer_email is required")
	// Ошибка незаполненного адреса доставки (пустой value object).
	ErrShippingAddressRequired = errors.New("shipping address is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrOrderItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве товара (< 1).
	ErrItemQuantityInvalid = errors.New("item quantity must be at least 1")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item unit price must be non-negative")
	// Ошибка отсутствующей причины провала заказа.
	ErrFailureReasonRequired = errors.New("failure reason is required")
	// Ошибка некорректного количества при резервировании.
	ErrReservationQuantityInvalid = errors.New("reservation quantity must be positive")
	// Ошибка корректировки склада, уводящей остаток в минус.
	ErrStockUnderflow = errors.New("stock adjustment would result in negative quantity")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrStockItemNotFound возвращается, если складская запись не найдена.
	ErrStockItemNotFound = errors.New("stock item not found")
	// ErrCartNotFound возвращается, если у покупателя нет корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCheckoutNotFound возвращается, если экземпляр саги не найден
	// (уже финализирован или ещё не создан).
	ErrCheckoutNotFound = errors.New("checkout saga instance not found")
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении агрегата.
	ErrVersionConflict = errors.New("aggregate version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError — бизнес-ошибка резервирования: доступного остатка
// меньше, чем запрошено. Не системный сбой, всегда разрешается в
// StockReservationFailed.
type InsufficientStockError struct {
	ProductID string
	Available int32
	Requested int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// IsInsufficientStock проверяет, является ли ошибка нехваткой остатка.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

// InvalidStatusError возвращается охраняемыми переходами заказа,
// когда операция недопустима из текущего статуса.
type InvalidStatusError struct {
	Op     string
	Status OrderStatus
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("cannot %s when order status is %q", e.Op, e.Status)
}

// IsInvalidStatus проверяет, является ли ошибка недопустимым переходом статуса.
func IsInvalidStatus(err error) bool {
	var target *InvalidStatusError
	return errors.As(err, &target)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
