package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusSubmitted — заказ оформлен, резервирование ещё не выполнено.
	OrderStatusSubmitted OrderStatus = "submitted"
	// OrderStatusStockReserved — товары зарезервированы на складе.
	OrderStatusStockReserved OrderStatus = "stock_reserved"
	// OrderStatusPaid — оплата подтверждена платёжной границей.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusConfirmed — заказ финализирован сагой и готов к исполнению.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusFailed — оформление провалилось (нет остатка или платёж отклонён).
	OrderStatusFailed OrderStatus = "failed"
)

const (
	// ShippingCostMinor — фиксированная стоимость доставки, 5.99 в минорных единицах.
	ShippingCostMinor int64 = 599
	// taxRatePercent — ставка налога, 8% от подитога.
	taxRatePercent int64 = 8
)

// ShippingAddress — value object адреса доставки. Все поля обязательны.
type ShippingAddress struct {
	Name   string
	Email  string
	Street string
	City   string
	State  string
	Zip    string
}

// IsZero сообщает, что адрес не был передан вовсе.
func (a ShippingAddress) IsZero() bool {
	return a == ShippingAddress{}
}

// Validate проверяет, что все поля адреса заполнены.
func (a ShippingAddress) Validate() error {
	if a.IsZero() {
		return ErrShippingAddressRequired
	}
	fields := map[string]string{
		"name":   a.Name,
		"email":  a.Email,
		"street": a.Street,
		"city":   a.City,
		"state":  a.State,
		"zip":    a.Zip,
	}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("shipping address field %q is required: %w", name, ErrShippingAddressRequired)
		}
	}
	return nil
}

// OrderItem — одна позиция заказа, снимок данных товара на момент оформления.
type OrderItem struct {
	ID             string
	ProductID      string
	ProductName    string
	UnitPriceMinor int64
	ImageURL       string
	Quantity       int32
	LineTotalMinor int64
}

// NewOrderItem — входные данные позиции при создании заказа.
type NewOrderItem struct {
	ProductID      string
	ProductName    string
	UnitPriceMinor int64
	ImageURL       string
	Quantity       int32
}

// Order агрегирует состояние заказа, его позиции и денежные итоги.
// Итоги вычисляются один раз при создании и больше не пересчитываются.
type Order struct {
	ID                string
	OrderNumber       string
	BuyerID           string
	BuyerEmail        string
	ShippingAddress   ShippingAddress
	Items             []OrderItem
	SubtotalMinor     int64
	TaxMinor          int64
	ShippingCostMinor int64
	TotalMinor        int64
	Status            OrderStatus
	FailureReason     string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            *time.Time
}

// NewOrder создаёт заказ из позиций корзины, вычисляет денежные итоги и
// возвращает тонкое доменное событие OrderSubmitted (только ID заказа).
func NewOrder(buyerID, buyerEmail string, address ShippingAddress, items []NewOrderItem) (Order, OrderSubmitted, error) {
	if strings.TrimSpace(buyerID) == "" {
		return Order{}, OrderSubmitted{}, ErrBuyerIDRequired
	}
	if strings.TrimSpace(buyerEmail) == "" {
		return Order{}, OrderSubmitted{}, ErrBuyerEmailRequired
	}
	if err := address.Validate(); err != nil {
		return Order{}, OrderSubmitted{}, err
	}
	if len(items) == 0 {
		return Order{}, OrderSubmitted{}, ErrOrderItemsRequired
	}

	now := time.Now().UTC()
	order := Order{
		ID:              uuid.NewString(),
		OrderNumber:     generateOrderNumber(now),
		BuyerID:         buyerID,
		BuyerEmail:      buyerEmail,
		ShippingAddress: address,
		Status:          OrderStatusSubmitted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, item := range items {
		if item.Quantity < 1 {
			return Order{}, OrderSubmitted{}, ErrItemQuantityInvalid
		}
		if item.UnitPriceMinor < 0 {
			return Order{}, OrderSubmitted{}, ErrItemPriceInvalid
		}
		lineTotal := item.UnitPriceMinor * int64(item.Quantity)
		order.Items = append(order.Items, OrderItem{
			ID:             uuid.NewString(),
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPriceMinor: item.UnitPriceMinor,
			ImageURL:       item.ImageURL,
			Quantity:       item.Quantity,
			LineTotalMinor: lineTotal,
		})
		order.SubtotalMinor += lineTotal
	}

	order.ShippingCostMinor = ShippingCostMinor
	order.TaxMinor = taxFor(order.SubtotalMinor)
	order.TotalMinor = order.SubtotalMinor + order.TaxMinor + order.ShippingCostMinor

	return order, OrderSubmitted{OrderID: order.ID}, nil
}

// MarkStockReserved фиксирует, что товары зарезервированы. Допустим только из submitted.
func (o *Order) MarkStockReserved() error {
	if o.Status != OrderStatusSubmitted {
		return &InvalidStatusError{Op: "mark stock reserved", Status: o.Status}
	}
	o.Status = OrderStatusStockReserved
	o.touch()
	return nil
}

// MarkAsPaid фиксирует успешную оплату. Допустим из submitted или stock_reserved.
func (o *Order) MarkAsPaid() error {
	if o.Status != OrderStatusSubmitted && o.Status != OrderStatusStockReserved {
		return &InvalidStatusError{Op: "mark order as paid", Status: o.Status}
	}
	now := time.Now().UTC()
	o.Status = OrderStatusPaid
	o.PaidAt = &now
	o.touch()
	return nil
}

// MarkAsFailed переводит заказ в failed с указанием причины.
// Допустим только из submitted или stock_reserved.
func (o *Order) MarkAsFailed(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrFailureReasonRequired
	}
	if o.Status != OrderStatusSubmitted && o.Status != OrderStatusStockReserved {
		return &InvalidStatusError{Op: "mark order as failed", Status: o.Status}
	}
	o.Status = OrderStatusFailed
	o.FailureReason = reason
	o.touch()
	return nil
}

// Confirm финализирует заказ после успешного завершения всех шагов саги.
func (o *Order) Confirm() error {
	if o.Status != OrderStatusPaid {
		return &InvalidStatusError{Op: "confirm order", Status: o.Status}
	}
	o.Status = OrderStatusConfirmed
	o.touch()
	return nil
}

// Ship передаёт подтверждённый заказ в доставку.
func (o *Order) Ship() error {
	if o.Status != OrderStatusConfirmed {
		return &InvalidStatusError{Op: "ship order", Status: o.Status}
	}
	o.Status = OrderStatusShipped
	o.touch()
	return nil
}

// Deliver фиксирует доставку отправленного заказа.
func (o *Order) Deliver() error {
	if o.Status != OrderStatusShipped {
		return &InvalidStatusError{Op: "deliver order", Status: o.Status}
	}
	o.Status = OrderStatusDelivered
	o.touch()
	return nil
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

// taxFor вычисляет налог 8% от подитога в минорных единицах,
// округляя половины к чётному (banker's rounding, как в денежных расчётах).
func taxFor(subtotalMinor int64) int64 {
	num := subtotalMinor * taxRatePercent
	quot := num / 100
	rem := num % 100
	switch {
	case rem > 50:
		quot++
	case rem == 50 && quot%2 != 0:
		quot++
	}
	return quot
}

// generateOrderNumber строит человекочитаемый номер вида ORD-20260901-1A2B3C.
func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
