package domain

import "time"

// CheckoutStep — состояние персистентной checkout-саги.
// Терминальные исходы отдельных значений не имеют: финализация удаляет
// экземпляр, и повторная доставка терминальных событий становится no-op.
type CheckoutStep string

const (
	// CheckoutStepSubmitted — сага создана, ожидаем результат резервирования.
	CheckoutStepSubmitted CheckoutStep = "submitted"
	// CheckoutStepStockReserved — резервы получены, ожидаем результат оплаты.
	CheckoutStepStockReserved CheckoutStep = "stock_reserved"
)

// CheckoutState — персистентное состояние одного экземпляра checkout-саги.
// Коррелируется строго по OrderID; данными заказа и склада не владеет,
// только ссылается на них и двигает их переходы командами.
type CheckoutState struct {
	OrderID            string
	BuyerID            string
	BuyerEmail         string
	Step               CheckoutStep
	ReservationIDsJSON string
	FailureReason      string
	SubmittedAt        time.Time
	UpdatedAt          time.Time
	Version            int64
}
