package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType определяет тип сообщения внутри конверта.
type MessageType string

const (
	// Тонкое доменное событие заказа.
	MessageOrderSubmitted MessageType = "order.submitted"

	// События, которые потребляет сага (коррелируются по OrderID).
	MessageCheckoutStarted           MessageType = "checkout.started"
	MessageStockReservationCompleted MessageType = "checkout.stock_reservation_completed"
	MessageStockReservationFailed    MessageType = "checkout.stock_reservation_failed"
	MessagePaymentCompleted          MessageType = "checkout.payment_completed"
	MessagePaymentFailed             MessageType = "checkout.payment_failed"

	// Команды, которые сага публикует обработчикам.
	MessageReserveStockForOrder     MessageType = "command.reserve_stock_for_order"
	MessageDeductStock              MessageType = "command.deduct_stock"
	MessageReleaseStockReservations MessageType = "command.release_stock_reservations"
	MessageConfirmOrder             MessageType = "command.confirm_order"
	MessageOrderFailed              MessageType = "command.order_failed"
	MessageClearCart                MessageType = "command.clear_cart"
)

// Topics для Kafka: по одному топику (и consumer group) на тип команды,
// события саги — в одном топике с ключом OrderID для порядка внутри заказа.
const (
	TopicOrderEvents     = "commerce.order.events"
	TopicCheckoutEvents  = "commerce.checkout.events"
	TopicReserveStock    = "commerce.stock.reserve"
	TopicDeductStock     = "commerce.stock.deduct"
	TopicReleaseStock    = "commerce.stock.release"
	TopicConfirmOrder    = "commerce.order.confirm"
	TopicOrderFailed     = "commerce.order.failed"
	TopicClearCart       = "commerce.cart.clear"
	TopicDeadLetterQueue = "commerce.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// CheckoutItem — товар и количество для резервирования.
type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

// OrderSubmitted — тонкое событие создания заказа, публикуется через outbox.
type OrderSubmitted struct {
	OrderID string `json:"order_id"`
}

// CheckoutStarted инициирует checkout-сагу.
type CheckoutStarted struct {
	OrderID    string         `json:"order_id"`
	BuyerID    string         `json:"buyer_id"`
	BuyerEmail string         `json:"buyer_email"`
	Items      []CheckoutItem `json:"items"`
}

// ReserveStockForOrder — команда саги: зарезервировать остаток по каждой позиции.
type ReserveStockForOrder struct {
	OrderID string         `json:"order_id"`
	Items   []CheckoutItem `json:"items"`
}

// StockReservationCompleted — все резервы получены.
// ReservationIDsJSON — сериализованный map product_id -> reservation_id.
type StockReservationCompleted struct {
	OrderID            string `json:"order_id"`
	ReservationIDsJSON string `json:"reservation_ids_json"`
}

// StockReservationFailed — резервирование провалилось хотя бы по одной позиции.
type StockReservationFailed struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// PaymentCompleted публикуется платёжной границей при успешной оплате.
type PaymentCompleted struct {
	OrderID string `json:"order_id"`
}

// PaymentFailed публикуется платёжной границей при отклонённой оплате.
type PaymentFailed struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// ConfirmOrder — команда саги: перевести заказ в confirmed.
type ConfirmOrder struct {
	OrderID string `json:"order_id"`
}

// DeductStock — команда саги: перманентно списать зарезервированный остаток.
type DeductStock struct {
	OrderID            string `json:"order_id"`
	ReservationIDsJSON string `json:"reservation_ids_json"`
}

// ReleaseStockReservations — компенсация: снять все резервы при провале.
type ReleaseStockReservations struct {
	OrderID            string `json:"order_id"`
	ReservationIDsJSON string `json:"reservation_ids_json"`
}

// OrderFailed — команда саги: перевести заказ в failed с причиной.
type OrderFailed struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// ClearCart — команда саги: удалить корзину покупателя после оформления.
type ClearCart struct {
	BuyerID string `json:"buyer_id"`
}

// Envelope — конверт сообщения: тип, момент публикации и полезная нагрузка.
type Envelope struct {
	Type       MessageType     `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// TypeOf возвращает тип сообщения для известного контракта.
func TypeOf(msg any) (MessageType, error) {
	switch msg.(type) {
	case OrderSubmitted, *OrderSubmitted:
		return MessageOrderSubmitted, nil
	case CheckoutStarted, *CheckoutStarted:
		return MessageCheckoutStarted, nil
	case StockReservationCompleted, *StockReservationCompleted:
		return MessageStockReservationCompleted, nil
	case StockReservationFailed, *StockReservationFailed:
		return MessageStockReservationFailed, nil
	case PaymentCompleted, *PaymentCompleted:
		return MessagePaymentCompleted, nil
	case PaymentFailed, *PaymentFailed:
		return MessagePaymentFailed, nil
	case ReserveStockForOrder, *ReserveStockForOrder:
		return MessageReserveStockForOrder, nil
	case DeductStock, *DeductStock:
		return MessageDeductStock, nil
	case ReleaseStockReservations, *ReleaseStockReservations:
		return MessageReleaseStockReservations, nil
	case ConfirmOrder, *ConfirmOrder:
		return MessageConfirmOrder, nil
	case OrderFailed, *OrderFailed:
		return MessageOrderFailed, nil
	case ClearCart, *ClearCart:
		return MessageClearCart, nil
	default:
		return "", fmt.Errorf("unknown message contract %T", msg)
	}
}

// NewEnvelope упаковывает контракт в конверт с текущим временем.
func NewEnvelope(msg any) (Envelope, error) {
	msgType, err := TypeOf(msg)
	if err != nil {
		return Envelope{}, err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Envelope{
		Type:       msgType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}, nil
}

// ParseEnvelope разбирает конверт из сырых байтов сообщения.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal message envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("message envelope has empty type")
	}
	return env, nil
}

// Decode распаковывает полезную нагрузку конверта в контракт.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}

// EncodeReservationIDs сериализует карту product_id -> reservation_id
// в одно строковое поле сообщения.
func EncodeReservationIDs(m map[string]string) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal reservation ids: %w", err)
	}
	return string(data), nil
}

// DecodeReservationIDs разбирает карту резервов; пустая строка — пустая карта.
func DecodeReservationIDs(s string) (map[string]string, error) {
	if s == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("unmarshal reservation ids: %w", err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}
