// Package orders — прикладной сервис заказов: оформление, чтение,
// пост-checkout переходы. Создание заказа и событие для саги связаны
// через transactional outbox.
package orders

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/microcommerce/internal/metrics"
)

// Service инкапсулирует сценарии работы с заказами.
type Service struct {
	orders   domain.OrderRepository
	carts    domain.CartStore
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
}

// NewService создаёт прикладной сервис заказов.
func NewService(
	orders domain.OrderRepository,
	carts domain.CartStore,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "orders-service")
	}
	return &Service{
		orders:   orders,
		carts:    carts,
		outbox:   outbox,
		timeline: timeline,
		logger:   logger,
		metrics:  metrics.NewCheckoutMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт сервис заказов без метрик (для тестов).
func NewServiceWithoutMetrics(
	orders domain.OrderRepository,
	carts domain.CartStore,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "orders-service")
	}
	return &Service{
		orders:   orders,
		carts:    carts,
		outbox:   outbox,
		timeline: timeline,
		logger:   logger,
	}
}

// Submit оформляет заказ из переданных позиций. Событие OrderSubmitted
// попадает в outbox и публикуется воркером, а не напрямую в брокер.
func (s *Service) Submit(ctx context.Context, buyerID, buyerEmail string, address domain.ShippingAddress, items []domain.NewOrderItem) (domain.Order, error) {
	order, submitted, err := domain.NewOrder(buyerID, buyerEmail, address, items)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.orders.Create(order); err != nil {
		return domain.Order{}, err
	}

	payload, err := json.Marshal(kafka.OrderSubmitted{OrderID: submitted.OrderID})
	if err != nil {
		return domain.Order{}, err
	}
	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(kafka.MessageOrderSubmitted),
		Payload:       payload,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to enqueue order submitted event")
		return domain.Order{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}

	s.appendTimeline(order.ID, "OrderSubmitted", "")
	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"buyer_id":     buyerID,
		"total_minor":  order.TotalMinor,
	}).Info("order submitted")
	return order, nil
}

// SubmitFromCart оформляет заказ из текущей корзины покупателя.
// Корзина при этом не очищается: её удалит сага после успешной оплаты.
func (s *Service) SubmitFromCart(ctx context.Context, buyerID, buyerEmail string, address domain.ShippingAddress) (domain.Order, error) {
	cart, err := s.carts.Get(ctx, buyerID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(cart.Items) == 0 {
		return domain.Order{}, domain.ErrOrderItemsRequired
	}

	items := make([]domain.NewOrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, domain.NewOrderItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPriceMinor: item.UnitPriceMinor,
			Quantity:       item.Quantity,
		})
	}
	return s.Submit(ctx, buyerID, buyerEmail, address, items)
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(_ context.Context, orderID string) (domain.Order, error) {
	return s.orders.Get(orderID)
}

// ListByBuyer возвращает заказы покупателя, самые свежие первыми.
func (s *Service) ListByBuyer(_ context.Context, buyerID string, limit int) ([]domain.Order, error) {
	return s.orders.ListByBuyer(buyerID, limit)
}

// Timeline возвращает историю оформления заказа.
func (s *Service) Timeline(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(orderID)
}

// Ship передаёт подтверждённый заказ в доставку.
func (s *Service) Ship(_ context.Context, orderID string) error {
	return s.transition(orderID, "OrderShipped", func(order *domain.Order) error {
		return order.Ship()
	})
}

// Deliver фиксирует доставку отправленного заказа.
func (s *Service) Deliver(_ context.Context, orderID string) error {
	return s.transition(orderID, "OrderDelivered", func(order *domain.Order) error {
		return order.Deliver()
	})
}

// transition применяет охраняемый переход с retry при version conflict.
func (s *Service) transition(orderID, eventType string, apply func(*domain.Order) error) error {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return err
		}
		if err := apply(&order); err != nil {
			return err
		}

		err = s.orders.Save(order)
		if err == nil {
			s.appendTimeline(orderID, eventType, "")
			return nil
		}
		if !domain.IsVersionConflict(err) || attempt == maxRetries-1 {
			return err
		}

		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt + 1,
		}).Warn("order version conflict detected, retrying")
		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}
	return domain.ErrVersionConflict
}

func (s *Service) appendTimeline(orderID, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	}
}
