package handlers

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
)

// OrderSubmittedBridge — мост между тонким доменным событием OrderSubmitted
// и входом саги. Перечитывает полный заказ и публикует CheckoutStarted:
// вход саги авторитетен на момент чтения, а не на момент события.
type OrderSubmittedBridge struct {
	orders domain.OrderRepository
	bus    domain.MessageBus
	logger *log.Entry
}

// NewOrderSubmittedBridge создаёт мост для топика событий заказов.
func NewOrderSubmittedBridge(orders domain.OrderRepository, bus domain.MessageBus, logger *log.Entry) *OrderSubmittedBridge {
	if logger == nil {
		logger = log.New().WithField("component", "order-submitted-bridge")
	}
	return &OrderSubmittedBridge{orders: orders, bus: bus, logger: logger}
}

// HandleEnvelope обрабатывает конверт из топика событий заказов.
func (h *OrderSubmittedBridge) HandleEnvelope(ctx context.Context, env kafka.Envelope) error {
	if env.Type != kafka.MessageOrderSubmitted {
		h.logger.WithField("type", env.Type).Debug("not an order submitted event, skipping")
		return nil
	}
	var ev kafka.OrderSubmitted
	if err := env.Decode(&ev); err != nil {
		return err
	}
	return h.Handle(ctx, ev)
}

// Handle гидрирует заказ и запускает сагу.
func (h *OrderSubmittedBridge) Handle(ctx context.Context, ev kafka.OrderSubmitted) error {
	order, err := h.orders.Get(ev.OrderID)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", ev.OrderID).Warn("order not found for submitted event")
		return err
	}

	// Повторная доставка после того, как сага уже двинула заказ, — no-op.
	if order.Status != domain.OrderStatusSubmitted {
		h.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Debug("order already past submitted, skipping")
		return nil
	}

	items := make([]kafka.CheckoutItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, kafka.CheckoutItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	started := kafka.CheckoutStarted{
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		BuyerEmail: order.BuyerEmail,
		Items:      items,
	}
	if err := h.bus.Publish(ctx, kafka.TopicCheckoutEvents, order.ID, started); err != nil {
		h.logger.WithError(err).WithField("order_id", order.ID).Error("failed to publish checkout started")
		return err
	}

	h.logger.WithField("order_id", order.ID).Info("checkout started for submitted order")
	return nil
}
