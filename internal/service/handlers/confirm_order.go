package handlers

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
)

// ConfirmOrderHandler финализирует оплаченный заказ.
type ConfirmOrderHandler struct {
	orders domain.OrderRepository
	logger *log.Entry
}

// NewConfirmOrderHandler создаёт обработчик команды подтверждения.
func NewConfirmOrderHandler(orders domain.OrderRepository, logger *log.Entry) *ConfirmOrderHandler {
	if logger == nil {
		logger = log.New().WithField("component", "confirm-order-handler")
	}
	return &ConfirmOrderHandler{orders: orders, logger: logger}
}

// HandleEnvelope обрабатывает конверт из топика команд подтверждения.
func (h *ConfirmOrderHandler) HandleEnvelope(ctx context.Context, env kafka.Envelope) error {
	if env.Type != kafka.MessageConfirmOrder {
		return nil
	}
	var cmd kafka.ConfirmOrder
	if err := env.Decode(&cmd); err != nil {
		return err
	}
	return h.Handle(ctx, cmd)
}

// Handle переводит заказ paid → confirmed. Уже подтверждённый заказ — no-op.
func (h *ConfirmOrderHandler) Handle(_ context.Context, cmd kafka.ConfirmOrder) error {
	err := updateOrder(h.orders, h.logger, cmd.OrderID, func(order *domain.Order) (bool, error) {
		if order.Status == domain.OrderStatusConfirmed {
			h.logger.WithField("order_id", cmd.OrderID).Debug("order already confirmed, skipping")
			return false, nil
		}
		if err := order.Confirm(); err != nil {
			if domain.IsInvalidStatus(err) {
				// Заказ не в paid: команду нельзя применить, redelivery не поможет.
				h.logger.WithFields(log.Fields{
					"order_id": cmd.OrderID,
					"status":   order.Status,
				}).Warn("confirm command dropped, order is not paid")
				return false, nil
			}
			return false, err
		}
		h.logger.WithField("order_id", cmd.OrderID).Info("order confirmed")
		return true, nil
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		// Заказа больше нет: повтор команды ничего не изменит.
		h.logger.WithField("order_id", cmd.OrderID).Warn("order not found, dropping confirm command")
		return nil
	}
	return err
}
