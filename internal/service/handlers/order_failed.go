package handlers

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
)

// OrderFailedHandler переводит заказ в failed с причиной.
// Идемпотентен: уже проваленный заказ пропускается.
type OrderFailedHandler struct {
	orders domain.OrderRepository
	logger *log.Entry
}

// NewOrderFailedHandler создаёт обработчик команды провала заказа.
func NewOrderFailedHandler(orders domain.OrderRepository, logger *log.Entry) *OrderFailedHandler {
	if logger == nil {
		logger = log.New().WithField("component", "order-failed-handler")
	}
	return &OrderFailedHandler{orders: orders, logger: logger}
}

// HandleEnvelope обрабатывает конверт из топика команд провала.
func (h *OrderFailedHandler) HandleEnvelope(ctx context.Context, env kafka.Envelope) error {
	if env.Type != kafka.MessageOrderFailed {
		return nil
	}
	var cmd kafka.OrderFailed
	if err := env.Decode(&cmd); err != nil {
		return err
	}
	return h.Handle(ctx, cmd)
}

// Handle применяет провал к заказу.
func (h *OrderFailedHandler) Handle(_ context.Context, cmd kafka.OrderFailed) error {
	err := updateOrder(h.orders, h.logger, cmd.OrderID, func(order *domain.Order) (bool, error) {
		if order.Status == domain.OrderStatusFailed {
			h.logger.WithField("order_id", cmd.OrderID).Debug("order already failed, skipping")
			return false, nil
		}
		if err := order.MarkAsFailed(cmd.Reason); err != nil {
			if domain.IsInvalidStatus(err) {
				// Заказ уже оплачен или финализирован, провал неприменим.
				h.logger.WithFields(log.Fields{
					"order_id": cmd.OrderID,
					"status":   order.Status,
				}).Warn("fail command dropped, order is past failure window")
				return false, nil
			}
			return false, err
		}
		h.logger.WithFields(log.Fields{
			"order_id": cmd.OrderID,
			"reason":   cmd.Reason,
		}).Info("order failed")
		return true, nil
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		// Заказа больше нет: повтор команды ничего не изменит.
		h.logger.WithField("order_id", cmd.OrderID).Warn("order not found, dropping fail command")
		return nil
	}
	return err
}
