package handlers

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
)

// ReserveStockHandler резервирует остаток по каждой позиции заказа.
// Резервирование всё-или-ничего: при нехватке хотя бы одного товара уже
// полученные резервы снимаются, и сага получает StockReservationFailed.
type ReserveStockHandler struct {
	stock  domain.StockRepository
	orders domain.OrderRepository
	bus    domain.MessageBus
	logger *log.Entry
}

// NewReserveStockHandler создаёт обработчик команды резервирования.
func NewReserveStockHandler(stock domain.StockRepository, orders domain.OrderRepository, bus domain.MessageBus, logger *log.Entry) *ReserveStockHandler {
	if logger == nil {
		logger = log.New().WithField("component", "reserve-stock-handler")
	}
	return &ReserveStockHandler{stock: stock, orders: orders, bus: bus, logger: logger}
}

// HandleEnvelope обрабатывает конверт из топика команд резервирования.
func (h *ReserveStockHandler) HandleEnvelope(ctx context.Context, env kafka.Envelope) error {
	if env.Type != kafka.MessageReserveStockForOrder {
		return nil
	}
	var cmd kafka.ReserveStockForOrder
	if err := env.Decode(&cmd); err != nil {
		return err
	}
	return h.Handle(ctx, cmd)
}

// Handle выполняет резервирование. Идемпотентность по статусу заказа:
// повторная доставка для заказа, ушедшего дальше submitted, — no-op.
func (h *ReserveStockHandler) Handle(ctx context.Context, cmd kafka.ReserveStockForOrder) error {
	order, err := h.orders.Get(cmd.OrderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusSubmitted {
		h.logger.WithFields(log.Fields{
			"order_id": cmd.OrderID,
			"status":   order.Status,
		}).Debug("order already past submitted, skipping duplicate reserve")
		return nil
	}

	completed := make(map[string]string, len(cmd.Items))
	for _, item := range cmd.Items {
		reservationID, err := h.reserveOne(item.ProductID, item.Quantity)
		if err != nil {
			reason := h.failureReason(item.ProductID, err)
			if !isBusinessFailure(err) {
				// Системный сбой: откатываем и отдаём сообщение на redelivery.
				h.rollback(cmd.OrderID, completed)
				return err
			}

			h.logger.WithFields(log.Fields{
				"order_id":   cmd.OrderID,
				"product_id": item.ProductID,
				"reason":     reason,
			}).Warn("stock reservation failed, rolling back")
			h.rollback(cmd.OrderID, completed)

			failed := kafka.StockReservationFailed{
				OrderID: cmd.OrderID,
				Reason:  reason,
			}
			return h.bus.Publish(ctx, kafka.TopicCheckoutEvents, cmd.OrderID, failed)
		}
		completed[item.ProductID] = reservationID
	}

	// Резервы получены: двигаем заказ в stock_reserved.
	err = updateOrder(h.orders, h.logger, cmd.OrderID, func(order *domain.Order) (bool, error) {
		if err := order.MarkStockReserved(); err != nil {
			if domain.IsInvalidStatus(err) {
				h.logger.WithFields(log.Fields{
					"order_id": cmd.OrderID,
					"status":   order.Status,
				}).Debug("order already stock reserved")
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
	if err != nil {
		h.rollback(cmd.OrderID, completed)
		return err
	}

	ids, err := kafka.EncodeReservationIDs(completed)
	if err != nil {
		return err
	}
	done := kafka.StockReservationCompleted{
		OrderID:            cmd.OrderID,
		ReservationIDsJSON: ids,
	}
	if err := h.bus.Publish(ctx, kafka.TopicCheckoutEvents, cmd.OrderID, done); err != nil {
		h.logger.WithError(err).WithField("order_id", cmd.OrderID).Error("failed to publish reservation completed")
		return err
	}

	h.logger.WithFields(log.Fields{
		"order_id": cmd.OrderID,
		"items":    len(completed),
	}).Info("stock reserved for order")
	return nil
}

// reserveOne резервирует одну позицию через load-reserve-save с retry.
func (h *ReserveStockHandler) reserveOne(productID string, quantity int32) (string, error) {
	var reservationID string
	err := updateStock(h.stock, h.logger, productID, func(item *domain.StockItem) (bool, error) {
		id, err := item.Reserve(quantity)
		if err != nil {
			return false, err
		}
		reservationID = id
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return reservationID, nil
}

// rollback снимает уже полученные резервы. Ошибки здесь не фатальны:
// неснятый резерв истечёт по TTL и вернётся в доступный пул сам.
func (h *ReserveStockHandler) rollback(orderID string, completed map[string]string) {
	for productID, reservationID := range completed {
		err := updateStock(h.stock, h.logger, productID, func(item *domain.StockItem) (bool, error) {
			item.ReleaseReservation(reservationID)
			return true, nil
		})
		if err != nil {
			h.logger.WithError(err).WithFields(log.Fields{
				"order_id":   orderID,
				"product_id": productID,
			}).Warn("failed to roll back reservation, it will expire")
		}
	}
}

// failureReason строит причину провала для события саги.
func (h *ReserveStockHandler) failureReason(productID string, err error) string {
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		return fmt.Sprintf("Insufficient stock for product %s: available %d, requested %d",
			insufficient.ProductID, insufficient.Available, insufficient.Requested)
	}
	if errors.Is(err, domain.ErrStockItemNotFound) {
		return fmt.Sprintf("No stock record for product %s", productID)
	}
	return err.Error()
}

// isBusinessFailure отличает бизнес-провал резервирования от системного сбоя.
func isBusinessFailure(err error) bool {
	return domain.IsInsufficientStock(err) ||
		errors.Is(err, domain.ErrStockItemNotFound) ||
		errors.Is(err, domain.ErrReservationQuantityInvalid)
}
