package handlers

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
)

// DeductStockHandler конвертирует резервы в постоянное списание остатка.
// Идемпотентен: уже отсутствующий резерв считается обработанным и пропускается.
type DeductStockHandler struct {
	stock  domain.StockRepository
	logger *log.Entry
}

// NewDeductStockHandler создаёт обработчик команды списания.
func NewDeductStockHandler(stock domain.StockRepository, logger *log.Entry) *DeductStockHandler {
	if logger == nil {
		logger = log.New().WithField("component", "deduct-stock-handler")
	}
	return &DeductStockHandler{stock: stock, logger: logger}
}

// HandleEnvelope обрабатывает конверт из топика команд списания.
func (h *DeductStockHandler) HandleEnvelope(ctx context.Context, env kafka.Envelope) error {
	if env.Type != kafka.MessageDeductStock {
		return nil
	}
	var cmd kafka.DeductStock
	if err := env.Decode(&cmd); err != nil {
		return err
	}
	return h.Handle(ctx, cmd)
}

// Handle списывает количество каждого резерва и снимает сам резерв.
func (h *DeductStockHandler) Handle(_ context.Context, cmd kafka.DeductStock) error {
	reservations, err := kafka.DecodeReservationIDs(cmd.ReservationIDsJSON)
	if err != nil {
		return err
	}

	for productID, reservationID := range reservations {
		err := updateStock(h.stock, h.logger, productID, func(item *domain.StockItem) (bool, error) {
			quantity, ok := item.ReservationQuantity(reservationID)
			if !ok {
				// Резерв уже списан предыдущей доставкой.
				h.logger.WithFields(log.Fields{
					"order_id":       cmd.OrderID,
					"product_id":     productID,
					"reservation_id": reservationID,
				}).Debug("reservation already consumed, skipping")
				return false, nil
			}

			if _, err := item.AdjustStock(-quantity, "Checkout order confirmed", "system"); err != nil {
				return false, err
			}
			item.ReleaseReservation(reservationID)

			if item.IsLowStock() {
				h.logger.WithFields(log.Fields{
					"product_id": productID,
					"on_hand":    item.QuantityOnHand,
				}).Warn("stock is low after deduction")
			}
			return true, nil
		})
		if err != nil {
			if errors.Is(err, domain.ErrStockItemNotFound) {
				// Складской записи больше нет: redelivery не поможет.
				h.logger.WithFields(log.Fields{
					"order_id":   cmd.OrderID,
					"product_id": productID,
				}).Warn("stock item is gone, skipping deduction")
				continue
			}
			h.logger.WithError(err).WithFields(log.Fields{
				"order_id":   cmd.OrderID,
				"product_id": productID,
			}).Error("failed to deduct stock")
			return err
		}
	}

	h.logger.WithFields(log.Fields{
		"order_id": cmd.OrderID,
		"items":    len(reservations),
	}).Info("stock deducted for order")
	return nil
}
