package handlers

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
)

// ReleaseReservationsHandler — компенсация: возвращает зарезервированный
// остаток в доступный пул. Снятие резерва идемпотентно на уровне агрегата,
// поэтому повторная доставка безопасна.
type ReleaseReservationsHandler struct {
	stock  domain.StockRepository
	logger *log.Entry
}

// NewReleaseReservationsHandler создаёт обработчик команды компенсации.
func NewReleaseReservationsHandler(stock domain.StockRepository, logger *log.Entry) *ReleaseReservationsHandler {
	if logger == nil {
		logger = log.New().WithField("component", "release-reservations-handler")
	}
	return &ReleaseReservationsHandler{stock: stock, logger: logger}
}

// HandleEnvelope обрабатывает конверт из топика команд компенсации.
func (h *ReleaseReservationsHandler) HandleEnvelope(ctx context.Context, env kafka.Envelope) error {
	if env.Type != kafka.MessageReleaseStockReservations {
		return nil
	}
	var cmd kafka.ReleaseStockReservations
	if err := env.Decode(&cmd); err != nil {
		return err
	}
	return h.Handle(ctx, cmd)
}

// Handle снимает все резервы заказа.
func (h *ReleaseReservationsHandler) Handle(_ context.Context, cmd kafka.ReleaseStockReservations) error {
	reservations, err := kafka.DecodeReservationIDs(cmd.ReservationIDsJSON)
	if err != nil {
		return err
	}

	for productID, reservationID := range reservations {
		err := updateStock(h.stock, h.logger, productID, func(item *domain.StockItem) (bool, error) {
			item.ReleaseReservation(reservationID)
			return true, nil
		})
		if err != nil {
			if errors.Is(err, domain.ErrStockItemNotFound) {
				// Записи нет — возвращать нечего.
				h.logger.WithFields(log.Fields{
					"order_id":   cmd.OrderID,
					"product_id": productID,
				}).Warn("stock item is gone, skipping release")
				continue
			}
			h.logger.WithError(err).WithFields(log.Fields{
				"order_id":   cmd.OrderID,
				"product_id": productID,
			}).Error("failed to release reservation")
			return err
		}
	}

	h.logger.WithFields(log.Fields{
		"order_id": cmd.OrderID,
		"items":    len(reservations),
	}).Info("stock reservations released for order")
	return nil
}
