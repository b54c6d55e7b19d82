package handlers

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
)

// ClearCartHandler удаляет корзину покупателя после успешного оформления.
// Отсутствующая корзина — no-op, поэтому обработчик идемпотентен из коробки.
type ClearCartHandler struct {
	carts  domain.CartStore
	logger *log.Entry
}

// NewClearCartHandler создаёт обработчик команды очистки корзины.
func NewClearCartHandler(carts domain.CartStore, logger *log.Entry) *ClearCartHandler {
	if logger == nil {
		logger = log.New().WithField("component", "clear-cart-handler")
	}
	return &ClearCartHandler{carts: carts, logger: logger}
}

// HandleEnvelope обрабатывает конверт из топика команд очистки корзины.
func (h *ClearCartHandler) HandleEnvelope(ctx context.Context, env kafka.Envelope) error {
	if env.Type != kafka.MessageClearCart {
		return nil
	}
	var cmd kafka.ClearCart
	if err := env.Decode(&cmd); err != nil {
		return err
	}
	return h.Handle(ctx, cmd)
}

// Handle удаляет корзину покупателя.
func (h *ClearCartHandler) Handle(ctx context.Context, cmd kafka.ClearCart) error {
	if err := h.carts.DeleteByBuyer(ctx, cmd.BuyerID); err != nil {
		h.logger.WithError(err).WithField("buyer_id", cmd.BuyerID).Error("failed to clear cart")
		return err
	}
	h.logger.WithField("buyer_id", cmd.BuyerID).Info("cart cleared")
	return nil
}
