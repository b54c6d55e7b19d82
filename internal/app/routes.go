package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/microcommerce/internal/service/handlers"
	"github.com/vladislavdragonenkov/microcommerce/internal/service/saga"
)

// buildRoutes собирает сагу и обработчики команд и возвращает таблицу
// topic -> handler. Одна и та же таблица подключается либо к Kafka consumer
// groups, либо к внутрипроцессной шине.
func buildRoutes(deps *Dependencies, bus domain.MessageBus, logger *log.Entry) map[string]kafka.EnvelopeHandler {
	machine := saga.NewMachine(deps.Checkouts, bus, deps.Timeline, logger.WithField("component", "checkout-saga"))

	bridge := handlers.NewOrderSubmittedBridge(deps.Orders, bus, logger.WithField("component", "order-submitted-bridge"))
	reserve := handlers.NewReserveStockHandler(deps.Stock, deps.Orders, bus, logger.WithField("component", "reserve-stock-handler"))
	deduct := handlers.NewDeductStockHandler(deps.Stock, logger.WithField("component", "deduct-stock-handler"))
	release := handlers.NewReleaseReservationsHandler(deps.Stock, logger.WithField("component", "release-reservations-handler"))
	confirm := handlers.NewConfirmOrderHandler(deps.Orders, logger.WithField("component", "confirm-order-handler"))
	failed := handlers.NewOrderFailedHandler(deps.Orders, logger.WithField("component", "order-failed-handler"))
	clearCart := handlers.NewClearCartHandler(deps.Carts, logger.WithField("component", "clear-cart-handler"))

	return map[string]kafka.EnvelopeHandler{
		kafka.TopicOrderEvents:    bridge.HandleEnvelope,
		kafka.TopicCheckoutEvents: machine.Dispatch,
		kafka.TopicReserveStock:   reserve.HandleEnvelope,
		kafka.TopicDeductStock:    deduct.HandleEnvelope,
		kafka.TopicReleaseStock:   release.HandleEnvelope,
		kafka.TopicConfirmOrder:   confirm.HandleEnvelope,
		kafka.TopicOrderFailed:    failed.HandleEnvelope,
		kafka.TopicClearCart:      clearCart.HandleEnvelope,
	}
}
