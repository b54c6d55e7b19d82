package integration

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/membus"
	"github.com/vladislavdragonenkov/microcommerce/internal/service/handlers"
	"github.com/vladislavdragonenkov/microcommerce/internal/service/orders"
	"github.com/vladislavdragonenkov/microcommerce/internal/service/outbox"
	"github.com/vladislavdragonenkov/microcommerce/internal/service/saga"
	"github.com/vladislavdragonenkov/microcommerce/internal/storage/memory"
)

// CheckoutSagaTestSuite прогоняет полный цикл checkout-саги поверх
// внутрипроцессной шины и in-memory хранилищ: та же таблица маршрутов,
// что и в боевом приложении, только без брокера и базы.
type CheckoutSagaTestSuite struct {
	suite.Suite

	bus       *membus.Bus
	orders    domain.OrderRepository
	stock     domain.StockRepository
	checkouts domain.CheckoutRepository
	carts     domain.CartStore
	timeline  domain.TimelineRepository
	outboxing domain.OutboxRepository

	service *orders.Service
	worker  *outbox.Worker
}

// busOutboxPublisher доставляет outbox-сообщения в шину тем же конвертом,
// каким их публикует Kafka-паблишер.
type busOutboxPublisher struct {
	bus *membus.Bus
}

func (p *busOutboxPublisher) Publish(event domain.OutboxMessage) error {
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	env := kafka.Envelope{
		Type:       kafka.MessageType(event.EventType),
		OccurredAt: time.Now().UTC(),
		Payload:    event.Payload,
	}
	return p.bus.Deliver(context.Background(), kafka.TopicOrderEvents, key, env)
}

func (suite *CheckoutSagaTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.bus = membus.New()
	suite.orders = memory.NewOrderRepository()
	suite.stock = memory.NewStockRepository()
	suite.checkouts = memory.NewCheckoutRepository()
	suite.carts = memory.NewCartStore()
	suite.timeline = memory.NewTimelineRepository()
	suite.outboxing = memory.NewOutboxRepository()

	machine := saga.NewMachineWithoutMetrics(suite.checkouts, suite.bus, suite.timeline, logger)
	bridge := handlers.NewOrderSubmittedBridge(suite.orders, suite.bus, logger)
	reserve := handlers.NewReserveStockHandler(suite.stock, suite.orders, suite.bus, logger)
	deduct := handlers.NewDeductStockHandler(suite.stock, logger)
	release := handlers.NewReleaseReservationsHandler(suite.stock, logger)
	confirm := handlers.NewConfirmOrderHandler(suite.orders, logger)
	failed := handlers.NewOrderFailedHandler(suite.orders, logger)
	clearCart := handlers.NewClearCartHandler(suite.carts, logger)

	suite.bus.Subscribe(kafka.TopicOrderEvents, bridge.HandleEnvelope)
	suite.bus.Subscribe(kafka.TopicCheckoutEvents, machine.Dispatch)
	suite.bus.Subscribe(kafka.TopicReserveStock, reserve.HandleEnvelope)
	suite.bus.Subscribe(kafka.TopicDeductStock, deduct.HandleEnvelope)
	suite.bus.Subscribe(kafka.TopicReleaseStock, release.HandleEnvelope)
	suite.bus.Subscribe(kafka.TopicConfirmOrder, confirm.HandleEnvelope)
	suite.bus.Subscribe(kafka.TopicOrderFailed, failed.HandleEnvelope)
	suite.bus.Subscribe(kafka.TopicClearCart, clearCart.HandleEnvelope)

	suite.service = orders.NewServiceWithoutMetrics(suite.orders, suite.carts, suite.outboxing, suite.timeline, logger)
	suite.worker = outbox.NewWorker(suite.outboxing, &busOutboxPublisher{bus: suite.bus}, outbox.WithLogger(logger))
}

// seedStock создаёт складскую запись с заданным доступным остатком.
func (suite *CheckoutSagaTestSuite) seedStock(productID string, quantity int32) {
	item := domain.NewStockItem(productID)
	_, err := item.AdjustStock(quantity, "initial stock", "integration-test")
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), suite.stock.Create(item))
}

// seedCart кладёт корзину покупателя, чтобы проверить её судьбу после саги.
func (suite *CheckoutSagaTestSuite) seedCart(buyerID string) {
	cart := domain.NewCart(buyerID)
	require.NoError(suite.T(), cart.AddItem("product-1", "Mechanical Keyboard", 1999, 2))
	require.NoError(suite.T(), suite.carts.Save(context.Background(), cart))
}

// submitOrder оформляет заказ и прогоняет outbox, запуская сагу.
func (suite *CheckoutSagaTestSuite) submitOrder(buyerID string, items []domain.NewOrderItem) domain.Order {
	order, err := suite.service.Submit(context.Background(), buyerID, buyerID+"@example.com", domain.ShippingAddress{
		Name:   "Pat Fulton",
		Email:  buyerID + "@example.com",
		Street: "12 Harbor Ln",
		City:   "Portland",
		State:  "OR",
		Zip:    "97201",
	}, items)
	require.NoError(suite.T(), err)

	suite.worker.ProcessOnce(context.Background())
	return order
}

// completePayment имитирует платёжную границу: помечает заказ оплаченным
// и публикует PaymentCompleted в топик событий саги.
func (suite *CheckoutSagaTestSuite) completePayment(orderID string) {
	order, err := suite.orders.Get(orderID)
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), order.MarkAsPaid())
	require.NoError(suite.T(), suite.orders.Save(order))

	err = suite.bus.Publish(context.Background(), kafka.TopicCheckoutEvents, orderID, kafka.PaymentCompleted{OrderID: orderID})
	require.NoError(suite.T(), err)
}

func (suite *CheckoutSagaTestSuite) TestCheckoutHappyPath() {
	suite.seedStock("product-1", 10)
	suite.seedCart("buyer-1")

	order := suite.submitOrder("buyer-1", []domain.NewOrderItem{{
		ProductID:      "product-1",
		ProductName:    "Mechanical Keyboard",
		UnitPriceMinor: 1999,
		Quantity:       2,
	}})

	// Резервы получены, сага ждёт оплату.
	reserved, err := suite.orders.Get(order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.OrderStatusStockReserved, reserved.Status)

	state, err := suite.checkouts.Get(order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.CheckoutStepStockReserved, state.Step)
	suite.NotEmpty(state.ReservationIDsJSON)

	stockItem, err := suite.stock.GetByProduct("product-1")
	suite.Require().NoError(err)
	suite.Equal(int32(8), stockItem.AvailableQuantity())

	suite.completePayment(order.ID)

	// Заказ подтверждён, остаток списан перманентно, резервов не осталось.
	confirmed, err := suite.orders.Get(order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.OrderStatusConfirmed, confirmed.Status)
	suite.NotNil(confirmed.PaidAt)

	stockItem, err = suite.stock.GetByProduct("product-1")
	suite.Require().NoError(err)
	suite.Equal(int32(8), stockItem.AvailableQuantity())
	suite.Empty(stockItem.Reservations)

	// Корзина очищена, экземпляр саги удалён.
	_, err = suite.carts.Get(context.Background(), "buyer-1")
	suite.ErrorIs(err, domain.ErrCartNotFound)

	_, err = suite.checkouts.Get(order.ID)
	suite.ErrorIs(err, domain.ErrCheckoutNotFound)

	timeline, err := suite.timeline.List(order.ID)
	suite.Require().NoError(err)
	types := make([]string, 0, len(timeline))
	for _, ev := range timeline {
		types = append(types, ev.Type)
	}
	suite.Contains(types, "OrderSubmitted")
	suite.Contains(types, "CheckoutStarted")
	suite.Contains(types, "StockReserved")
	suite.Contains(types, "CheckoutCompleted")
}

func (suite *CheckoutSagaTestSuite) TestTerminalEventRedeliveryIsNoop() {
	suite.seedStock("product-1", 10)

	order := suite.submitOrder("buyer-1", []domain.NewOrderItem{{
		ProductID:      "product-1",
		ProductName:    "Mechanical Keyboard",
		UnitPriceMinor: 1999,
		Quantity:       2,
	}})
	suite.completePayment(order.ID)

	// Экземпляр саги удалён, повторная доставка терминального события
	// не находит его и ничего не меняет.
	err := suite.bus.Publish(context.Background(), kafka.TopicCheckoutEvents, order.ID, kafka.PaymentCompleted{OrderID: order.ID})
	suite.Require().NoError(err)

	confirmed, err := suite.orders.Get(order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.OrderStatusConfirmed, confirmed.Status)

	stockItem, err := suite.stock.GetByProduct("product-1")
	suite.Require().NoError(err)
	suite.Equal(int32(8), stockItem.AvailableQuantity())
}

func (suite *CheckoutSagaTestSuite) TestInsufficientStockFailsOrderAndKeepsCart() {
	suite.seedStock("product-1", 1)
	suite.seedCart("buyer-1")

	order := suite.submitOrder("buyer-1", []domain.NewOrderItem{{
		ProductID:      "product-1",
		ProductName:    "Mechanical Keyboard",
		UnitPriceMinor: 1999,
		Quantity:       5,
	}})

	failed, err := suite.orders.Get(order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.OrderStatusFailed, failed.Status)
	suite.Contains(failed.FailureReason, "Insufficient stock for product product-1")

	// Остаток не изменился, резервов не осталось.
	stockItem, err := suite.stock.GetByProduct("product-1")
	suite.Require().NoError(err)
	suite.Equal(int32(1), stockItem.AvailableQuantity())
	suite.Empty(stockItem.Reservations)

	// Корзина остаётся у покупателя, чтобы он мог поправить заказ.
	_, err = suite.carts.Get(context.Background(), "buyer-1")
	suite.NoError(err)

	_, err = suite.checkouts.Get(order.ID)
	suite.ErrorIs(err, domain.ErrCheckoutNotFound)
}

func (suite *CheckoutSagaTestSuite) TestUnknownProductFailsOrder() {
	order := suite.submitOrder("buyer-1", []domain.NewOrderItem{{
		ProductID:      "product-unknown",
		ProductName:    "Ghost Item",
		UnitPriceMinor: 500,
		Quantity:       1,
	}})

	failed, err := suite.orders.Get(order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.OrderStatusFailed, failed.Status)
	suite.Contains(failed.FailureReason, "No stock record for product product-unknown")
}

func (suite *CheckoutSagaTestSuite) TestPaymentFailureReleasesReservations() {
	suite.seedStock("product-1", 10)
	suite.seedCart("buyer-1")

	order := suite.submitOrder("buyer-1", []domain.NewOrderItem{{
		ProductID:      "product-1",
		ProductName:    "Mechanical Keyboard",
		UnitPriceMinor: 1999,
		Quantity:       3,
	}})

	reserved, err := suite.orders.Get(order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.OrderStatusStockReserved, reserved.Status)

	err = suite.bus.Publish(context.Background(), kafka.TopicCheckoutEvents, order.ID, kafka.PaymentFailed{
		OrderID: order.ID,
		Reason:  "Payment declined (simulated)",
	})
	suite.Require().NoError(err)

	// Компенсация: резервы сняты, заказ провален, корзина сохранена.
	stockItem, err := suite.stock.GetByProduct("product-1")
	suite.Require().NoError(err)
	suite.Equal(int32(10), stockItem.AvailableQuantity())
	suite.Empty(stockItem.Reservations)

	failed, err := suite.orders.Get(order.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.OrderStatusFailed, failed.Status)
	suite.Equal("Payment declined (simulated)", failed.FailureReason)

	_, err = suite.carts.Get(context.Background(), "buyer-1")
	suite.NoError(err)

	_, err = suite.checkouts.Get(order.ID)
	suite.ErrorIs(err, domain.ErrCheckoutNotFound)

	timeline, err := suite.timeline.List(order.ID)
	suite.Require().NoError(err)
	var sawFailure bool
	for _, ev := range timeline {
		if ev.Type == "CheckoutFailed" {
			sawFailure = true
			suite.Equal("Payment declined (simulated)", ev.Reason)
		}
	}
	suite.True(sawFailure, "timeline must record checkout failure")
}

func (suite *CheckoutSagaTestSuite) TestDuplicateOrderSubmittedEventIsNoop() {
	suite.seedStock("product-1", 10)

	order := suite.submitOrder("buyer-1", []domain.NewOrderItem{{
		ProductID:      "product-1",
		ProductName:    "Mechanical Keyboard",
		UnitPriceMinor: 1999,
		Quantity:       2,
	}})

	// Redelivery события OrderSubmitted: заказ уже ушёл дальше submitted,
	// мост его пропускает, второй резерв не появляется.
	err := suite.bus.Publish(context.Background(), kafka.TopicOrderEvents, order.ID, kafka.OrderSubmitted{OrderID: order.ID})
	suite.Require().NoError(err)

	stockItem, err := suite.stock.GetByProduct("product-1")
	suite.Require().NoError(err)
	suite.Equal(int32(8), stockItem.AvailableQuantity())
	suite.Len(stockItem.Reservations, 1)
}

func TestCheckoutSagaTestSuite(t *testing.T) {
	suite.Run(t, new(CheckoutSagaTestSuite))
}
