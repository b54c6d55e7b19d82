// Package saga реализует персистентную checkout-сагу.
//
// Сага коррелируется по OrderID и хранит своё состояние в
// domain.CheckoutRepository. События без подходящего экземпляра или в
// неподходящем шаге игнорируются: при at-least-once доставке это делает
// повторную обработку терминальных событий безопасным no-op.
package saga

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/microcommerce/internal/metrics"
)

// Machine — движок checkout-саги: принимает события, двигает состояние,
// публикует команды обработчикам.
type Machine struct {
	checkouts domain.CheckoutRepository
	bus       domain.MessageBus
	timeline  domain.TimelineRepository
	logger    *log.Entry
	metrics   *metrics.CheckoutMetrics
}

// NewMachine создаёт рабочий экземпляр саги.
func NewMachine(
	checkouts domain.CheckoutRepository,
	bus domain.MessageBus,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Machine {
	if logger == nil {
		logger = log.New().WithField("component", "checkout-saga")
	}
	return &Machine{
		checkouts: checkouts,
		bus:       bus,
		timeline:  timeline,
		logger:    logger,
		metrics:   metrics.NewCheckoutMetrics(),
	}
}

// NewMachineWithoutMetrics создаёт сагу без метрик (для тестов).
func NewMachineWithoutMetrics(
	checkouts domain.CheckoutRepository,
	bus domain.MessageBus,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Machine {
	if logger == nil {
		logger = log.New().WithField("component", "checkout-saga")
	}
	return &Machine{
		checkouts: checkouts,
		bus:       bus,
		timeline:  timeline,
		logger:    logger,
	}
}

// Dispatch маршрутизирует конверт из топика событий саги к обработчику.
// Неизвестный для саги тип события — no-op.
func (m *Machine) Dispatch(ctx context.Context, env kafka.Envelope) error {
	switch env.Type {
	case kafka.MessageCheckoutStarted:
		var ev kafka.CheckoutStarted
		if err := env.Decode(&ev); err != nil {
			return err
		}
		return m.HandleCheckoutStarted(ctx, ev)
	case kafka.MessageStockReservationCompleted:
		var ev kafka.StockReservationCompleted
		if err := env.Decode(&ev); err != nil {
			return err
		}
		return m.HandleStockReservationCompleted(ctx, ev)
	case kafka.MessageStockReservationFailed:
		var ev kafka.StockReservationFailed
		if err := env.Decode(&ev); err != nil {
			return err
		}
		return m.HandleStockReservationFailed(ctx, ev)
	case kafka.MessagePaymentCompleted:
		var ev kafka.PaymentCompleted
		if err := env.Decode(&ev); err != nil {
			return err
		}
		return m.HandlePaymentCompleted(ctx, ev)
	case kafka.MessagePaymentFailed:
		var ev kafka.PaymentFailed
		if err := env.Decode(&ev); err != nil {
			return err
		}
		return m.HandlePaymentFailed(ctx, ev)
	default:
		m.logger.WithField("type", env.Type).Debug("event is not part of the checkout saga, skipping")
		return nil
	}
}

// HandleCheckoutStarted создаёт экземпляр саги и запускает резервирование.
// Повторная доставка для существующего OrderID — no-op.
func (m *Machine) HandleCheckoutStarted(ctx context.Context, ev kafka.CheckoutStarted) error {
	if _, err := m.checkouts.Get(ev.OrderID); err == nil {
		m.logger.WithField("order_id", ev.OrderID).Debug("checkout already in progress, skipping duplicate start")
		return nil
	} else if !errors.Is(err, domain.ErrCheckoutNotFound) {
		// Хранилище недоступно: пусть брокер доставит событие ещё раз.
		return err
	}

	now := time.Now().UTC()
	state := domain.CheckoutState{
		OrderID:     ev.OrderID,
		BuyerID:     ev.BuyerID,
		BuyerEmail:  ev.BuyerEmail,
		Step:        domain.CheckoutStepSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := m.checkouts.Create(state); err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.RecordCheckoutStarted()
	}
	m.appendTimeline(ev.OrderID, "CheckoutStarted", "")

	cmd := kafka.ReserveStockForOrder{
		OrderID: ev.OrderID,
		Items:   ev.Items,
	}
	if err := m.bus.Publish(ctx, kafka.TopicReserveStock, ev.OrderID, cmd); err != nil {
		m.logger.WithError(err).WithField("order_id", ev.OrderID).Error("failed to publish reserve stock command")
		return err
	}

	m.logger.WithFields(log.Fields{
		"order_id": ev.OrderID,
		"buyer_id": ev.BuyerID,
		"items":    len(ev.Items),
	}).Info("checkout saga started")
	return nil
}

// HandleStockReservationCompleted переводит сагу в шаг stock_reserved
// и запоминает идентификаторы резервов для последующего списания или компенсации.
func (m *Machine) HandleStockReservationCompleted(ctx context.Context, ev kafka.StockReservationCompleted) error {
	state, ok := m.matchState(ev.OrderID, domain.CheckoutStepSubmitted, "stock reservation completed")
	if !ok {
		return nil
	}

	state.Step = domain.CheckoutStepStockReserved
	state.ReservationIDsJSON = ev.ReservationIDsJSON
	if err := m.saveState(state); err != nil {
		return err
	}

	m.appendTimeline(ev.OrderID, "StockReserved", "")
	m.logger.WithField("order_id", ev.OrderID).Info("stock reserved, awaiting payment")
	return nil
}

// HandleStockReservationFailed финализирует сагу через компенсацию:
// резервов нет, поэтому достаточно провалить заказ.
func (m *Machine) HandleStockReservationFailed(ctx context.Context, ev kafka.StockReservationFailed) error {
	state, ok := m.matchState(ev.OrderID, domain.CheckoutStepSubmitted, "stock reservation failed")
	if !ok {
		return nil
	}

	cmd := kafka.OrderFailed{
		OrderID: ev.OrderID,
		Reason:  ev.Reason,
	}
	if err := m.bus.Publish(ctx, kafka.TopicOrderFailed, ev.OrderID, cmd); err != nil {
		m.logger.WithError(err).WithField("order_id", ev.OrderID).Error("failed to publish order failed command")
		return err
	}

	m.appendTimeline(ev.OrderID, "CheckoutFailed", ev.Reason)
	return m.finalize(state, false)
}

// HandlePaymentCompleted завершает сагу успешно: списывает резервы,
// подтверждает заказ и очищает корзину покупателя.
func (m *Machine) HandlePaymentCompleted(ctx context.Context, ev kafka.PaymentCompleted) error {
	state, ok := m.matchState(ev.OrderID, domain.CheckoutStepStockReserved, "payment completed")
	if !ok {
		return nil
	}

	deduct := kafka.DeductStock{
		OrderID:            ev.OrderID,
		ReservationIDsJSON: state.ReservationIDsJSON,
	}
	if err := m.bus.Publish(ctx, kafka.TopicDeductStock, ev.OrderID, deduct); err != nil {
		m.logger.WithError(err).WithField("order_id", ev.OrderID).Error("failed to publish deduct stock command")
		return err
	}

	confirm := kafka.ConfirmOrder{OrderID: ev.OrderID}
	if err := m.bus.Publish(ctx, kafka.TopicConfirmOrder, ev.OrderID, confirm); err != nil {
		m.logger.WithError(err).WithField("order_id", ev.OrderID).Error("failed to publish confirm order command")
		return err
	}

	clear := kafka.ClearCart{BuyerID: state.BuyerID}
	if err := m.bus.Publish(ctx, kafka.TopicClearCart, state.BuyerID, clear); err != nil {
		m.logger.WithError(err).WithField("order_id", ev.OrderID).Error("failed to publish clear cart command")
		return err
	}

	m.appendTimeline(ev.OrderID, "CheckoutCompleted", "")
	return m.finalize(state, true)
}

// HandlePaymentFailed финализирует сагу через компенсацию:
// снимает резервы и проваливает заказ. Корзина остаётся у покупателя.
func (m *Machine) HandlePaymentFailed(ctx context.Context, ev kafka.PaymentFailed) error {
	state, ok := m.matchState(ev.OrderID, domain.CheckoutStepStockReserved, "payment failed")
	if !ok {
		return nil
	}

	release := kafka.ReleaseStockReservations{
		OrderID:            ev.OrderID,
		ReservationIDsJSON: state.ReservationIDsJSON,
	}
	if err := m.bus.Publish(ctx, kafka.TopicReleaseStock, ev.OrderID, release); err != nil {
		m.logger.WithError(err).WithField("order_id", ev.OrderID).Error("failed to publish release reservations command")
		return err
	}

	failed := kafka.OrderFailed{
		OrderID: ev.OrderID,
		Reason:  ev.Reason,
	}
	if err := m.bus.Publish(ctx, kafka.TopicOrderFailed, ev.OrderID, failed); err != nil {
		m.logger.WithError(err).WithField("order_id", ev.OrderID).Error("failed to publish order failed command")
		return err
	}

	m.appendTimeline(ev.OrderID, "CheckoutFailed", ev.Reason)
	return m.finalize(state, false)
}

// matchState возвращает экземпляр саги, если он существует и находится
// в ожидаемом шаге. Иначе событие отбрасывается.
func (m *Machine) matchState(orderID string, expected domain.CheckoutStep, event string) (domain.CheckoutState, bool) {
	state, err := m.checkouts.Get(orderID)
	if err != nil {
		m.logger.WithFields(log.Fields{
			"order_id": orderID,
			"event":    event,
		}).Debug("no checkout instance for event, dropping")
		if m.metrics != nil {
			m.metrics.RecordEventIgnored()
		}
		return domain.CheckoutState{}, false
	}
	if state.Step != expected {
		m.logger.WithFields(log.Fields{
			"order_id": orderID,
			"event":    event,
			"step":     state.Step,
		}).Debug("checkout instance is not in the expected step, dropping event")
		if m.metrics != nil {
			m.metrics.RecordEventIgnored()
		}
		return domain.CheckoutState{}, false
	}
	return state, true
}

// saveState сохраняет состояние саги с retry при version conflict.
func (m *Machine) saveState(state domain.CheckoutState) error {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		state.UpdatedAt = time.Now().UTC()
		if err := m.checkouts.Save(state); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
				m.logger.WithFields(log.Fields{
					"order_id": state.OrderID,
					"attempt":  attempt + 1,
					"version":  state.Version,
				}).Warn("checkout version conflict detected, retrying")

				fresh, loadErr := m.checkouts.Get(state.OrderID)
				if loadErr != nil {
					m.logger.WithError(loadErr).WithField("order_id", state.OrderID).Error("failed to reload checkout after conflict")
					return loadErr
				}
				// Сохраняем свой переход поверх свежей версии.
				fresh.Step = state.Step
				fresh.ReservationIDsJSON = state.ReservationIDsJSON
				fresh.FailureReason = state.FailureReason
				state = fresh

				time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
				continue
			}

			m.logger.WithError(err).WithFields(log.Fields{
				"order_id": state.OrderID,
				"attempt":  attempt + 1,
			}).Error("failed to persist checkout state")
			return err
		}
		return nil
	}

	return domain.ErrVersionConflict
}

// finalize удаляет экземпляр саги. После удаления повторно доставленные
// терминальные события не находят экземпляр и отбрасываются.
func (m *Machine) finalize(state domain.CheckoutState, completed bool) error {
	if err := m.checkouts.Delete(state.OrderID); err != nil {
		m.logger.WithError(err).WithField("order_id", state.OrderID).Error("failed to delete finalized checkout")
		return err
	}

	duration := time.Since(state.SubmittedAt)
	if m.metrics != nil {
		if completed {
			m.metrics.RecordCheckoutCompleted(duration)
		} else {
			m.metrics.RecordCheckoutCompensated(duration)
		}
	}

	m.logger.WithFields(log.Fields{
		"order_id":  state.OrderID,
		"completed": completed,
		"duration":  duration,
	}).Info("checkout saga finalized")
	return nil
}

func (m *Machine) appendTimeline(orderID, eventType, reason string) {
	if m.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := m.timeline.Append(event); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	} else if m.metrics != nil {
		m.metrics.RecordTimelineEvent()
	}
}
