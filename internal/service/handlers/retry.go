// Package handlers содержит обработчики команд и событий checkout-саги.
// Все обработчики идемпотентны: повторная доставка при at-least-once
// определяется по статусу агрегата, а не по дедупликации транспорта.
package handlers

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

const (
	saveMaxRetries = 3
	saveBaseDelay  = 10 * time.Millisecond
)

// updateOrder применяет mutate к свежей копии заказа и сохраняет его,
// повторяя попытку при version conflict с exponential backoff.
// mutate возвращает false, чтобы прекратить без сохранения (no-op).
func updateOrder(orders domain.OrderRepository, logger *log.Entry, orderID string, mutate func(*domain.Order) (bool, error)) error {
	for attempt := 0; attempt < saveMaxRetries; attempt++ {
		order, err := orders.Get(orderID)
		if err != nil {
			return err
		}

		proceed, err := mutate(&order)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}

		err = orders.Save(order)
		if err == nil {
			return nil
		}
		if !domain.IsVersionConflict(err) || attempt == saveMaxRetries-1 {
			return err
		}

		logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt + 1,
		}).Warn("order version conflict detected, retrying")
		time.Sleep(saveBaseDelay * time.Duration(1<<uint(attempt)))
	}
	return domain.ErrVersionConflict
}

// updateStock применяет mutate к свежей складской записи и сохраняет её,
// повторяя попытку при version conflict.
func updateStock(stock domain.StockRepository, logger *log.Entry, productID string, mutate func(*domain.StockItem) (bool, error)) error {
	for attempt := 0; attempt < saveMaxRetries; attempt++ {
		item, err := stock.GetByProduct(productID)
		if err != nil {
			return err
		}

		proceed, err := mutate(&item)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}

		err = stock.Save(item)
		if err == nil {
			return nil
		}
		if !domain.IsVersionConflict(err) || attempt == saveMaxRetries-1 {
			return err
		}

		logger.WithFields(log.Fields{
			"product_id": productID,
			"attempt":    attempt + 1,
		}).Warn("stock version conflict detected, retrying")
		time.Sleep(saveBaseDelay * time.Duration(1<<uint(attempt)))
	}
	return domain.ErrVersionConflict
}
