package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultReservationTTL — срок жизни резерва до истечения.
	// Процесс, снимающий истёкшие резервы, намеренно не реализован:
	// истёкший резерв просто перестаёт учитываться в доступном остатке.
	DefaultReservationTTL = 15 * time.Minute
	// LowStockThreshold — порог, ниже которого остаток считается низким.
	LowStockThreshold int32 = 10
)

// StockReservation — временное удержание остатка под оформляемый заказ.
// Либо конвертируется в постоянное списание, либо возвращается в доступный пул.
type StockReservation struct {
	ID        string
	Quantity  int32
	CreatedAt time.Time
	ExpiresAt time.Time
}

// StockAdjustment — запись аудита об изменении остатка.
type StockAdjustment struct {
	ID            string
	Delta         int32
	Reason        string
	Actor         string
	QuantityAfter int32
	CreatedAt     time.Time
}

// StockItem — складской агрегат, одна запись на товар. Единственный владелец
// остатка и активных резервов: только он выдаёт, снимает и списывает резервы.
type StockItem struct {
	ID             string
	ProductID      string
	QuantityOnHand int32
	Reservations   []StockReservation
	Adjustments    []StockAdjustment
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewStockItem создаёт складскую запись для товара с нулевым остатком.
// Доменное событие при создании не поднимается: записи создаются
// инфраструктурой, а не действием пользователя.
func NewStockItem(productID string) StockItem {
	now := time.Now().UTC()
	return StockItem{
		ID:        uuid.NewString(),
		ProductID: productID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AvailableQuantity возвращает доступный остаток на текущий момент.
func (s *StockItem) AvailableQuantity() int32 {
	return s.AvailableQuantityAt(time.Now().UTC())
}

// AvailableQuantityAt возвращает остаток за вычетом активных (неистёкших)
// резервов на указанный момент времени.
func (s *StockItem) AvailableQuantityAt(now time.Time) int32 {
	reserved := int32(0)
	for _, r := range s.Reservations {
		if r.ExpiresAt.After(now) {
			reserved += r.Quantity
		}
	}
	return s.QuantityOnHand - reserved
}

// Reserve удерживает quantity единиц под заказ и возвращает ID резерва.
// Если доступного остатка меньше запрошенного — *InsufficientStockError,
// состояние агрегата при этом не меняется.
func (s *StockItem) Reserve(quantity int32) (string, error) {
	if quantity <= 0 {
		return "", ErrReservationQuantityInvalid
	}

	now := time.Now().UTC()
	if available := s.AvailableQuantityAt(now); available < quantity {
		return "", &InsufficientStockError{
			ProductID: s.ProductID,
			Available: available,
			Requested: quantity,
		}
	}

	reservation := StockReservation{
		ID:        uuid.NewString(),
		Quantity:  quantity,
		CreatedAt: now,
		ExpiresAt: now.Add(DefaultReservationTTL),
	}
	s.Reservations = append(s.Reservations, reservation)
	s.UpdatedAt = now
	return reservation.ID, nil
}

// ReleaseReservation снимает резерв, возвращая количество в доступный пул.
// Идемпотентен: неизвестный или уже снятый резерв — тихий no-op.
func (s *StockItem) ReleaseReservation(reservationID string) {
	for i, r := range s.Reservations {
		if r.ID == reservationID {
			s.Reservations = append(s.Reservations[:i], s.Reservations[i+1:]...)
			s.UpdatedAt = time.Now().UTC()
			return
		}
	}
}

// ReservationQuantity возвращает количество по резерву, если он ещё существует.
func (s *StockItem) ReservationQuantity(reservationID string) (int32, bool) {
	for _, r := range s.Reservations {
		if r.ID == reservationID {
			return r.Quantity, true
		}
	}
	return 0, false
}

// AdjustStock перманентно меняет остаток на delta (отрицательное — списание,
// положительное — пополнение) и пишет запись аудита. Возвращает новый остаток.
// Списание, уводящее остаток в минус, запрещено.
func (s *StockItem) AdjustStock(delta int32, reason, actor string) (int32, error) {
	newQuantity := s.QuantityOnHand + delta
	if newQuantity < 0 {
		return s.QuantityOnHand, ErrStockUnderflow
	}

	now := time.Now().UTC()
	s.QuantityOnHand = newQuantity
	s.Adjustments = append(s.Adjustments, StockAdjustment{
		ID:            uuid.NewString(),
		Delta:         delta,
		Reason:        reason,
		Actor:         actor,
		QuantityAfter: newQuantity,
		CreatedAt:     now,
	})
	s.UpdatedAt = now
	return newQuantity, nil
}

// IsLowStock сообщает, что остаток на руках не выше порога LowStockThreshold.
func (s *StockItem) IsLowStock() bool {
	return s.QuantityOnHand <= LowStockThreshold
}
