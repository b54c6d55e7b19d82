package memory

import (
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

// timelineRepositoryInMemory хранит таймлайн заказов в памяти.
// Используется в dev-режиме и в тестах.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{events: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет событие, сохраняя хронологический порядок.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeline := append(r.events[event.OrderID], event)
	slices.SortStableFunc(timeline, func(a, b domain.TimelineEvent) int {
		return a.Occurred.Compare(b.Occurred)
	})
	r.events[event.OrderID] = timeline

	return nil
}

// List возвращает копию таймлайна заказа от старых событий к новым.
func (r *timelineRepositoryInMemory) List(orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.events[orderID]), nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
