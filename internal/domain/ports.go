package domain

import (
	"context"
	"time"
)

// MessageBus публикует сообщения в транспорт с доставкой at-least-once.
// Ключ определяет партиционирование: все сообщения одной саги идут
// с ключом OrderID и сохраняют порядок внутри топика.
type MessageBus interface {
	Publish(ctx context.Context, topic, key string, msg any) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
