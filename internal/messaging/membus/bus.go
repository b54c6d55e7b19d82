// Package membus реализует синхронную in-process шину сообщений.
// Используется в тестах и при запуске сервиса без Kafka-брокера:
// контракты и конверты те же, что и у Kafka-транспорта.
package membus

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
)

// Handler обрабатывает конверт сообщения из шины.
type Handler func(ctx context.Context, env kafka.Envelope) error

// Bus доставляет сообщения подписчикам синхронно, в порядке публикации.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	logger      *log.Entry
}

var _ domain.MessageBus = (*Bus)(nil)

// New создаёт пустую шину.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
		logger:      log.WithField("component", "membus"),
	}
}

// Subscribe регистрирует обработчик топика.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish упаковывает контракт в конверт и вызывает всех подписчиков топика.
// Ошибка первого провалившегося обработчика возвращается публикующему,
// оставшиеся подписчики при этом не вызываются.
func (b *Bus) Publish(ctx context.Context, topic string, key string, msg any) error {
	env, err := kafka.NewEnvelope(msg)
	if err != nil {
		return err
	}
	return b.Deliver(ctx, topic, key, env)
}

// Deliver доставляет уже собранный конверт подписчикам топика.
func (b *Bus) Deliver(ctx context.Context, topic string, key string, env kafka.Envelope) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers[topic]))
	copy(handlers, b.subscribers[topic])
	b.mu.RUnlock()

	b.logger.WithFields(log.Fields{
		"topic": topic,
		"key":   key,
		"type":  env.Type,
	}).Debug("delivering message")

	for _, handler := range handlers {
		if err := handler(ctx, env); err != nil {
			return fmt.Errorf("handle %s on %s: %w", env.Type, topic, err)
		}
	}
	return nil
}
