package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
// Сообщение заворачивается в общий конверт, поэтому потребители читают
// outbox-события так же, как и прямые публикации.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	env := Envelope{
		Type:       MessageType(event.EventType),
		OccurredAt: time.Now().UTC(),
		Payload:    json.RawMessage(event.Payload),
	}

	return p.producer.publishRaw(p.topic, key, env)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
