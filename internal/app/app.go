package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/health"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/breaker"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/membus"
	"github.com/vladislavdragonenkov/microcommerce/internal/service/outbox"
	"github.com/vladislavdragonenkov/microcommerce/internal/version"
)

// Run собирает и запускает checkout-сервис: хранилища, шину сообщений,
// сагу с обработчиками, outbox worker и служебный HTTP-сервер.
// Блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		return fmt.Errorf("init kafka producer: %w", err)
	}
	defer closeKafka(producer, logger)

	var (
		bus    domain.MessageBus
		inproc *membus.Bus
	)
	if producer != nil {
		cb := breaker.NewCircuitBreaker(
			cfg.BreakerMaxFailures,
			cfg.BreakerResetTimeout,
			logger.WithField("component", "kafka-breaker"),
		)
		bus = breaker.Wrap(producer, cb)
	} else {
		logger.Info("kafka brokers are not configured, using in-process bus")
		inproc = membus.New()
		bus = inproc
	}

	routes := buildRoutes(deps, bus, logger)

	var consumers []*kafka.Consumer
	if producer != nil {
		brokerList := strings.Split(cfg.KafkaBrokers, ",")
		for topic, handler := range routes {
			groupID := cfg.ConsumerGroupPrefix + "." + topic
			consumer, err := kafka.NewEnvelopeConsumer(
				brokerList, groupID, []string{topic}, handler, producer, cfg.ConsumerMaxRetries,
			)
			if err != nil {
				return fmt.Errorf("create consumer for %s: %w", topic, err)
			}
			if err := consumer.Start(ctx); err != nil {
				return fmt.Errorf("start consumer for %s: %w", topic, err)
			}
			consumers = append(consumers, consumer)
		}
	} else {
		for topic, handler := range routes {
			inproc.Subscribe(topic, membus.Handler(handler))
		}
	}

	var outboxPublisher domain.OutboxPublisher
	if producer != nil {
		outboxPublisher = kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents)
	} else {
		outboxPublisher = &busOutboxPublisher{bus: inproc, topic: kafka.TopicOrderEvents}
	}

	worker := outbox.NewWorker(
		deps.Outbox,
		outboxPublisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(dlqPublisherFor(producer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	v, _, _ := version.Info()
	healthHandler := health.NewHandler(v)
	registerHealthChecks(healthHandler, deps)

	opsSrv := startOpsServer(ctx, cfg.OpsAddr, newOpsRouter(healthHandler), logger)

	logger.Info("checkout service started")
	<-ctx.Done()
	logger.Info("shutdown signal received, stopping checkout service")

	for _, consumer := range consumers {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	wg.Wait()
	shutdownHTTP(opsSrv, logger)

	return ctx.Err()
}

// registerHealthChecks подключает проверки внешних зависимостей.
func registerHealthChecks(handler *health.Handler, deps *Dependencies) {
	if store := deps.store; store != nil {
		handler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(ctx)
		}))
	}
	if client := deps.redisClient; client != nil {
		handler.RegisterChecker("redis", health.NewSimpleChecker("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(ctx).Err()
		}))
	}
}

// busOutboxPublisher доставляет outbox-сообщения через внутрипроцессную шину,
// упаковывая их в тот же конверт, что и Kafka-публикация.
type busOutboxPublisher struct {
	bus   *membus.Bus
	topic string
}

func (p *busOutboxPublisher) Publish(event domain.OutboxMessage) error {
	env := kafka.Envelope{
		Type:       kafka.MessageType(event.EventType),
		OccurredAt: time.Now().UTC(),
		Payload:    event.Payload,
	}
	return p.bus.Deliver(context.Background(), p.topic, event.AggregateID, env)
}

// dlqPublisherFor возвращает DLQ publisher при наличии Kafka producer.
// Без брокера DLQ не имеет смысла: nil отключает его в outbox worker.
func dlqPublisherFor(producer *kafka.Producer) domain.OutboxPublisher {
	if producer == nil {
		return nil
	}
	return kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
}

var _ domain.OutboxPublisher = (*busOutboxPublisher)(nil)
