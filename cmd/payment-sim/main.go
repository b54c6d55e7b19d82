package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/microcommerce/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	defaultReason  = "Payment declined (simulated)"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

type config struct {
	orderID string
	outcome string
	reason  string
	dsn     string
	brokers []string
}

// paymentBus — минимальная поверхность producer, нужная симулятору.
type paymentBus interface {
	Publish(ctx context.Context, topic string, key string, msg any) error
	Close() error
}

var newSimDependencies = func(ctx context.Context, cfg config) (domain.OrderRepository, paymentBus, func(), error) {
	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres store: %w", err)
	}

	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	cleanup := func() {
		_ = producer.Close()
		_ = store.Close()
	}
	return postgres.NewOrderRepository(store), producer, cleanup, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fail("payment simulation failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&cfg.orderID, "order-id", "", "order to settle (fallback: COMMERCE_PAYMENT_ORDER_ID)")
	flag.StringVar(&cfg.outcome, "outcome", outcomeSuccess, "payment outcome: success|failure (fallback: COMMERCE_PAYMENT_OUTCOME)")
	flag.StringVar(&cfg.reason, "reason", defaultReason, "failure reason for outcome=failure")
	flag.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: COMMERCE_POSTGRES_DSN)")
	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: COMMERCE_KAFKA_BROKERS)")
	flag.Parse()

	if strings.TrimSpace(cfg.orderID) == "" {
		cfg.orderID = strings.TrimSpace(os.Getenv("COMMERCE_PAYMENT_ORDER_ID"))
	}
	if v := strings.TrimSpace(os.Getenv("COMMERCE_PAYMENT_OUTCOME")); v != "" && cfg.outcome == outcomeSuccess {
		cfg.outcome = v
	}
	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = strings.TrimSpace(os.Getenv("COMMERCE_POSTGRES_DSN"))
	}
	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("COMMERCE_KAFKA_BROKERS")
	}

	cfg.orderID = strings.TrimSpace(cfg.orderID)
	cfg.outcome = strings.ToLower(strings.TrimSpace(cfg.outcome))
	cfg.reason = strings.TrimSpace(cfg.reason)
	cfg.brokers = parseBrokers(brokersRaw)

	if cfg.orderID == "" {
		return config{}, fmt.Errorf("order id is required (-order-id or COMMERCE_PAYMENT_ORDER_ID)")
	}
	if cfg.outcome != outcomeSuccess && cfg.outcome != outcomeFailure {
		return config{}, fmt.Errorf("unsupported outcome: %s (use success|failure)", cfg.outcome)
	}
	if cfg.outcome == outcomeFailure && cfg.reason == "" {
		return config{}, fmt.Errorf("failure reason is required for outcome=failure")
	}
	if cfg.dsn == "" {
		return config{}, fmt.Errorf("postgres dsn is required (-dsn or COMMERCE_POSTGRES_DSN)")
	}
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or COMMERCE_KAFKA_BROKERS)")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	orders, bus, cleanup, err := newSimDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return settle(ctx, cfg, orders, bus)
}

// settle применяет исход оплаты к заказу и публикует событие платёжной границы.
// Повторный запуск по уже рассчитанному заказу не меняет состояние, но событие
// публикуется снова: подписчики обязаны быть идемпотентными.
func settle(ctx context.Context, cfg config, orders domain.OrderRepository, bus paymentBus) error {
	order, err := orders.Get(cfg.orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", cfg.orderID, err)
	}

	logger := log.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"outcome":  cfg.outcome,
	})

	switch cfg.outcome {
	case outcomeSuccess:
		if order.Status == domain.OrderStatusPaid {
			logger.Info("order already paid, republishing event")
		} else {
			if err := order.MarkAsPaid(); err != nil {
				return fmt.Errorf("mark order %s as paid: %w", order.ID, err)
			}
			if err := orders.Save(order); err != nil {
				return fmt.Errorf("save order %s: %w", order.ID, err)
			}
			logger.Info("order marked as paid")
		}
		event := kafka.PaymentCompleted{OrderID: order.ID}
		if err := bus.Publish(ctx, kafka.TopicCheckoutEvents, order.ID, event); err != nil {
			return fmt.Errorf("publish payment completed: %w", err)
		}
	case outcomeFailure:
		if order.Status == domain.OrderStatusFailed {
			logger.Info("order already failed, republishing event")
		} else {
			if err := order.MarkAsFailed(cfg.reason); err != nil {
				return fmt.Errorf("mark order %s as failed: %w", order.ID, err)
			}
			if err := orders.Save(order); err != nil {
				return fmt.Errorf("save order %s: %w", order.ID, err)
			}
			logger.WithField("reason", cfg.reason).Info("order marked as failed")
		}
		event := kafka.PaymentFailed{OrderID: order.ID, Reason: cfg.reason}
		if err := bus.Publish(ctx, kafka.TopicCheckoutEvents, order.ID, event); err != nil {
			return fmt.Errorf("publish payment failed: %w", err)
		}
	default:
		return errors.New("unsupported outcome")
	}

	logger.Info("payment simulation finished")
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
