package app

import "time"

// Config описывает настройки запуска checkout-сервиса.
type Config struct {
	// OpsAddr — адрес HTTP-сервера метрик и health-проверок.
	OpsAddr string

	// StorageDriver выбирает хранилище агрегатов: memory | postgres.
	StorageDriver string
	// PostgresDSN обязателен при StorageDriver=postgres.
	PostgresDSN string
	// PostgresAutoMigrate применяет embedded-миграции при старте.
	PostgresAutoMigrate bool

	// RedisAddr — адрес Redis для корзин. Пустой — корзины в памяти.
	RedisAddr string

	// KafkaBrokers — список брокеров через запятую. Пустой — сообщения
	// идут через внутрипроцессную шину (режим без брокера).
	KafkaBrokers string
	// ConsumerGroupPrefix — префикс consumer group per topic.
	ConsumerGroupPrefix string
	// ConsumerMaxRetries — число повторов обработки до отправки в DLQ.
	ConsumerMaxRetries int

	// Параметры outbox worker.
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	// Circuit breaker вокруг публикации в брокер.
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без брокера.
func DefaultConfig() Config {
	return Config{
		OpsAddr:             ":9090",
		StorageDriver:       "memory",
		PostgresAutoMigrate: true,
		ConsumerGroupPrefix: "checkout-service",
		ConsumerMaxRetries:  3,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		BreakerMaxFailures:  5,
		BreakerResetTimeout: 10 * time.Second,
	}
}
