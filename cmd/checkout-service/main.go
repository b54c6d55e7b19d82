package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/microcommerce/internal/app"
)

const (
	envOpsAddr             = "COMMERCE_OPS_ADDR"
	envStorageDriver       = "COMMERCE_STORAGE_DRIVER"
	envPostgresDSN         = "COMMERCE_POSTGRES_DSN"
	envPostgresAutoMigrate = "COMMERCE_POSTGRES_AUTO_MIGRATE"
	envRedisAddr           = "COMMERCE_REDIS_ADDR"
	envKafkaBrokers        = "COMMERCE_KAFKA_BROKERS"
	envConsumerGroupPrefix = "COMMERCE_CONSUMER_GROUP_PREFIX"
	envConsumerMaxRetries  = "COMMERCE_CONSUMER_MAX_RETRIES"
	envOutboxPollInterval  = "COMMERCE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "COMMERCE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "COMMERCE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "COMMERCE_OUTBOX_RETRY_DELAY"
	envBreakerMaxFailures  = "COMMERCE_BREAKER_MAX_FAILURES"
	envBreakerResetTimeout = "COMMERCE_BREAKER_RESET_TIMEOUT"
)

// envLookup абстрагирует доступ к окружению для тестируемости.
type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfigFromEnv формирует конфигурацию из окружения.
// Некорректные значения не прерывают запуск: переменная игнорируется,
// причина возвращается в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}

	if v, ok := lookup(envOpsAddr); ok && strings.TrimSpace(v) != "" {
		cfg.OpsAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(envPostgresDSN); ok {
		cfg.PostgresDSN = strings.TrimSpace(v)
	}
	if v, ok := lookup(envPostgresAutoMigrate); ok {
		parsed, err := parseBool(v)
		if err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	if v, ok := lookup(envRedisAddr); ok {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = strings.TrimSpace(v)
	}
	if v, ok := lookup(envConsumerGroupPrefix); ok && strings.TrimSpace(v) != "" {
		cfg.ConsumerGroupPrefix = strings.TrimSpace(v)
	}
	if v, ok := lookup(envConsumerMaxRetries); ok {
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(envConsumerMaxRetries, v, err)
		} else {
			cfg.ConsumerMaxRetries = parsed
		}
	}
	if v, ok := lookup(envOutboxPollInterval); ok {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warn(envOutboxPollInterval, v, err)
		} else {
			cfg.OutboxPollInterval = parsed
		}
	}
	if v, ok := lookup(envOutboxBatchSize); ok {
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(envOutboxBatchSize, v, err)
		} else {
			cfg.OutboxBatchSize = parsed
		}
	}
	if v, ok := lookup(envOutboxMaxAttempts); ok {
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(envOutboxMaxAttempts, v, err)
		} else {
			cfg.OutboxMaxAttempts = parsed
		}
	}
	if v, ok := lookup(envOutboxRetryDelay); ok {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d >= 0 }, "must be >= 0")
		if err != nil {
			warn(envOutboxRetryDelay, v, err)
		} else {
			cfg.OutboxRetryDelay = parsed
		}
	}
	if v, ok := lookup(envBreakerMaxFailures); ok {
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(envBreakerMaxFailures, v, err)
		} else {
			cfg.BreakerMaxFailures = parsed
		}
	}
	if v, ok := lookup(envBreakerResetTimeout); ok {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warn(envBreakerResetTimeout, v, err)
		} else {
			cfg.BreakerResetTimeout = parsed
		}
	}

	return cfg, warnings
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value")
	}
}

func parseInt(value string, valid func(int) bool, rule string) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid integer value")
	}
	if !valid(parsed) {
		return 0, errors.New(rule)
	}
	return parsed, nil
}

func parseDuration(value string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value")
	}
	if !valid(parsed) {
		return 0, errors.New(rule)
	}
	return parsed, nil
}

func main() {
	setupLogger()
	_ = godotenv.Load()

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"ops_addr":       cfg.OpsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_brokers":  cfg.KafkaBrokers,
	}).Info("starting checkout service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("checkout service exited with error")
	}

	log.Info("checkout service stopped")
}
