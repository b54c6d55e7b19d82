package app

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNewDependencies_MemoryDefaults(t *testing.T) {
	deps := NewDependencies(nil)

	if deps.Orders == nil || deps.Stock == nil || deps.Checkouts == nil {
		t.Fatal("expected aggregate repositories to be initialized")
	}
	if deps.Carts == nil || deps.Outbox == nil || deps.Timeline == nil {
		t.Fatal("expected cart, outbox and timeline stores to be initialized")
	}
	if deps.Logger == nil {
		t.Fatal("expected logger to be initialized")
	}

	// In-memory зависимости закрываются без внешних подключений.
	deps.Close()
}

func TestInitDependencies_MemoryDriver(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, driver := range []string{"", "memory", " MEMORY "} {
		cfg := DefaultConfig()
		cfg.StorageDriver = driver

		deps, err := initDependencies(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("init dependencies for driver %q: %v", driver, err)
		}
		if deps.store != nil {
			t.Fatalf("expected no postgres store for driver %q", driver)
		}
		deps.Close()
	}
}

func TestInitDependencies_PostgresRequiresDSN(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.StorageDriver = "postgres"
	cfg.PostgresDSN = "   "

	if _, err := initDependencies(ctx, cfg, nil); err == nil {
		t.Fatal("expected error for postgres driver without DSN")
	}
}

func TestInitDependencies_UnsupportedDriver(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.StorageDriver = "cassandra"

	_, err := initDependencies(ctx, cfg, nil)
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
	if !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("unexpected error: %v", err)
	}
}
