package app

import (
	"testing"

	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/microcommerce/internal/messaging/membus"
)

func TestBuildRoutes_CoversAllTopics(t *testing.T) {
	deps := NewDependencies(nil)
	routes := buildRoutes(deps, membus.New(), deps.Logger)

	expected := []string{
		kafka.TopicOrderEvents,
		kafka.TopicCheckoutEvents,
		kafka.TopicReserveStock,
		kafka.TopicDeductStock,
		kafka.TopicReleaseStock,
		kafka.TopicConfirmOrder,
		kafka.TopicOrderFailed,
		kafka.TopicClearCart,
	}

	if len(routes) != len(expected) {
		t.Fatalf("expected %d routes, got %d", len(expected), len(routes))
	}
	for _, topic := range expected {
		if routes[topic] == nil {
			t.Fatalf("missing handler for topic %s", topic)
		}
	}
}
