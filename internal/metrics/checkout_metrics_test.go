package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCheckoutMetrics(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("newCheckoutMetricsWithRegisterer should not return nil")
	}

	if metrics.checkoutStarted == nil {
		t.Error("checkoutStarted counter should not be nil")
	}

	if metrics.checkoutCompleted == nil {
		t.Error("checkoutCompleted counter should not be nil")
	}

	if metrics.checkoutCompensated == nil {
		t.Error("checkoutCompensated counter should not be nil")
	}

	if metrics.eventsIgnored == nil {
		t.Error("eventsIgnored counter should not be nil")
	}

	if metrics.checkoutDuration == nil {
		t.Error("checkoutDuration histogram should not be nil")
	}

	if metrics.timelineEvents == nil {
		t.Error("timelineEvents counter should not be nil")
	}

	if metrics.outboxEvents == nil {
		t.Error("outboxEvents counter should not be nil")
	}

	if metrics.activeCheckouts == nil {
		t.Error("activeCheckouts gauge should not be nil")
	}
}

func TestNewCheckoutMetricsReregister(t *testing.T) {
	reg := prometheus.NewRegistry()

	// Повторная инициализация на одном registry переиспользует коллекторы.
	first := newCheckoutMetricsWithRegisterer(reg)
	second := newCheckoutMetricsWithRegisterer(reg)

	first.RecordCheckoutStarted()
	second.RecordCheckoutStarted()

	metric := &dto.Metric{}
	if err := first.checkoutStarted.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordCheckoutStarted(t *testing.T) {
	reg := prometheus.NewRegistry()

	checkoutStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_checkout_started_total",
		Help: "Test counter",
	})
	activeCheckouts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_active_checkouts",
		Help: "Test gauge",
	})

	reg.MustRegister(checkoutStarted, activeCheckouts)

	metrics := &CheckoutMetrics{
		checkoutStarted: checkoutStarted,
		activeCheckouts: activeCheckouts,
	}

	metrics.RecordCheckoutStarted()

	metric := &dto.Metric{}
	if err := checkoutStarted.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", metric.Counter.GetValue())
	}

	gaugeMetric := &dto.Metric{}
	if err := activeCheckouts.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 1.0 {
		t.Errorf("expected active checkouts 1.0, got %f", gaugeMetric.Gauge.GetValue())
	}
}

func TestRecordCheckoutCompleted(t *testing.T) {
	reg := prometheus.NewRegistry()

	checkoutCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_checkout_completed_total",
		Help: "Test counter",
	})
	activeCheckouts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_active_checkouts_complete",
		Help: "Test gauge",
	})
	checkoutDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_checkout_duration_seconds",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(checkoutCompleted, activeCheckouts, checkoutDuration)

	metrics := &CheckoutMetrics{
		checkoutCompleted: checkoutCompleted,
		activeCheckouts:   activeCheckouts,
		checkoutDuration:  checkoutDuration,
	}

	activeCheckouts.Set(3)
	metrics.RecordCheckoutCompleted(250 * time.Millisecond)

	metric := &dto.Metric{}
	if err := checkoutCompleted.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", metric.Counter.GetValue())
	}

	gaugeMetric := &dto.Metric{}
	if err := activeCheckouts.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 2.0 {
		t.Errorf("expected active checkouts 2.0, got %f", gaugeMetric.Gauge.GetValue())
	}

	histMetric := &dto.Metric{}
	if err := checkoutDuration.Write(histMetric); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}

	if histMetric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 duration sample, got %d", histMetric.Histogram.GetSampleCount())
	}
}

func TestRecordCheckoutCompensated(t *testing.T) {
	reg := prometheus.NewRegistry()

	checkoutCompensated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_checkout_compensated_total",
		Help: "Test counter",
	})
	activeCheckouts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_active_checkouts_compensate",
		Help: "Test gauge",
	})
	checkoutDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_checkout_duration_compensate_seconds",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(checkoutCompensated, activeCheckouts, checkoutDuration)

	metrics := &CheckoutMetrics{
		checkoutCompensated: checkoutCompensated,
		activeCheckouts:     activeCheckouts,
		checkoutDuration:    checkoutDuration,
	}

	activeCheckouts.Set(1)
	metrics.RecordCheckoutCompensated(100 * time.Millisecond)

	metric := &dto.Metric{}
	if err := checkoutCompensated.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", metric.Counter.GetValue())
	}

	gaugeMetric := &dto.Metric{}
	if err := activeCheckouts.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 0.0 {
		t.Errorf("expected active checkouts 0.0, got %f", gaugeMetric.Gauge.GetValue())
	}
}

func TestRecordEventIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()

	eventsIgnored := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_checkout_events_ignored_total",
		Help: "Test counter",
	})

	reg.MustRegister(eventsIgnored)

	metrics := &CheckoutMetrics{
		eventsIgnored: eventsIgnored,
	}

	metrics.RecordEventIgnored()
	metrics.RecordEventIgnored()
	metrics.RecordEventIgnored()

	metric := &dto.Metric{}
	if err := eventsIgnored.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 3.0 {
		t.Errorf("expected counter value 3.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordTimelineAndOutboxEvents(t *testing.T) {
	reg := prometheus.NewRegistry()

	timelineEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_timeline_events_total",
		Help: "Test counter",
	})
	outboxEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_outbox_events_total",
		Help: "Test counter",
	})

	reg.MustRegister(timelineEvents, outboxEvents)

	metrics := &CheckoutMetrics{
		timelineEvents: timelineEvents,
		outboxEvents:   outboxEvents,
	}

	metrics.RecordTimelineEvent()
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()

	timelineMetric := &dto.Metric{}
	if err := timelineEvents.Write(timelineMetric); err != nil {
		t.Fatalf("failed to write timeline metric: %v", err)
	}

	if timelineMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected timeline counter 2.0, got %f", timelineMetric.Counter.GetValue())
	}

	outboxMetric := &dto.Metric{}
	if err := outboxEvents.Write(outboxMetric); err != nil {
		t.Fatalf("failed to write outbox metric: %v", err)
	}

	if outboxMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected outbox counter 1.0, got %f", outboxMetric.Counter.GetValue())
	}
}

func TestCheckoutLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newCheckoutMetricsWithRegisterer(reg)

	metrics.RecordCheckoutStarted() // active: 1
	metrics.RecordCheckoutStarted() // active: 2
	metrics.RecordCheckoutStarted() // active: 3

	metrics.RecordCheckoutCompleted(time.Second)   // active: 2
	metrics.RecordCheckoutCompensated(time.Second) // active: 1

	gaugeMetric := &dto.Metric{}
	if err := metrics.activeCheckouts.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 1.0 {
		t.Errorf("expected 1 active checkout, got %f", gaugeMetric.Gauge.GetValue())
	}

	histMetric := &dto.Metric{}
	if err := metrics.checkoutDuration.Write(histMetric); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}

	if histMetric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 duration samples, got %d", histMetric.Histogram.GetSampleCount())
	}
}
