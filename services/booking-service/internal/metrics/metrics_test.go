package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("initiate", "ok")
	m.ObserveBooking("initiate", "ok")
	m.ObserveBooking("confirm", "payment_not_complete")
	m.ObserveReclaim(3, nil)
	m.ObserveReclaim(0, errors.New("db down"))
	m.ObserveOutboxPublished(5)
	m.ObserveOutboxPublished(0)
	m.ObserveHTTP("GET", "GET /api/v1/slots", 200, 20*time.Millisecond)
	m.ObserveSlotComputation(time.Millisecond)

	if got := testutil.ToFloat64(m.bookingOutcomes.WithLabelValues("initiate", "ok")); got != 2 {
		t.Fatalf("expected 2 initiate ok, got %v", got)
	}
	if got := testutil.ToFloat64(m.reclaimed); got != 3 {
		t.Fatalf("expected 3 reclaimed, got %v", got)
	}
	if got := testutil.ToFloat64(m.reclaimRuns.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.outboxPublished); got != 5 {
		t.Fatalf("expected 5 published, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "GET /api/v1/slots", "200")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("confirm", "ok")
	m.ObserveReclaim(1, nil)
	m.ObserveOutboxPublished(1)
	m.ObserveHTTP("GET", "unmatched", 404, time.Millisecond)
	m.ObserveSlotComputation(time.Millisecond)
}
