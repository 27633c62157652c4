// Package metrics holds the booking service's Prometheus collectors. A nil
// *BookingMetrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type BookingMetrics struct {
	bookingOutcomes  *prometheus.CounterVec
	reclaimed        prometheus.Counter
	reclaimRuns      *prometheus.CounterVec
	outboxPublished  prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	slotComputations prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "counselbook",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking protocol operations by step and outcome",
		}, []string{"operation", "outcome"}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "counselbook",
			Subsystem: "reclaim",
			Name:      "reservations_deleted_total",
			Help:      "Expired slot reservations deleted by the reclaimer",
		}),
		reclaimRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "counselbook",
			Subsystem: "reclaim",
			Name:      "runs_total",
			Help:      "Reclaimer runs by result",
		}, []string{"result"}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "counselbook",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events published to Kafka",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "counselbook",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "counselbook",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		slotComputations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "counselbook",
			Subsystem: "availability",
			Name:      "compute_duration_seconds",
			Help:      "Time spent computing available slots",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingOutcomes,
		m.reclaimed,
		m.reclaimRuns,
		m.outboxPublished,
		m.httpRequests,
		m.httpLatency,
		m.slotComputations,
	)
	return m
}

// ObserveBooking counts one initiate, confirm or cancel call. outcome is
// "ok" or a short error class such as "slot_unavailable".
func (m *BookingMetrics) ObserveBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingOutcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveReclaim(deleted int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reclaimRuns.WithLabelValues("error").Inc()
		return
	}
	m.reclaimRuns.WithLabelValues("ok").Inc()
	m.reclaimed.Add(float64(deleted))
}

func (m *BookingMetrics) ObserveOutboxPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxPublished.Add(float64(n))
}

func (m *BookingMetrics) ObserveSlotComputation(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.slotComputations.Observe(elapsed.Seconds())
}

// ObserveHTTP matches httpx.RequestObserver.
func (m *BookingMetrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
