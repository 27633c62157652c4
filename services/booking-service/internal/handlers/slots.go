package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/metrics"
)

type SlotsHandler struct {
	engine  *availability.Engine
	logger  *slog.Logger
	metrics *metrics.BookingMetrics
}

func NewSlotsHandler(engine *availability.Engine, logger *slog.Logger, m *metrics.BookingMetrics) *SlotsHandler {
	return &SlotsHandler{engine: engine, logger: logger, metrics: m}
}

type slotItem struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type slotsResponse struct {
	ProviderID string     `json:"provider_id"`
	Slots      []slotItem `json:"slots"`
}

// List returns bookable slots for ?provider_id=&days=&duration_minutes=.
func (h *SlotsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerID := q.Get("provider_id")

	days, ok := optionalInt(w, q.Get("days"), "days")
	if !ok {
		return
	}
	minutes, ok := optionalInt(w, q.Get("duration_minutes"), "duration_minutes")
	if !ok {
		return
	}

	start := time.Now()
	slots, err := h.engine.ComputeSlots(r.Context(), providerID, days, time.Duration(minutes)*time.Minute)
	h.metrics.ObserveSlotComputation(time.Since(start))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{StartTime: s.Start, EndTime: s.End})
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{ProviderID: providerID, Slots: items})
}

// optionalInt parses a positive query parameter; empty means zero.
func optionalInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}
