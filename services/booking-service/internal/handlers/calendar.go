package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

// CalendarHandler lets a provider manage their own weekly rules and
// date overrides.
type CalendarHandler struct {
	store  storage.Queries
	logger *slog.Logger
	now    func() time.Time
}

func NewCalendarHandler(store storage.Queries, logger *slog.Logger, now func() time.Time) *CalendarHandler {
	if now == nil {
		now = time.Now
	}
	return &CalendarHandler{store: store, logger: logger, now: now}
}

type recurringRequest struct {
	DayOfWeek *int             `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime *model.ClockTime `json:"start_time" validate:"required"`
	EndTime   *model.ClockTime `json:"end_time" validate:"required"`
}

type recurringItem struct {
	ID        string          `json:"id"`
	DayOfWeek int             `json:"day_of_week"`
	StartTime model.ClockTime `json:"start_time"`
	EndTime   model.ClockTime `json:"end_time"`
}

type overrideRequest struct {
	Date        *model.Date      `json:"date" validate:"required"`
	StartTime   *model.ClockTime `json:"start_time"`
	EndTime     *model.ClockTime `json:"end_time"`
	IsAllDay    bool             `json:"is_all_day"`
	Description string           `json:"description" validate:"max=255"`
}

type overrideItem struct {
	ID          string           `json:"id"`
	Date        model.Date       `json:"date"`
	StartTime   *model.ClockTime `json:"start_time"`
	EndTime     *model.ClockTime `json:"end_time"`
	IsAllDay    bool             `json:"is_all_day"`
	Description string           `json:"description,omitempty"`
}

func (h *CalendarHandler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListRecurring(r.Context(), principal(r).UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	items := make([]recurringItem, 0, len(rules))
	for _, rule := range rules {
		items = append(items, recurringItem{ID: rule.ID, DayOfWeek: rule.DayOfWeek, StartTime: rule.StartTime, EndTime: rule.EndTime})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CalendarHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req recurringRequest
	if !decode(w, r, &req) {
		return
	}
	providerID := principal(r).UserID
	if !h.providerExists(w, r, providerID) {
		return
	}
	rule := model.RecurringAvailability{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		DayOfWeek:  *req.DayOfWeek,
		StartTime:  *req.StartTime,
		EndTime:    *req.EndTime,
	}
	if err := rule.Validate(); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid input", Detail: err.Error()})
		return
	}
	if err := h.store.CreateRecurring(r.Context(), &rule); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, recurringItem{ID: rule.ID, DayOfWeek: rule.DayOfWeek, StartTime: rule.StartTime, EndTime: rule.EndTime})
}

func (h *CalendarHandler) DeleteRecurring(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRecurring(r.Context(), principal(r).UserID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOverrides returns overrides in [from, to). Both default to a window
// starting today and spanning the maximum slot horizon.
func (h *CalendarHandler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	from := model.DateOf(h.now().UTC())
	to := from.AddDays(availability.MaxHorizonDays)
	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid from")
			return
		}
		from = d
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid to")
			return
		}
		to = d
	}
	if !from.Before(to) {
		httpx.WriteError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	overrides, err := h.store.ListOverrides(r.Context(), principal(r).UserID, from, to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	items := make([]overrideItem, 0, len(overrides))
	for _, o := range overrides {
		items = append(items, toOverrideItem(o))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CalendarHandler) CreateOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decode(w, r, &req) {
		return
	}
	providerID := principal(r).UserID
	if !h.providerExists(w, r, providerID) {
		return
	}
	o := model.AvailabilityOverride{
		ID:          uuid.NewString(),
		ProviderID:  providerID,
		Date:        *req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsAllDay:    req.IsAllDay,
		Description: req.Description,
	}
	if err := o.Validate(); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid input", Detail: err.Error()})
		return
	}
	if err := h.store.CreateOverride(r.Context(), &o); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toOverrideItem(o))
}

func (h *CalendarHandler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteOverride(r.Context(), principal(r).UserID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CalendarHandler) providerExists(w http.ResponseWriter, r *http.Request, providerID string) bool {
	_, err := h.store.GetProvider(r.Context(), providerID)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "provider profile not found")
		return false
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return false
	}
	return true
}

func toOverrideItem(o model.AvailabilityOverride) overrideItem {
	return overrideItem{
		ID:          o.ID,
		Date:        o.Date,
		StartTime:   o.StartTime,
		EndTime:     o.EndTime,
		IsAllDay:    o.IsAllDay,
		Description: o.Description,
	}
}
