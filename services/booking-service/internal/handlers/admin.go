package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/reclaim"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

type AdminHandler struct {
	store        storage.Queries
	reclaimer    *reclaim.Reclaimer
	graceMinutes int
	logger       *slog.Logger
}

func NewAdminHandler(store storage.Queries, reclaimer *reclaim.Reclaimer, graceMinutes int, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: store, reclaimer: reclaimer, graceMinutes: graceMinutes, logger: logger}
}

type providerRequest struct {
	DisplayName        string `json:"display_name" validate:"required,max=200"`
	Timezone           string `json:"timezone" validate:"required"`
	FeeMinorUnits      int64  `json:"fee_minor_units" validate:"gte=0"`
	Currency           string `json:"currency" validate:"required,len=3"`
	DefaultSlotMinutes int    `json:"default_slot_minutes" validate:"omitempty,min=5,max=1440"`
}

type providerResponse struct {
	ProviderID         string `json:"provider_id"`
	DisplayName        string `json:"display_name"`
	Timezone           string `json:"timezone"`
	FeeMinorUnits      int64  `json:"fee_minor_units"`
	Currency           string `json:"currency"`
	DefaultSlotMinutes int    `json:"default_slot_minutes"`
}

// Reclaim runs the expiry sweep on demand. ?grace_period_minutes overrides
// the configured grace.
func (h *AdminHandler) Reclaim(w http.ResponseWriter, r *http.Request) {
	grace := h.graceMinutes
	if raw := r.URL.Query().Get("grace_period_minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid grace_period_minutes")
			return
		}
		grace = n
	}
	deleted, err := h.reclaimer.Reclaim(r.Context(), grace)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.logger.Info("reclaim triggered by admin", "user_id", principal(r).UserID, "deleted", deleted)
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// UpsertProvider creates or replaces the booking profile of a provider.
func (h *AdminHandler) UpsertProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "unknown timezone")
		return
	}
	p := model.Provider{
		ID:                 r.PathValue("id"),
		DisplayName:        strings.TrimSpace(req.DisplayName),
		Timezone:           req.Timezone,
		FeeMinorUnits:      req.FeeMinorUnits,
		Currency:           strings.ToLower(req.Currency),
		DefaultSlotMinutes: req.DefaultSlotMinutes,
	}
	if p.DefaultSlotMinutes == 0 {
		p.DefaultSlotMinutes = int(p.DefaultSlot() / time.Minute)
	}
	if err := h.store.UpsertProvider(r.Context(), p); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, providerResponse{
		ProviderID:         p.ID,
		DisplayName:        p.DisplayName,
		Timezone:           p.Timezone,
		FeeMinorUnits:      p.FeeMinorUnits,
		Currency:           p.Currency,
		DefaultSlotMinutes: p.DefaultSlotMinutes,
	})
}
