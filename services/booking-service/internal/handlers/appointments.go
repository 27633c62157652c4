package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type AppointmentsHandler struct {
	store  storage.Queries
	coord  *booking.Coordinator
	logger *slog.Logger
}

func NewAppointmentsHandler(store storage.Queries, coord *booking.Coordinator, logger *slog.Logger) *AppointmentsHandler {
	return &AppointmentsHandler{store: store, coord: coord, logger: logger}
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed cancelled"`
}

// List returns the caller's appointments: a client's bookings or a
// provider's schedule, newest first.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := optionalInt(w, r.URL.Query().Get("limit"), "limit")
	if !ok {
		return
	}
	if limit == 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	p := principal(r)
	var (
		appts []model.Appointment
		err   error
	)
	if p.Role == auth.RoleProvider {
		appts, err = h.store.ListAppointmentsByProvider(r.Context(), p.UserID, limit)
	} else {
		appts, err = h.store.ListAppointmentsByClient(r.Context(), p.UserID, limit)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// UpdateStatus lets a provider confirm or cancel one of their appointments.
func (h *AppointmentsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	status, _ := model.ParseAppointmentStatus(req.Status)
	appt, err := h.coord.TransitionAppointment(r.Context(), principal(r).UserID, r.PathValue("id"), status)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}
