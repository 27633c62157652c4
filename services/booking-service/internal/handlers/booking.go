package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
)

type BookingHandler struct {
	coord  *booking.Coordinator
	logger *slog.Logger
}

func NewBookingHandler(coord *booking.Coordinator, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{coord: coord, logger: logger}
}

type initiateBookingRequest struct {
	ProviderID string    `json:"provider_id" validate:"required"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	EndTime    time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

type initiateBookingResponse struct {
	ReservationID string    `json:"reservation_id"`
	HoldID        string    `json:"hold_id"`
	ClientSecret  string    `json:"client_secret"`
	ReservedUntil time.Time `json:"reserved_until"`
}

type confirmBookingRequest struct {
	HoldID string `json:"hold_id" validate:"required"`
}

type appointmentResponse struct {
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	ClientID      string    `json:"client_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	PaymentHoldID string    `json:"payment_hold_id,omitempty"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID: a.ID,
		ProviderID:    a.ProviderID,
		ClientID:      a.ClientID,
		StartTime:     a.StartTime.UTC(),
		EndTime:       a.EndTime.UTC(),
		Status:        string(a.Status),
		PaymentHoldID: a.PaymentHoldID,
		PaymentStatus: a.PaymentStatus,
		CreatedAt:     a.CreatedAt.UTC(),
	}
}

// Initiate reserves a slot and returns the payment hold the client must
// complete before confirming.
func (h *BookingHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateBookingRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.coord.InitiateBooking(r.Context(), principal(r).UserID, req.ProviderID, req.StartTime, req.EndTime)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, initiateBookingResponse{
		ReservationID: res.ReservationID,
		HoldID:        res.HoldID,
		ClientSecret:  res.ClientSecret,
		ReservedUntil: res.ReservedUntil.UTC(),
	})
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmBookingRequest
	if !decode(w, r, &req) {
		return
	}
	appt, err := h.coord.ConfirmBooking(r.Context(), principal(r).UserID, req.HoldID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.CancelReservation(r.Context(), principal(r).UserID, r.PathValue("holdId")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
