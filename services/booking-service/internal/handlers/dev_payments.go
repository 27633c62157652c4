package handlers

import (
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/payments"
)

// DevPaymentsHandler drives the in-memory gateway from outside the process.
// It is only mounted when fake payments are enabled.
type DevPaymentsHandler struct {
	fake *payments.FakeGateway
}

func NewDevPaymentsHandler(fake *payments.FakeGateway) *DevPaymentsHandler {
	return &DevPaymentsHandler{fake: fake}
}

func (h *DevPaymentsHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.fake.Authorize(r.PathValue("holdId")))
}

func (h *DevPaymentsHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.fake.Decline(r.PathValue("holdId")))
}

func (h *DevPaymentsHandler) respond(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payments.ErrHoldNotFound):
		httpx.WriteError(w, http.StatusNotFound, "hold not found")
	case err != nil:
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
