package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so errors match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads and validates a request body, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{
			Error:  "validation failed",
			Detail: describeValidation(err),
		})
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// writeServiceError maps domain errors onto status codes. Anything it does
// not recognise is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var notComplete *booking.PaymentNotCompleteError
	switch {
	case errors.As(err, &notComplete):
		httpx.WriteJSON(w, http.StatusPaymentRequired, httpx.ErrorBody{
			Error:  "payment not complete",
			Detail: "payment status: " + notComplete.Raw,
		})
	case errors.Is(err, booking.ErrInvalidInput), errors.Is(err, availability.ErrInvalidInput):
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid input", Detail: err.Error()})
	case errors.Is(err, booking.ErrSlotUnavailable):
		httpx.WriteError(w, http.StatusConflict, "slot is not available")
	case errors.Is(err, booking.ErrInvalidTransition):
		httpx.WriteJSON(w, http.StatusConflict, httpx.ErrorBody{Error: "invalid status transition", Detail: err.Error()})
	case errors.Is(err, storage.ErrDuplicate):
		httpx.WriteError(w, http.StatusConflict, "already exists")
	case errors.Is(err, booking.ErrReservationNotFound):
		httpx.WriteError(w, http.StatusNotFound, "reservation not found")
	case errors.Is(err, booking.ErrAppointmentNotFound):
		httpx.WriteError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, availability.ErrProviderNotFound):
		httpx.WriteError(w, http.StatusNotFound, "provider not found")
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, booking.ErrReservationExpired):
		httpx.WriteError(w, http.StatusGone, "reservation expired")
	case errors.Is(err, booking.ErrAuthorization):
		httpx.WriteError(w, http.StatusForbidden, "payment does not match this reservation")
	case errors.Is(err, booking.ErrPaymentProvider):
		logger.Error("payment provider error", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "payment provider error")
	default:
		logger.Error("request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// principal returns the caller set by auth.RequireRole.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
