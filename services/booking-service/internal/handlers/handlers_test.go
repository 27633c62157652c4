package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/reclaim"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage/memstore"
)

// Monday 08:00 UTC.
var base = time.Date(2030, time.June, 3, 8, 0, 0, 0, time.UTC)

type testAPI struct {
	handler http.Handler
	clk     *clock.Manual
	gw      *payments.FakeGateway
	store   *memstore.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewManual(base)
	store := memstore.New(clk.Now)
	gw := payments.NewFakeGateway()
	coord := booking.NewCoordinator(store, gw, logger, booking.Config{Clock: clk})
	reclaimer := reclaim.NewReclaimer(store, gw, logger, clk, nil)

	mux := http.NewServeMux()
	Routes{
		Slots:        NewSlotsHandler(availability.NewEngine(store, clk), logger, nil),
		Booking:      NewBookingHandler(coord, logger),
		Appointments: NewAppointmentsHandler(store, coord, logger),
		Calendar:     NewCalendarHandler(store, logger, clk.Now),
		Admin:        NewAdminHandler(store, reclaimer, reclaim.DefaultGraceMinutes, logger),
		DevPayments:  NewDevPaymentsHandler(gw),
	}.Register(mux)

	return &testAPI{
		handler: httpx.Chain(mux, auth.Authenticate("")),
		clk:     clk,
		gw:      gw,
		store:   store,
	}
}

func (a *testAPI) do(t *testing.T, method, path, user string, role auth.Role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set(auth.HeaderUserID, user)
		req.Header.Set(auth.HeaderRole, string(role))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedProvider registers prov-1 with Monday 09:00-12:00 hours.
func (a *testAPI) seedProvider(t *testing.T) {
	t.Helper()
	rec := a.do(t, http.MethodPut, "/api/v1/admin/providers/prov-1", "admin-1", auth.RoleAdmin,
		`{"display_name":"Ada Counsel","timezone":"UTC","fee_minor_units":15000,"currency":"USD","default_slot_minutes":60}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/v1/calendar/recurring", "prov-1", auth.RoleProvider,
		`{"day_of_week":0,"start_time":"09:00","end_time":"12:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (a *testAPI) slots(t *testing.T) []slotItem {
	t.Helper()
	rec := a.do(t, http.MethodGet, "/api/v1/slots?provider_id=prov-1&days=1", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[slotsResponse](t, rec).Slots
}

func (a *testAPI) initiate(t *testing.T, client string, hour int) initiateBookingResponse {
	t.Helper()
	start := time.Date(2030, time.June, 3, hour, 0, 0, 0, time.UTC)
	body := `{"provider_id":"prov-1","start_time":"` + start.Format(time.RFC3339) + `","end_time":"` + start.Add(time.Hour).Format(time.RFC3339) + `"}`
	rec := a.do(t, http.MethodPost, "/api/v1/bookings", client, auth.RoleClient, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[initiateBookingResponse](t, rec)
}

func TestBookingFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.seedProvider(t)

	slots := api.slots(t)
	require.Len(t, slots, 3)
	require.True(t, slots[0].StartTime.Equal(time.Date(2030, time.June, 3, 9, 0, 0, 0, time.UTC)))

	res := api.initiate(t, "client-1", 10)
	require.NotEmpty(t, res.HoldID)
	require.True(t, res.ReservedUntil.Equal(base.Add(15*time.Minute)))
	require.Len(t, api.slots(t), 2)

	rec := api.do(t, http.MethodPost, "/api/v1/dev/holds/"+res.HoldID+"/authorize", "", "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/confirm", "client-1", auth.RoleClient, `{"hold_id":"`+res.HoldID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decodeBody[appointmentResponse](t, rec)
	require.Equal(t, "pending", appt.Status)
	require.Equal(t, "prov-1", appt.ProviderID)
	require.Len(t, api.slots(t), 2)

	rec = api.do(t, http.MethodGet, "/api/v1/appointments", "client-1", auth.RoleClient, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[struct {
		Items []appointmentResponse `json:"items"`
	}](t, rec).Items, 1)

	rec = api.do(t, http.MethodPost, "/api/v1/appointments/"+appt.AppointmentID+"/status", "prov-1", auth.RoleProvider, `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "confirmed", decodeBody[appointmentResponse](t, rec).Status)

	rec = api.do(t, http.MethodPost, "/api/v1/appointments/"+appt.AppointmentID+"/status", "prov-1", auth.RoleProvider, `{"status":"pending"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestBookingRoleChecks(t *testing.T) {
	api := newTestAPI(t)
	api.seedProvider(t)
	body := `{"provider_id":"prov-1","start_time":"2030-06-03T10:00:00Z","end_time":"2030-06-03T11:00:00Z"}`

	rec := api.do(t, http.MethodPost, "/api/v1/bookings", "", "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/bookings", "prov-1", auth.RoleProvider, body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/admin/reclaim", "client-1", auth.RoleClient, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInitiateBookingErrors(t *testing.T) {
	api := newTestAPI(t)
	api.seedProvider(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"unknown field", `{"provider_id":"prov-1","start_time":"2030-06-03T10:00:00Z","end_time":"2030-06-03T11:00:00Z","extra":1}`, http.StatusBadRequest},
		{"end before start", `{"provider_id":"prov-1","start_time":"2030-06-03T11:00:00Z","end_time":"2030-06-03T10:00:00Z"}`, http.StatusBadRequest},
		{"missing provider", `{"start_time":"2030-06-03T10:00:00Z","end_time":"2030-06-03T11:00:00Z"}`, http.StatusBadRequest},
		{"in the past", `{"provider_id":"prov-1","start_time":"2030-06-03T07:00:00Z","end_time":"2030-06-03T07:30:00Z"}`, http.StatusBadRequest},
		{"unknown provider", `{"provider_id":"prov-9","start_time":"2030-06-03T10:00:00Z","end_time":"2030-06-03T11:00:00Z"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := api.do(t, http.MethodPost, "/api/v1/bookings", "client-1", auth.RoleClient, tc.body)
		require.Equal(t, tc.want, rec.Code, "%s: %s", tc.name, rec.Body.String())
	}

	api.initiate(t, "client-1", 10)
	rec := api.do(t, http.MethodPost, "/api/v1/bookings", "client-2", auth.RoleClient,
		`{"provider_id":"prov-1","start_time":"2030-06-03T10:30:00Z","end_time":"2030-06-03T11:30:00Z"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestConfirmBookingStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	api.seedProvider(t)

	rec := api.do(t, http.MethodPost, "/api/v1/bookings/confirm", "client-1", auth.RoleClient, `{"hold_id":"pi_unknown"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	unpaid := api.initiate(t, "client-1", 9)
	rec = api.do(t, http.MethodPost, "/api/v1/bookings/confirm", "client-1", auth.RoleClient, `{"hold_id":"`+unpaid.HoldID+`"}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Contains(t, rec.Body.String(), "pending")

	late := api.initiate(t, "client-1", 10)
	require.NoError(t, api.gw.Authorize(late.HoldID))
	api.clk.Advance(20 * time.Minute)
	rec = api.do(t, http.MethodPost, "/api/v1/bookings/confirm", "client-1", auth.RoleClient, `{"hold_id":"`+late.HoldID+`"}`)
	require.Equal(t, http.StatusGone, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/bookings/confirm", "client-1", auth.RoleClient, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelReservationOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.seedProvider(t)
	res := api.initiate(t, "client-1", 10)

	rec := api.do(t, http.MethodDelete, "/api/v1/bookings/"+res.HoldID, "client-2", auth.RoleClient, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/v1/bookings/"+res.HoldID, "client-1", auth.RoleClient, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, api.slots(t), 3)
}

func TestSlotsQueryValidation(t *testing.T) {
	api := newTestAPI(t)
	api.seedProvider(t)

	rec := api.do(t, http.MethodGet, "/api/v1/slots?provider_id=prov-9", "", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/slots?provider_id=prov-1&days=abc", "", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/slots?provider_id=prov-1&days=365", "", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/slots", "", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/slots?provider_id=prov-1&days=1&duration_minutes=30", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[slotsResponse](t, rec).Slots, 6)
}

func TestCalendarOverrides(t *testing.T) {
	api := newTestAPI(t)
	api.seedProvider(t)

	rec := api.do(t, http.MethodPost, "/api/v1/calendar/overrides", "prov-1", auth.RoleProvider,
		`{"date":"2030-06-03","start_time":"09:00","end_time":"10:00","is_all_day":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/calendar/overrides", "prov-1", auth.RoleProvider,
		`{"date":"2030-06-03","start_time":"09:00","end_time":"10:00","description":"court"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, api.slots(t), 2)

	rec = api.do(t, http.MethodPost, "/api/v1/calendar/overrides", "prov-1", auth.RoleProvider,
		`{"date":"2030-06-03","start_time":"09:00","end_time":"10:00"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/calendar/overrides", "prov-1", auth.RoleProvider,
		`{"date":"2030-06-03","is_all_day":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	allDay := decodeBody[overrideItem](t, rec)
	require.Empty(t, api.slots(t))

	rec = api.do(t, http.MethodGet, "/api/v1/calendar/overrides?from=2030-06-01&to=2030-06-10", "prov-1", auth.RoleProvider, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[struct {
		Items []overrideItem `json:"items"`
	}](t, rec).Items, 2)

	rec = api.do(t, http.MethodDelete, "/api/v1/calendar/overrides/"+allDay.ID, "prov-1", auth.RoleProvider, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, api.slots(t), 2)
}

func TestCalendarRecurringValidation(t *testing.T) {
	api := newTestAPI(t)
	api.seedProvider(t)

	for _, body := range []string{
		`{"day_of_week":7,"start_time":"09:00","end_time":"12:00"}`,
		`{"day_of_week":1,"start_time":"12:00","end_time":"09:00"}`,
		`{"day_of_week":1,"start_time":"9am","end_time":"12:00"}`,
		`{"start_time":"09:00","end_time":"12:00"}`,
	} {
		rec := api.do(t, http.MethodPost, "/api/v1/calendar/recurring", "prov-1", auth.RoleProvider, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := api.do(t, http.MethodPost, "/api/v1/calendar/recurring", "prov-1", auth.RoleProvider,
		`{"day_of_week":0,"start_time":"09:00","end_time":"12:00"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/calendar/recurring", "prov-2", auth.RoleProvider,
		`{"day_of_week":0,"start_time":"09:00","end_time":"12:00"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminReclaim(t *testing.T) {
	api := newTestAPI(t)
	api.seedProvider(t)
	api.initiate(t, "client-1", 10)
	api.clk.Advance(76 * time.Minute)

	rec := api.do(t, http.MethodPost, "/api/v1/admin/reclaim?grace_period_minutes=-5", "admin-1", auth.RoleAdmin, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/admin/reclaim", "admin-1", auth.RoleAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]int{"deleted": 1}, decodeBody[map[string]int](t, rec))

	rec = api.do(t, http.MethodPost, "/api/v1/admin/reclaim", "admin-1", auth.RoleAdmin, "")
	require.Equal(t, map[string]int{"deleted": 0}, decodeBody[map[string]int](t, rec))
	require.Empty(t, api.store.Reservations())
}

func TestAdminProviderValidation(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPut, "/api/v1/admin/providers/prov-1", "admin-1", auth.RoleAdmin,
		`{"display_name":"Ada","timezone":"Mars/Olympus","fee_minor_units":100,"currency":"usd"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/admin/providers/prov-1", "admin-1", auth.RoleAdmin,
		`{"display_name":"Ada","timezone":"UTC","fee_minor_units":100,"currency":"dollars"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "currency")

	p, err := api.store.GetProvider(context.Background(), "prov-1")
	require.Error(t, err)
	require.Empty(t, p.ID)
}
