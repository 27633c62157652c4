package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
)

type Routes struct {
	Slots        *SlotsHandler
	Booking      *BookingHandler
	Appointments *AppointmentsHandler
	Calendar     *CalendarHandler
	Admin        *AdminHandler
	// DevPayments is nil unless fake payments are enabled.
	DevPayments *DevPaymentsHandler
}

// Register mounts the /api/v1 surface on mux. Role checks happen here;
// authentication must already have run.
func (rt Routes) Register(mux *http.ServeMux) {
	client := func(h http.HandlerFunc) http.Handler { return auth.RequireRole(h, auth.RoleClient) }
	provider := func(h http.HandlerFunc) http.Handler { return auth.RequireRole(h, auth.RoleProvider) }
	admin := func(h http.HandlerFunc) http.Handler { return auth.RequireRole(h, auth.RoleAdmin) }

	mux.HandleFunc("GET /api/v1/slots", rt.Slots.List)

	mux.Handle("POST /api/v1/bookings", client(rt.Booking.Initiate))
	mux.Handle("POST /api/v1/bookings/confirm", client(rt.Booking.Confirm))
	mux.Handle("DELETE /api/v1/bookings/{holdId}", client(rt.Booking.Cancel))

	mux.Handle("GET /api/v1/appointments", auth.RequireRole(http.HandlerFunc(rt.Appointments.List), auth.RoleClient, auth.RoleProvider))
	mux.Handle("POST /api/v1/appointments/{id}/status", provider(rt.Appointments.UpdateStatus))

	mux.Handle("GET /api/v1/calendar/recurring", provider(rt.Calendar.ListRecurring))
	mux.Handle("POST /api/v1/calendar/recurring", provider(rt.Calendar.CreateRecurring))
	mux.Handle("DELETE /api/v1/calendar/recurring/{id}", provider(rt.Calendar.DeleteRecurring))
	mux.Handle("GET /api/v1/calendar/overrides", provider(rt.Calendar.ListOverrides))
	mux.Handle("POST /api/v1/calendar/overrides", provider(rt.Calendar.CreateOverride))
	mux.Handle("DELETE /api/v1/calendar/overrides/{id}", provider(rt.Calendar.DeleteOverride))

	mux.Handle("POST /api/v1/admin/reclaim", admin(rt.Admin.Reclaim))
	mux.Handle("PUT /api/v1/admin/providers/{id}", admin(rt.Admin.UpsertProvider))

	if rt.DevPayments != nil {
		mux.HandleFunc("POST /api/v1/dev/holds/{holdId}/authorize", rt.DevPayments.Authorize)
		mux.HandleFunc("POST /api/v1/dev/holds/{holdId}/decline", rt.DevPayments.Decline)
	}
}
