package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
)

// Postgres is the production Store.
type Postgres struct {
	pool db.TxBeginner
	*queries
}

func NewPostgres(pool db.TxBeginner) *Postgres {
	return &Postgres{pool: pool, queries: &queries{db: pool}}
}

func (s *Postgres) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr("commit tx", err)
	}
	return nil
}

type queries struct {
	db db.DBTX
}

// mapErr translates driver errors into storage sentinels.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %v", op, ErrDuplicate, err)
	case db.IsExclusionViolation(err):
		return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func expectOne(op string, n int64) error {
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func (q *queries) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	err := q.db.QueryRow(ctx, `
		SELECT id, display_name, timezone, fee_minor_units, currency, default_slot_minutes
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.DisplayName, &p.Timezone, &p.FeeMinorUnits, &p.Currency, &p.DefaultSlotMinutes)
	if err != nil {
		return model.Provider{}, mapErr("get provider", err)
	}
	return p, nil
}

func (q *queries) UpsertProvider(ctx context.Context, p model.Provider) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO providers (id, display_name, timezone, fee_minor_units, currency, default_slot_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			timezone = EXCLUDED.timezone,
			fee_minor_units = EXCLUDED.fee_minor_units,
			currency = EXCLUDED.currency,
			default_slot_minutes = EXCLUDED.default_slot_minutes,
			updated_at = now()
	`, p.ID, p.DisplayName, p.Timezone, p.FeeMinorUnits, p.Currency, p.DefaultSlotMinutes)
	return mapErr("upsert provider", err)
}

func pgTime(c model.ClockTime) pgtype.Time {
	return pgtype.Time{Microseconds: c.Duration().Microseconds(), Valid: true}
}

func optionalPgTime(c *model.ClockTime) pgtype.Time {
	if c == nil {
		return pgtype.Time{}
	}
	return pgTime(*c)
}

func clockFromPg(t pgtype.Time) (model.ClockTime, error) {
	if !t.Valid {
		return 0, fmt.Errorf("unexpected null time of day")
	}
	d := time.Duration(t.Microseconds) * time.Microsecond
	return model.NewClockTime(int(d/time.Hour), int(d%time.Hour/time.Minute))
}

func pgDate(d model.Date) time.Time {
	return d.In(time.UTC)
}

func (q *queries) ListRecurring(ctx context.Context, providerID string) ([]model.RecurringAvailability, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, provider_id, day_of_week, start_time, end_time, created_at
		FROM recurring_availability
		WHERE provider_id = $1
		ORDER BY day_of_week, start_time
	`, providerID)
	if err != nil {
		return nil, mapErr("list recurring", err)
	}
	defer rows.Close()

	var out []model.RecurringAvailability
	for rows.Next() {
		var r model.RecurringAvailability
		var start, end pgtype.Time
		if err := rows.Scan(&r.ID, &r.ProviderID, &r.DayOfWeek, &start, &end, &r.CreatedAt); err != nil {
			return nil, mapErr("scan recurring", err)
		}
		if r.StartTime, err = clockFromPg(start); err != nil {
			return nil, err
		}
		if r.EndTime, err = clockFromPg(end); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, mapErr("list recurring", rows.Err())
}

func (q *queries) CreateRecurring(ctx context.Context, r *model.RecurringAvailability) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO recurring_availability (id, provider_id, day_of_week, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, r.ID, r.ProviderID, r.DayOfWeek, pgTime(r.StartTime), pgTime(r.EndTime)).Scan(&r.CreatedAt)
	return mapErr("create recurring", err)
}

func (q *queries) DeleteRecurring(ctx context.Context, providerID, id string) error {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM recurring_availability WHERE id = $1 AND provider_id = $2
	`, id, providerID)
	if err != nil {
		return mapErr("delete recurring", err)
	}
	return expectOne("delete recurring", tag.RowsAffected())
}

func (q *queries) ListOverrides(ctx context.Context, providerID string, from, to model.Date) ([]model.AvailabilityOverride, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, provider_id, override_date, start_time, end_time, is_all_day, description, created_at
		FROM availability_overrides
		WHERE provider_id = $1 AND override_date >= $2 AND override_date < $3
		ORDER BY override_date, start_time NULLS FIRST
	`, providerID, pgDate(from), pgDate(to))
	if err != nil {
		return nil, mapErr("list overrides", err)
	}
	defer rows.Close()

	var out []model.AvailabilityOverride
	for rows.Next() {
		var o model.AvailabilityOverride
		var date time.Time
		var start, end pgtype.Time
		if err := rows.Scan(&o.ID, &o.ProviderID, &date, &start, &end, &o.IsAllDay, &o.Description, &o.CreatedAt); err != nil {
			return nil, mapErr("scan override", err)
		}
		o.Date = model.DateOf(date)
		if start.Valid {
			c, err := clockFromPg(start)
			if err != nil {
				return nil, err
			}
			o.StartTime = &c
		}
		if end.Valid {
			c, err := clockFromPg(end)
			if err != nil {
				return nil, err
			}
			o.EndTime = &c
		}
		out = append(out, o)
	}
	return out, mapErr("list overrides", rows.Err())
}

func (q *queries) CreateOverride(ctx context.Context, o *model.AvailabilityOverride) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO availability_overrides (id, provider_id, override_date, start_time, end_time, is_all_day, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, o.ID, o.ProviderID, pgDate(o.Date), optionalPgTime(o.StartTime), optionalPgTime(o.EndTime), o.IsAllDay, o.Description).Scan(&o.CreatedAt)
	return mapErr("create override", err)
}

func (q *queries) DeleteOverride(ctx context.Context, providerID, id string) error {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM availability_overrides WHERE id = $1 AND provider_id = $2
	`, id, providerID)
	if err != nil {
		return mapErr("delete override", err)
	}
	return expectOne("delete override", tag.RowsAffected())
}

const appointmentColumns = `id, provider_id, client_id, start_time, end_time, status,
	COALESCE(payment_hold_id, ''), payment_status, created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(&a.ID, &a.ProviderID, &a.ClientID, &a.StartTime, &a.EndTime, &status, &a.PaymentHoldID, &a.PaymentStatus, &a.CreatedAt)
	a.Status = model.AppointmentStatus(status)
	return a, err
}

func (q *queries) listAppointments(ctx context.Context, op, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, a)
	}
	return out, mapErr(op, rows.Err())
}

func (q *queries) ListBlockingAppointments(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	return q.listAppointments(ctx, "list blocking appointments", `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, providerID, from, to)
}

func (q *queries) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, client_id, start_time, end_time, status, payment_hold_id, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING created_at
	`, a.ID, a.ProviderID, a.ClientID, a.StartTime, a.EndTime, string(a.Status), a.PaymentHoldID, a.PaymentStatus).Scan(&a.CreatedAt)
	return mapErr("create appointment", err)
}

func (q *queries) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(q.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, mapErr("get appointment", err)
	}
	return a, nil
}

func (q *queries) UpdateAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return mapErr("update appointment status", err)
	}
	return expectOne("update appointment status", tag.RowsAffected())
}

func (q *queries) ListAppointmentsByClient(ctx context.Context, clientID string, limit int) ([]model.Appointment, error) {
	return q.listAppointments(ctx, "list client appointments", `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, clientID, limit)
}

func (q *queries) ListAppointmentsByProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error) {
	return q.listAppointments(ctx, "list provider appointments", `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, providerID, limit)
}

const reservationColumns = `id, provider_id, client_id, start_time, end_time, reserved_until, payment_hold_id, created_at`

func scanReservation(row pgx.Row) (model.SlotReservation, error) {
	var r model.SlotReservation
	err := row.Scan(&r.ID, &r.ProviderID, &r.ClientID, &r.StartTime, &r.EndTime, &r.ReservedUntil, &r.PaymentHoldID, &r.CreatedAt)
	return r, err
}

func collectReservations(op string, rows pgx.Rows) ([]model.SlotReservation, error) {
	defer rows.Close()
	var out []model.SlotReservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, r)
	}
	return out, mapErr(op, rows.Err())
}

func (q *queries) ListActiveReservations(ctx context.Context, providerID string, from, to, now time.Time) ([]model.SlotReservation, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM slot_reservations
		WHERE provider_id = $1
			AND start_time < $3
			AND end_time > $2
			AND reserved_until > $4
		ORDER BY start_time
	`, providerID, from, to, now)
	if err != nil {
		return nil, mapErr("list active reservations", err)
	}
	return collectReservations("list active reservations", rows)
}

func (q *queries) CreateReservation(ctx context.Context, r *model.SlotReservation) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO slot_reservations (id, provider_id, client_id, start_time, end_time, reserved_until, payment_hold_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, r.ID, r.ProviderID, r.ClientID, r.StartTime, r.EndTime, r.ReservedUntil, r.PaymentHoldID).Scan(&r.CreatedAt)
	return mapErr("create reservation", err)
}

func (q *queries) SetReservationHold(ctx context.Context, id, holdID string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE slot_reservations SET payment_hold_id = $2 WHERE id = $1
	`, id, holdID)
	if err != nil {
		return mapErr("set reservation hold", err)
	}
	return expectOne("set reservation hold", tag.RowsAffected())
}

func (q *queries) GetReservationForUpdate(ctx context.Context, holdID, clientID string) (model.SlotReservation, error) {
	r, err := scanReservation(q.db.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM slot_reservations
		WHERE payment_hold_id = $1 AND client_id = $2
		FOR UPDATE
	`, holdID, clientID))
	if err != nil {
		return model.SlotReservation{}, mapErr("get reservation", err)
	}
	return r, nil
}

func (q *queries) DeleteReservation(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM slot_reservations WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete reservation", err)
	}
	return expectOne("delete reservation", tag.RowsAffected())
}

func (q *queries) DeleteExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]model.SlotReservation, error) {
	rows, err := q.db.Query(ctx, `
		DELETE FROM slot_reservations
		WHERE id IN (
			SELECT id FROM slot_reservations
			WHERE reserved_until < $1
			ORDER BY reserved_until
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+reservationColumns, cutoff, limit)
	if err != nil {
		return nil, mapErr("delete expired reservations", err)
	}
	return collectReservations("delete expired reservations", rows)
}

func (q *queries) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return mapErr("append outbox event", outbox.Insert(ctx, q.db, evt))
}
