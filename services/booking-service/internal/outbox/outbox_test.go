package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/kafkax"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

var recordColumns = []string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}

func TestInsertWritesEnvelope(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	evt, err := NewEvent(AggregateAppointment, "appt-1", EventAppointmentCreated, map[string]string{"appointment_id": "appt-1"})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(AggregateAppointment, "appt-1", EventAppointmentCreated, evt.Payload, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, Insert(context.Background(), mock, evt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishBatchMarksPublished(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(recordColumns).
			AddRow(int64(1), "evt-1", AggregateAppointment, "appt-1", EventAppointmentCreated, []byte(`{"a":1}`), "", "", now).
			AddRow(int64(2), "evt-2", AggregateReservation, "res-1", EventReservationReclaimed, []byte(`{"b":2}`), "", "", now))
	mock.ExpectExec("UPDATE outbox_events").
		WithArgs([]int64{1, 2}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	var observed int
	p := NewPublisher(mock, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{
		BatchSize:   10,
		OnPublished: func(n int) { observed = n },
	})
	w := &recordingWriter{}

	n, err := p.PublishBatch(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, observed)
	require.Len(t, w.msgs, 2)
	require.Equal(t, EventAppointmentCreated, w.msgs[0].Topic)
	require.Equal(t, "appt-1", string(w.msgs[0].Key))
	require.Equal(t, "evt-2", kafkax.HeaderValue(w.msgs[1].Headers, kafkax.HeaderEventID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishBatchLeavesRowsOnWriteFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(recordColumns).
			AddRow(int64(7), "evt-7", AggregateAppointment, "appt-7", EventAppointmentCreated, []byte(`{}`), "", "", time.Now()))
	mock.ExpectRollback()

	p := NewPublisher(mock, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	_, err = p.PublishBatch(context.Background(), &recordingWriter{err: errors.New("broker down")})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishBatchRestoresStoredTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(recordColumns).
			AddRow(int64(3), "evt-3", AggregateReservation, "res-3", EventReservationCreated, []byte(`{}`), traceparent, "", time.Now()))
	mock.ExpectExec("UPDATE outbox_events").
		WithArgs([]int64{3}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	p := NewPublisher(mock, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	w := &recordingWriter{}
	_, err = p.PublishBatch(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	ctx := kafkax.ExtractTraceHeaders(context.Background(), w.msgs[0].Headers)
	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	require.NoError(t, mock.ExpectationsWereMet())
}
