package outbox

import (
	"context"
	"log/slog"
	"time"
)

// EventSource hands over events that will never reach the outbox table.
type EventSource interface {
	TakeEvents() []Event
}

// Discarder drains an in-memory event source so it does not grow without
// bound when no publisher runs. Each dropped event is logged at debug level.
type Discarder struct {
	source    EventSource
	logger    *slog.Logger
	pollEvery time.Duration
}

func NewDiscarder(source EventSource, logger *slog.Logger, pollEvery time.Duration) *Discarder {
	if logger == nil {
		logger = slog.Default()
	}
	if pollEvery <= 0 {
		pollEvery = 5 * time.Second
	}
	return &Discarder{source: source, logger: logger, pollEvery: pollEvery}
}

func (d *Discarder) Run(ctx context.Context) {
	d.logger.Warn("outbox publisher disabled (in-memory store); events are logged and dropped")
	ticker := time.NewTicker(d.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Drain(ctx)
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain logs and drops everything the source holds and returns how many
// events it dropped.
func (d *Discarder) Drain(ctx context.Context) int {
	events := d.source.TakeEvents()
	for _, evt := range events {
		d.logger.DebugContext(ctx, "outbox event dropped",
			"event_type", evt.EventType,
			"aggregate_type", evt.AggregateType,
			"aggregate_id", evt.AggregateID,
		)
	}
	return len(events)
}
