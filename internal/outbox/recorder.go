package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/govbook/booking/internal/model"
	"github.com/govbook/booking/libs/db"
)

// Recorder writes booking lifecycle events to the outbox after the booking
// protocol has finished. Event emission is deliberately decoupled from the
// reserve/create sequence: a lost event never blocks or unwinds a booking,
// so failures here are logged and dropped.
type Recorder struct {
	pool   *db.Pool
	repo   *Repository
	logger *slog.Logger
}

func NewRecorder(pool *db.Pool, repo *Repository, logger *slog.Logger) *Recorder {
	return &Recorder{pool: pool, repo: repo, logger: logger}
}

func (r *Recorder) AppointmentBooked(ctx context.Context, appt model.Appointment) {
	payload, err := json.Marshal(map[string]any{
		"appointment_id":    appt.ID,
		"user_id":           appt.UserID,
		"service_id":        appt.ServiceID,
		"timeslot_id":       appt.TimeslotID,
		"booking_reference": appt.BookingReference,
		"created_at":        appt.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		r.logger.Error("failed to build booked event payload", "err", err)
		return
	}
	r.insert(ctx, Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "booking.appointment.booked.v1",
		Payload:       payload,
	})
}

func (r *Recorder) AppointmentCancelled(ctx context.Context, appt model.Appointment) {
	cancelledAt := ""
	if appt.CancelledAt != nil {
		cancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id":    appt.ID,
		"user_id":           appt.UserID,
		"service_id":        appt.ServiceID,
		"timeslot_id":       appt.TimeslotID,
		"booking_reference": appt.BookingReference,
		"cancelled_at":      cancelledAt,
		"reason":            appt.CancelReason,
	})
	if err != nil {
		r.logger.Error("failed to build cancelled event payload", "err", err)
		return
	}
	r.insert(ctx, Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "booking.appointment.cancelled.v1",
		Payload:       payload,
	})
}

func (r *Recorder) insert(ctx context.Context, evt Event) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("outbox event dropped", "event_type", evt.EventType, "err", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.repo.Insert(ctx, tx, evt); err != nil {
		r.logger.Error("outbox event dropped", "event_type", evt.EventType, "err", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("outbox event dropped", "event_type", evt.EventType, "err", err)
	}
}
