package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/govbook/booking/internal/model"
	"github.com/govbook/booking/libs/db"
)

const appointmentColumns = `
	id, user_id, service_id, timeslot_id, officer_id, sequence_number,
	booking_reference, status, COALESCE(qr_payload, ''), created_at,
	cancelled_at, COALESCE(cancel_reason, '')`

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, user_id, service_id, timeslot_id, officer_id, sequence_number,
			 booking_reference, status, qr_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, appt.ID, appt.UserID, appt.ServiceID, appt.TimeslotID, appt.OfficerID,
		appt.SequenceNumber, appt.BookingReference, appt.Status, appt.QRPayload,
	).Scan(&appt.CreatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, bool, error) {
	appt, err := r.scanOne(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, appointmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

func (r *AppointmentRepository) FindActiveByUserAndTimeslot(ctx context.Context, userID, timeslotID string) (model.Appointment, bool, error) {
	appt, err := r.scanOne(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1 AND timeslot_id = $2 AND status <> 'cancelled'
		LIMIT 1
	`, userID, timeslotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, appointmentID, status string) (model.Appointment, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, appointmentID, status))
}

func (r *AppointmentRepository) MarkCancelled(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancel_reason = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, appointmentID, reason))
}

func (r *AppointmentRepository) AssignOfficer(ctx context.Context, appointmentID, officerID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET officer_id = $2,
			updated_at = now()
		WHERE id = $1
	`, appointmentID, officerID)
	return err
}

func (r *AppointmentRepository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT nextval('appointment_booking_seq')`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *AppointmentRepository) CountPendingByOfficer(ctx context.Context, officerID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE officer_id = $1 AND status = 'pending'
	`, officerID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *AppointmentRepository) scanOne(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.UserID,
		&appt.ServiceID,
		&appt.TimeslotID,
		&appt.OfficerID,
		&appt.SequenceNumber,
		&appt.BookingReference,
		&appt.Status,
		&appt.QRPayload,
		&appt.CreatedAt,
		&cancelledAt,
		&appt.CancelReason,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}
