package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/govbook/booking/internal/model"
	"github.com/govbook/booking/internal/slotledger"
	"github.com/govbook/booking/libs/db"
)

type TimeslotRepository struct {
	pool *db.Pool
}

func NewTimeslotRepository(pool *db.Pool) *TimeslotRepository {
	return &TimeslotRepository{pool: pool}
}

func (r *TimeslotRepository) ReadTimeslot(ctx context.Context, timeslotID string) (model.Timeslot, error) {
	var ts model.Timeslot
	err := r.pool.QueryRow(ctx, `
		SELECT id, service_id, start_time, end_time, capacity, slots_available
		FROM timeslots
		WHERE id = $1
	`, timeslotID).Scan(
		&ts.ID,
		&ts.ServiceID,
		&ts.StartTime,
		&ts.EndTime,
		&ts.Capacity,
		&ts.SlotsAvailable,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Timeslot{}, slotledger.ErrTimeslotNotFound
		}
		return model.Timeslot{}, err
	}
	return ts, nil
}

// ConditionalUpdateSlotsAvailable is the compare-and-swap the slot ledger is
// built on: the row only changes if slots_available still holds the value
// the caller read. Zero rows affected means the caller lost the race.
func (r *TimeslotRepository) ConditionalUpdateSlotsAvailable(ctx context.Context, timeslotID string, expected, next int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE timeslots
		SET slots_available = $3,
			updated_at = now()
		WHERE id = $1 AND slots_available = $2
	`, timeslotID, expected, next)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
