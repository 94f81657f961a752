package booking

import (
	"context"
	"errors"

	"github.com/govbook/booking/internal/slotledger"
)

// Validator runs the read-only precondition checks before any capacity
// mutation is attempted. The checks are advisory: two requests can both pass
// validation and then compete at the ledger, which is the enforcement point.
type Validator struct {
	users        UserStore
	services     ServiceStore
	timeslots    TimeslotStore
	appointments AppointmentStore
}

func NewValidator(users UserStore, services ServiceStore, timeslots TimeslotStore, appointments AppointmentStore) *Validator {
	return &Validator{
		users:        users,
		services:     services,
		timeslots:    timeslots,
		appointments: appointments,
	}
}

// Validate checks in order, stopping at the first failure: user exists,
// service exists, timeslot exists, timeslot belongs to the service, and no
// non-cancelled appointment already holds the (user, timeslot) pair.
func (v *Validator) Validate(ctx context.Context, userID, serviceID, timeslotID string) error {
	ok, err := v.users.UserExists(ctx, userID)
	if err != nil {
		return wrapError(CodeUnknown, "user lookup failed", err)
	}
	if !ok {
		return newError(CodeUserNotFound, "user not found")
	}

	_, ok, err = v.services.ReadService(ctx, serviceID)
	if err != nil {
		return wrapError(CodeUnknown, "service lookup failed", err)
	}
	if !ok {
		return newError(CodeServiceNotFound, "service not found")
	}

	ts, err := v.timeslots.ReadTimeslot(ctx, timeslotID)
	if err != nil {
		if errors.Is(err, slotledger.ErrTimeslotNotFound) {
			return newError(CodeTimeslotNotFound, "timeslot not found")
		}
		return wrapError(CodeUnknown, "timeslot lookup failed", err)
	}
	if ts.ServiceID != serviceID {
		return newError(CodeTimeslotNotFound, "timeslot does not belong to the requested service")
	}

	_, found, err := v.appointments.FindActiveByUserAndTimeslot(ctx, userID, timeslotID)
	if err != nil {
		return wrapError(CodeUnknown, "duplicate booking check failed", err)
	}
	if found {
		return newError(CodeDuplicateBooking, "an active appointment already exists for this timeslot")
	}
	return nil
}
