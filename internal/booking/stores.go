package booking

import (
	"context"

	"github.com/govbook/booking/internal/model"
)

// Store interfaces consumed by the booking core. The Postgres
// implementations live in internal/storage; internal/storage/memory provides
// an in-memory double used by tests.

type UserStore interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

type ServiceStore interface {
	ReadService(ctx context.Context, serviceID string) (model.Service, bool, error)
}

// TimeslotStore is the read side only. Writes to slots_available go through
// the slot ledger and nothing else.
type TimeslotStore interface {
	ReadTimeslot(ctx context.Context, timeslotID string) (model.Timeslot, error)
}

type AppointmentStore interface {
	CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, bool, error)
	// FindActiveByUserAndTimeslot returns the non-cancelled appointment for
	// the (user, timeslot) pair, if one exists.
	FindActiveByUserAndTimeslot(ctx context.Context, userID, timeslotID string) (model.Appointment, bool, error)
	UpdateStatus(ctx context.Context, appointmentID, status string) (model.Appointment, error)
	MarkCancelled(ctx context.Context, appointmentID, reason string) (model.Appointment, error)
	AssignOfficer(ctx context.Context, appointmentID, officerID string) error
	NextSequence(ctx context.Context) (int64, error)
	CountPendingByOfficer(ctx context.Context, officerID string) (int, error)
}

type OfficerStore interface {
	ListOfficersByDepartment(ctx context.Context, departmentID string) ([]model.Officer, error)
}
