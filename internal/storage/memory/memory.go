// Package memory is an in-memory implementation of the booking store
// interfaces, used by tests and local development. The conditional update
// mirrors the row-level compare-and-swap of the Postgres repositories: the
// value swap is atomic, but a ledger read followed by a swap is not, so
// concurrent callers genuinely race the way they do against the database.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/govbook/booking/internal/model"
	"github.com/govbook/booking/internal/slotledger"
)

var errAppointmentNotFound = errors.New("appointment not found")

type Store struct {
	mu           sync.Mutex
	users        map[string]bool
	services     map[string]model.Service
	officers     map[string][]model.Officer
	timeslots    map[string]model.Timeslot
	appointments map[string]model.Appointment
	seq          int64

	createErr error
	updateErr error
}

func NewStore() *Store {
	return &Store{
		users:        map[string]bool{},
		services:     map[string]model.Service{},
		officers:     map[string][]model.Officer{},
		timeslots:    map[string]model.Timeslot{},
		appointments: map[string]model.Appointment{},
	}
}

// Seeding helpers.

func (s *Store) AddUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = true
}

func (s *Store) AddService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *Store) AddOfficer(officer model.Officer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.officers[officer.DepartmentID] = append(s.officers[officer.DepartmentID], officer)
}

func (s *Store) AddTimeslot(ts model.Timeslot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeslots[ts.ID] = ts
}

func (s *Store) PutAppointment(appt model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[appt.ID] = appt
}

// Failure injection for the compensation paths.

func (s *Store) SetCreateError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

func (s *Store) SetConditionalUpdateError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

// slotledger.TimeslotStore / booking.TimeslotStore.

func (s *Store) ReadTimeslot(_ context.Context, timeslotID string) (model.Timeslot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.timeslots[timeslotID]
	if !ok {
		return model.Timeslot{}, slotledger.ErrTimeslotNotFound
	}
	return ts, nil
}

func (s *Store) ConditionalUpdateSlotsAvailable(_ context.Context, timeslotID string, expected, next int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	ts, ok := s.timeslots[timeslotID]
	if !ok || ts.SlotsAvailable != expected {
		return 0, nil
	}
	ts.SlotsAvailable = next
	s.timeslots[timeslotID] = ts
	return 1, nil
}

// booking.UserStore / ServiceStore / OfficerStore.

func (s *Store) UserExists(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID], nil
}

func (s *Store) ReadService(_ context.Context, serviceID string) (model.Service, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	return svc, ok, nil
}

func (s *Store) ListOfficersByDepartment(_ context.Context, departmentID string) ([]model.Officer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Officer, len(s.officers[departmentID]))
	copy(out, s.officers[departmentID])
	return out, nil
}

// booking.AppointmentStore.

func (s *Store) CreateAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return model.Appointment{}, s.createErr
	}
	s.appointments[appt.ID] = appt
	return appt, nil
}

func (s *Store) GetAppointment(_ context.Context, appointmentID string) (model.Appointment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[appointmentID]
	return appt, ok, nil
}

func (s *Store) FindActiveByUserAndTimeslot(_ context.Context, userID, timeslotID string) (model.Appointment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, appt := range s.appointments {
		if appt.UserID == userID && appt.TimeslotID == timeslotID && appt.Status != model.StatusCancelled {
			return appt, true, nil
		}
	}
	return model.Appointment{}, false, nil
}

func (s *Store) UpdateStatus(_ context.Context, appointmentID, status string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[appointmentID]
	if !ok {
		return model.Appointment{}, errAppointmentNotFound
	}
	appt.Status = status
	s.appointments[appointmentID] = appt
	return appt, nil
}

func (s *Store) MarkCancelled(_ context.Context, appointmentID, reason string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[appointmentID]
	if !ok {
		return model.Appointment{}, errAppointmentNotFound
	}
	now := time.Now().UTC()
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &now
	appt.CancelReason = reason
	s.appointments[appointmentID] = appt
	return appt, nil
}

func (s *Store) AssignOfficer(_ context.Context, appointmentID, officerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[appointmentID]
	if !ok {
		return errAppointmentNotFound
	}
	appt.OfficerID = &officerID
	s.appointments[appointmentID] = appt
	return nil
}

func (s *Store) NextSequence(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *Store) CountPendingByOfficer(_ context.Context, officerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, appt := range s.appointments {
		if appt.OfficerID != nil && *appt.OfficerID == officerID && appt.Status == model.StatusPending {
			count++
		}
	}
	return count, nil
}
