package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/govbook/booking/internal/model"
	"github.com/govbook/booking/internal/slotledger"
)

// SlotLedger is the capacity interface the coordinator books against.
type SlotLedger interface {
	Reserve(ctx context.Context, timeslotID string) (int, error)
	Release(ctx context.Context, timeslotID string) (int, error)
}

// Coordinator orchestrates booking and cancellation as compensating-action
// sequences. Every appointment creation is paired with exactly one prior
// successful reserve; every transition into cancelled is paired with exactly
// one release. Keeping that 1:1 pairing intact is the whole job.
type Coordinator struct {
	validator    *Validator
	ledger       SlotLedger
	services     ServiceStore
	appointments AppointmentStore
	officers     OfficerStore
	logger       *slog.Logger
	now          func() time.Time
}

func NewCoordinator(validator *Validator, ledger SlotLedger, services ServiceStore, appointments AppointmentStore, officers OfficerStore, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		validator:    validator,
		ledger:       ledger,
		services:     services,
		appointments: appointments,
		officers:     officers,
		logger:       logger,
		now:          time.Now,
	}
}

type BookRequest struct {
	UserID     string
	ServiceID  string
	TimeslotID string
	// OfficerID pins the appointment to a specific officer. When empty the
	// coordinator auto-assigns the least-loaded officer of the department.
	OfficerID string
}

// Book runs the two-phase protocol: validate, reserve a slot, create the
// appointment record, and release the slot again if the record cannot be
// created. Officer assignment happens last and never rolls anything back.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	if err := c.validator.Validate(ctx, req.UserID, req.ServiceID, req.TimeslotID); err != nil {
		return model.Appointment{}, err
	}

	if _, err := c.ledger.Reserve(ctx, req.TimeslotID); err != nil {
		return model.Appointment{}, reserveError(err)
	}

	// One reserved unit is held from here on. Any failure before the
	// appointment record exists must give it back.
	seq, err := c.appointments.NextSequence(ctx)
	if err != nil {
		c.compensateReserve(ctx, req.TimeslotID, err)
		return model.Appointment{}, wrapError(CodeUnknown, "booking sequence allocation failed", err)
	}

	now := c.now().UTC()
	ref := NewBookingReference(seq, now)
	appt := model.Appointment{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		ServiceID:        req.ServiceID,
		TimeslotID:       req.TimeslotID,
		SequenceNumber:   seq,
		BookingReference: ref,
		Status:           model.StatusPending,
		CreatedAt:        now,
	}
	appt.QRPayload = qrPayload(appt.ID, ref, req.UserID)
	if req.OfficerID != "" {
		officerID := req.OfficerID
		appt.OfficerID = &officerID
	}

	created, err := c.appointments.CreateAppointment(ctx, appt)
	if err != nil {
		c.compensateReserve(ctx, req.TimeslotID, err)
		return model.Appointment{}, wrapError(CodeUnknown, "appointment creation failed", err)
	}

	if req.OfficerID == "" {
		c.autoAssignOfficer(ctx, &created)
	}

	c.logger.Info("appointment booked",
		"appointment_id", created.ID,
		"booking_reference", created.BookingReference,
		"timeslot_id", created.TimeslotID,
	)
	return created, nil
}

// Cancel marks the appointment cancelled and returns its capacity unit.
// The status change is not rolled back if the release fails: the appointment
// correctly reflects cancellation and only the counter is stale, which is
// reported for manual reconciliation.
func (c *Coordinator) Cancel(ctx context.Context, appointmentID, reason string) (model.Appointment, error) {
	appt, found, err := c.appointments.GetAppointment(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, wrapError(CodeUnknown, "appointment lookup failed", err)
	}
	if !found {
		return model.Appointment{}, newError(CodeNotFound, "appointment not found")
	}
	if model.TerminalStatus(appt.Status) {
		return model.Appointment{}, newError(CodeInvalidState,
			fmt.Sprintf("appointment is %s and cannot be cancelled", appt.Status))
	}

	cancelled, err := c.appointments.MarkCancelled(ctx, appointmentID, reason)
	if err != nil {
		return model.Appointment{}, wrapError(CodeUnknown, "appointment cancellation failed", err)
	}

	if _, err := c.ledger.Release(ctx, appt.TimeslotID); err != nil {
		c.logger.Warn("slot release after cancellation failed, counter needs manual reconciliation",
			"appointment_id", appointmentID,
			"timeslot_id", appt.TimeslotID,
			"err", err,
		)
	}

	c.logger.Info("appointment cancelled", "appointment_id", appointmentID, "reason", reason)
	return cancelled, nil
}

// UpdateStatus moves an appointment along the status machine. Transitions
// into cancelled are rejected here: they carry a capacity release and must go
// through Cancel.
func (c *Coordinator) UpdateStatus(ctx context.Context, appointmentID, status string) (model.Appointment, error) {
	if !model.ValidStatus(status) {
		return model.Appointment{}, newError(CodeInvalidState, fmt.Sprintf("unknown status %q", status))
	}
	if status == model.StatusCancelled {
		return model.Appointment{}, newError(CodeInvalidState, "cancellation must go through Cancel")
	}

	appt, found, err := c.appointments.GetAppointment(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, wrapError(CodeUnknown, "appointment lookup failed", err)
	}
	if !found {
		return model.Appointment{}, newError(CodeNotFound, "appointment not found")
	}
	if !model.CanTransition(appt.Status, status) {
		return model.Appointment{}, newError(CodeInvalidState,
			fmt.Sprintf("cannot move appointment from %s to %s", appt.Status, status))
	}

	updated, err := c.appointments.UpdateStatus(ctx, appointmentID, status)
	if err != nil {
		return model.Appointment{}, wrapError(CodeUnknown, "status update failed", err)
	}
	return updated, nil
}

// compensateReserve gives a reserved unit back after a failed create. A
// failure here is the worst case this subsystem knows: the unit is lost with
// no appointment holding it and no automatic recovery, so it is logged at
// Error with capacity_lost for alerting.
func (c *Coordinator) compensateReserve(ctx context.Context, timeslotID string, cause error) {
	if _, err := c.ledger.Release(ctx, timeslotID); err != nil {
		c.logger.Error("compensating release failed, capacity unit permanently lost",
			"capacity_lost", true,
			"timeslot_id", timeslotID,
			"create_err", cause,
			"release_err", err,
		)
		return
	}
	c.logger.Info("released reserved slot after failed appointment create",
		"timeslot_id", timeslotID,
		"err", cause,
	)
}

// autoAssignOfficer picks the department officer with the fewest pending
// appointments, first one winning ties in store order. Best effort: any
// failure leaves the appointment unassigned for the officer-management flow
// to pick up later.
func (c *Coordinator) autoAssignOfficer(ctx context.Context, appt *model.Appointment) {
	svc, ok, err := c.services.ReadService(ctx, appt.ServiceID)
	if err != nil || !ok {
		c.logger.Warn("officer auto-assignment skipped, service lookup failed", "service_id", appt.ServiceID, "err", err)
		return
	}

	officers, err := c.officers.ListOfficersByDepartment(ctx, svc.DepartmentID)
	if err != nil {
		c.logger.Warn("officer auto-assignment skipped, officer lookup failed", "department_id", svc.DepartmentID, "err", err)
		return
	}
	if len(officers) == 0 {
		return
	}

	var best string
	bestPending := -1
	for _, officer := range officers {
		pending, err := c.appointments.CountPendingByOfficer(ctx, officer.ID)
		if err != nil {
			c.logger.Warn("officer auto-assignment skipped, pending count failed", "officer_id", officer.ID, "err", err)
			return
		}
		if bestPending < 0 || pending < bestPending {
			best = officer.ID
			bestPending = pending
		}
	}

	if err := c.appointments.AssignOfficer(ctx, appt.ID, best); err != nil {
		c.logger.Warn("officer auto-assignment failed", "appointment_id", appt.ID, "officer_id", best, "err", err)
		return
	}
	appt.OfficerID = &best
}

func reserveError(err error) error {
	switch {
	case errors.Is(err, slotledger.ErrSlotUnavailable):
		return wrapError(CodeSlotUnavailable, "timeslot is fully booked, please pick another time", err)
	case errors.Is(err, slotledger.ErrPastTimeslot):
		return wrapError(CodePastTimeslot, "timeslot has already started", err)
	case errors.Is(err, slotledger.ErrConcurrencyExhausted):
		return wrapError(CodeConcurrencyError, "timeslot was just booked by someone else, please pick another time", err)
	case errors.Is(err, slotledger.ErrTimeslotNotFound):
		return wrapError(CodeTimeslotNotFound, "timeslot not found", err)
	default:
		return wrapError(CodeUnknown, "slot reservation failed", err)
	}
}
