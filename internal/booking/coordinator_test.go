package booking_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/govbook/booking/internal/booking"
	"github.com/govbook/booking/internal/model"
	"github.com/govbook/booking/internal/slotledger"
	"github.com/govbook/booking/internal/storage/memory"
)

type testEnv struct {
	store       *memory.Store
	coordinator *booking.Coordinator
}

func newTestEnv(t *testing.T, capacity, available int) *testEnv {
	t.Helper()
	store := memory.NewStore()
	store.AddUser("user-1")
	store.AddService(model.Service{ID: "svc-1", DepartmentID: "dept-1", Name: "Passport Renewal"})
	start := time.Now().Add(48 * time.Hour)
	store.AddTimeslot(model.Timeslot{
		ID:             "ts-1",
		ServiceID:      "svc-1",
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Capacity:       capacity,
		SlotsAvailable: available,
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := slotledger.NewWithConfig(store, logger, slotledger.Config{
		MaxAttempts: 10,
		Backoff:     func(int) time.Duration { return time.Millisecond },
	})
	validator := booking.NewValidator(store, store, store, store)
	return &testEnv{
		store:       store,
		coordinator: booking.NewCoordinator(validator, ledger, store, store, store, logger),
	}
}

func (e *testEnv) available(t *testing.T, timeslotID string) int {
	t.Helper()
	ts, err := e.store.ReadTimeslot(context.Background(), timeslotID)
	if err != nil {
		t.Fatalf("ReadTimeslot failed: %v", err)
	}
	return ts.SlotsAvailable
}

func TestBookSuccess(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	appt, err := env.coordinator.Book(context.Background(), booking.BookRequest{
		UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-1",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.Status != model.StatusPending {
		t.Fatalf("expected pending appointment, got %s", appt.Status)
	}
	if appt.SequenceNumber == 0 {
		t.Fatal("expected a sequence number")
	}
	wantPrefix := "GOV-" + time.Now().UTC().Format("20060102")
	if !strings.HasPrefix(appt.BookingReference, wantPrefix) {
		t.Fatalf("unexpected booking reference %q", appt.BookingReference)
	}
	if appt.QRPayload == "" {
		t.Fatal("expected a QR payload")
	}
	if got := env.available(t, "ts-1"); got != 1 {
		t.Fatalf("expected 1 slot remaining, got %d", got)
	}
}

func TestBookUnavailableSlot(t *testing.T) {
	env := newTestEnv(t, 1, 0)
	_, err := env.coordinator.Book(context.Background(), booking.BookRequest{
		UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-1",
	})
	if got := booking.CodeOf(err); got != booking.CodeSlotUnavailable {
		t.Fatalf("expected SLOT_UNAVAILABLE, got %s (%v)", got, err)
	}
	if got := env.available(t, "ts-1"); got != 0 {
		t.Fatalf("counter must not move, got %d", got)
	}
}

func TestBookPastTimeslot(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	start := time.Now().Add(-time.Hour)
	env.store.AddTimeslot(model.Timeslot{
		ID:             "ts-past",
		ServiceID:      "svc-1",
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Capacity:       2,
		SlotsAvailable: 2,
	})
	_, err := env.coordinator.Book(context.Background(), booking.BookRequest{
		UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-past",
	})
	if got := booking.CodeOf(err); got != booking.CodePastTimeslot {
		t.Fatalf("expected PAST_TIMESLOT, got %s (%v)", got, err)
	}
	if got := env.available(t, "ts-past"); got != 2 {
		t.Fatalf("counter must not move for a past timeslot, got %d", got)
	}
}

func TestBookDuplicateDoesNotDoubleDecrement(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	ctx := context.Background()
	req := booking.BookRequest{UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-1"}

	if _, err := env.coordinator.Book(ctx, req); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	_, err := env.coordinator.Book(ctx, req)
	if got := booking.CodeOf(err); got != booking.CodeDuplicateBooking {
		t.Fatalf("expected DUPLICATE_BOOKING, got %s (%v)", got, err)
	}
	if got := env.available(t, "ts-1"); got != 1 {
		t.Fatalf("duplicate attempt must not decrement again, got %d", got)
	}
}

func TestBookCompensatesWhenCreateFails(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	env.store.SetCreateError(errors.New("insert failed"))

	_, err := env.coordinator.Book(context.Background(), booking.BookRequest{
		UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-1",
	})
	if got := booking.CodeOf(err); got != booking.CodeUnknown {
		t.Fatalf("expected UNKNOWN_ERROR, got %s (%v)", got, err)
	}
	// The reserved unit must have been released again.
	if got := env.available(t, "ts-1"); got != 2 {
		t.Fatalf("expected counter restored to 2 after compensation, got %d", got)
	}
}

func TestBookValidationFailuresLeaveCounterAlone(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	_, err := env.coordinator.Book(context.Background(), booking.BookRequest{
		UserID: "nobody", ServiceID: "svc-1", TimeslotID: "ts-1",
	})
	if got := booking.CodeOf(err); got != booking.CodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %s (%v)", got, err)
	}
	if got := env.available(t, "ts-1"); got != 2 {
		t.Fatalf("validation failure must not touch the counter, got %d", got)
	}
}

func TestBookAutoAssignsLeastLoadedOfficer(t *testing.T) {
	env := newTestEnv(t, 5, 5)
	env.store.AddOfficer(model.Officer{ID: "off-1", DepartmentID: "dept-1", Name: "Officer One"})
	env.store.AddOfficer(model.Officer{ID: "off-2", DepartmentID: "dept-1", Name: "Officer Two"})
	busy := "off-1"
	for i := 0; i < 2; i++ {
		env.store.PutAppointment(model.Appointment{
			ID:         fmt.Sprintf("busy-%d", i),
			UserID:     "other",
			ServiceID:  "svc-1",
			TimeslotID: "ts-other",
			OfficerID:  &busy,
			Status:     model.StatusPending,
		})
	}

	appt, err := env.coordinator.Book(context.Background(), booking.BookRequest{
		UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-1",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.OfficerID == nil || *appt.OfficerID != "off-2" {
		t.Fatalf("expected least-loaded officer off-2, got %v", appt.OfficerID)
	}
}

func TestBookOfficerTieBreakIsFirstListed(t *testing.T) {
	env := newTestEnv(t, 5, 5)
	env.store.AddOfficer(model.Officer{ID: "off-1", DepartmentID: "dept-1", Name: "Officer One"})
	env.store.AddOfficer(model.Officer{ID: "off-2", DepartmentID: "dept-1", Name: "Officer Two"})

	appt, err := env.coordinator.Book(context.Background(), booking.BookRequest{
		UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-1",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.OfficerID == nil || *appt.OfficerID != "off-1" {
		t.Fatalf("expected first officer on a tie, got %v", appt.OfficerID)
	}
}

func TestBookKeepsPinnedOfficer(t *testing.T) {
	env := newTestEnv(t, 5, 5)
	env.store.AddOfficer(model.Officer{ID: "off-1", DepartmentID: "dept-1", Name: "Officer One"})

	appt, err := env.coordinator.Book(context.Background(), booking.BookRequest{
		UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-1", OfficerID: "off-9",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.OfficerID == nil || *appt.OfficerID != "off-9" {
		t.Fatalf("pinned officer must be kept, got %v", appt.OfficerID)
	}
}

func TestCancelReleasesSlot(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	ctx := context.Background()

	appt, err := env.coordinator.Book(ctx, booking.BookRequest{
		UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-1",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if got := env.available(t, "ts-1"); got != 1 {
		t.Fatalf("expected 1 slot after booking, got %d", got)
	}

	cancelled, err := env.coordinator.Cancel(ctx, appt.ID, "changed plans")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("expected cancellation timestamp")
	}
	if got := env.available(t, "ts-1"); got != 2 {
		t.Fatalf("expected counter restored to 2 after cancel, got %d", got)
	}
}

func TestCancelTerminalAppointment(t *testing.T) {
	for _, status := range []string{model.StatusCompleted, model.StatusCancelled} {
		t.Run(status, func(t *testing.T) {
			env := newTestEnv(t, 2, 1)
			env.store.PutAppointment(model.Appointment{
				ID:         "appt-1",
				UserID:     "user-1",
				ServiceID:  "svc-1",
				TimeslotID: "ts-1",
				Status:     status,
			})

			_, err := env.coordinator.Cancel(context.Background(), "appt-1", "too late")
			if got := booking.CodeOf(err); got != booking.CodeInvalidState {
				t.Fatalf("expected INVALID_STATE, got %s (%v)", got, err)
			}
			if !strings.Contains(err.Error(), status) {
				t.Fatalf("error should name the current status, got %q", err.Error())
			}
			// No release may have happened.
			if got := env.available(t, "ts-1"); got != 1 {
				t.Fatalf("terminal cancel must not release, got %d", got)
			}
		})
	}
}

func TestCancelUnknownAppointment(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	_, err := env.coordinator.Cancel(context.Background(), "missing", "")
	if got := booking.CodeOf(err); got != booking.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s (%v)", got, err)
	}
}

func TestCancelSurvivesReleaseFailure(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	ctx := context.Background()

	appt, err := env.coordinator.Book(ctx, booking.BookRequest{
		UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-1",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	// The appointment must end up cancelled even when the counter cannot be
	// returned; the divergence is reported, not rolled back.
	env.store.SetConditionalUpdateError(errors.New("connection reset"))
	cancelled, err := env.coordinator.Cancel(ctx, appt.ID, "changed plans")
	if err != nil {
		t.Fatalf("Cancel must succeed despite release failure: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}
	env.store.SetConditionalUpdateError(nil)
	if got := env.available(t, "ts-1"); got != 1 {
		t.Fatalf("counter should still reflect the failed release, got %d", got)
	}
}

func TestUpdateStatusFollowsTransitionTable(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	ctx := context.Background()

	appt, err := env.coordinator.Book(ctx, booking.BookRequest{
		UserID: "user-1", ServiceID: "svc-1", TimeslotID: "ts-1",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	updated, err := env.coordinator.UpdateStatus(ctx, appt.ID, model.StatusConfirmed)
	if err != nil {
		t.Fatalf("pending -> confirmed should be allowed: %v", err)
	}
	if updated.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}

	if _, err := env.coordinator.UpdateStatus(ctx, appt.ID, model.StatusCompleted); booking.CodeOf(err) != booking.CodeInvalidState {
		t.Fatalf("confirmed -> completed must be rejected, got %v", err)
	}
	if _, err := env.coordinator.UpdateStatus(ctx, appt.ID, model.StatusCancelled); booking.CodeOf(err) != booking.CodeInvalidState {
		t.Fatalf("cancellation through UpdateStatus must be rejected, got %v", err)
	}
	if _, err := env.coordinator.UpdateStatus(ctx, appt.ID, "archived"); booking.CodeOf(err) != booking.CodeInvalidState {
		t.Fatalf("unknown status must be rejected, got %v", err)
	}
}

func TestSingleSlotRace(t *testing.T) {
	env := newTestEnv(t, 1, 1)
	const workers = 6
	for i := 0; i < workers; i++ {
		env.store.AddUser(fmt.Sprintf("user-%d", i))
	}

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.coordinator.Book(context.Background(), booking.BookRequest{
				UserID:     fmt.Sprintf("user-%d", n),
				ServiceID:  "svc-1",
				TimeslotID: "ts-1",
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		switch booking.CodeOf(err) {
		case booking.CodeSlotUnavailable, booking.CodeConcurrencyError:
		default:
			t.Fatalf("unexpected failure under contention: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly 1 successful booking, got %d", successes)
	}
	if got := env.available(t, "ts-1"); got != 0 {
		t.Fatalf("expected counter drained to 0, got %d", got)
	}
}
