package model

import "time"

const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Appointment is one citizen's claim on one unit of a timeslot's capacity.
// While not cancelled it corresponds to exactly one reserved unit; a cancelled
// appointment corresponds to zero (capacity already released).
type Appointment struct {
	ID               string
	UserID           string
	ServiceID        string
	TimeslotID       string
	OfficerID        *string
	SequenceNumber   int64
	BookingReference string
	Status           string
	QRPayload        string
	CreatedAt        time.Time
	CancelledAt      *time.Time
	CancelReason     string
}

var statusTransitions = map[string][]string{
	StatusPending:    {StatusConfirmed, StatusInProgress, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func ValidStatus(status string) bool {
	_, ok := statusTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TerminalStatus reports whether no further status change is permitted.
func TerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}
