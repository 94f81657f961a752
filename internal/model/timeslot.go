package model

import "time"

// Timeslot is a dated, capacity-bounded bookable window of a service.
// SlotsAvailable is owned by the slot ledger: it moves only through the
// conditional reserve/release updates and stays within [0, Capacity].
type Timeslot struct {
	ID             string
	ServiceID      string
	StartTime      time.Time
	EndTime        time.Time
	Capacity       int
	SlotsAvailable int
}
