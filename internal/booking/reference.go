package booking

import (
	"encoding/json"
	"fmt"
	"time"
)

// NewBookingReference builds the human-facing code printed on confirmations,
// e.g. "GOV-20260828-000123". The sequence number keeps it unique; the date
// makes it easy for counter staff to eyeball.
func NewBookingReference(seq int64, t time.Time) string {
	return fmt.Sprintf("GOV-%s-%06d", t.UTC().Format("20060102"), seq)
}

// qrPayload is the string encoded into the appointment QR code scanned at
// the department counter.
func qrPayload(appointmentID, bookingReference, userID string) string {
	b, err := json.Marshal(map[string]string{
		"appointment_id": appointmentID,
		"reference":      bookingReference,
		"user_id":        userID,
	})
	if err != nil {
		return bookingReference
	}
	return string(b)
}
