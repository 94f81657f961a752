package booking

import "errors"

// Code identifies a booking failure to callers. The controller layer maps
// these to HTTP statuses; the messages are safe to show to citizens.
type Code string

const (
	CodeSlotUnavailable  Code = "SLOT_UNAVAILABLE"
	CodePastTimeslot     Code = "PAST_TIMESLOT"
	CodeConcurrencyError Code = "CONCURRENCY_ERROR"
	CodeUserNotFound     Code = "USER_NOT_FOUND"
	CodeServiceNotFound  Code = "SERVICE_NOT_FOUND"
	CodeTimeslotNotFound Code = "TIMESLOT_NOT_FOUND"
	CodeDuplicateBooking Code = "DUPLICATE_BOOKING"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeUnknown          Code = "UNKNOWN_ERROR"
)

type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the booking code from err, or CodeUnknown for anything
// that did not originate here.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeUnknown
}
