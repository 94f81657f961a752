package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/govbook/booking/internal/booking"
	"github.com/govbook/booking/internal/model"
)

// EventRecorder receives lifecycle notifications after a booking operation
// has succeeded. Implemented by the outbox recorder; nil disables events.
type EventRecorder interface {
	AppointmentBooked(ctx context.Context, appt model.Appointment)
	AppointmentCancelled(ctx context.Context, appt model.Appointment)
}

type BookingHandler struct {
	coordinator *booking.Coordinator
	events      EventRecorder
	logger      *slog.Logger
}

func NewBookingHandler(coordinator *booking.Coordinator, events EventRecorder, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{coordinator: coordinator, events: events, logger: logger}
}

type bookRequest struct {
	UserID     string `json:"user_id"`
	ServiceID  string `json:"service_id"`
	TimeslotID string `json:"timeslot_id"`
	OfficerID  string `json:"officer_id"`
}

type appointmentResponse struct {
	AppointmentID    string `json:"appointment_id"`
	BookingReference string `json:"booking_reference"`
	SequenceNumber   int64  `json:"sequence_number"`
	Status           string `json:"status"`
	OfficerID        string `json:"officer_id,omitempty"`
	QRPayload        string `json:"qr_payload,omitempty"`
	CreatedAt        string `json:"created_at"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.TimeslotID = strings.TrimSpace(req.TimeslotID)
	req.OfficerID = strings.TrimSpace(req.OfficerID)
	if req.UserID == "" || req.ServiceID == "" || req.TimeslotID == "" {
		http.Error(w, "user_id, service_id and timeslot_id are required", http.StatusBadRequest)
		return
	}

	appt, err := h.coordinator.Book(r.Context(), booking.BookRequest{
		UserID:     req.UserID,
		ServiceID:  req.ServiceID,
		TimeslotID: req.TimeslotID,
		OfficerID:  req.OfficerID,
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	if h.events != nil {
		h.events.AppointmentBooked(r.Context(), appt)
	}

	resp := appointmentResponse{
		AppointmentID:    appt.ID,
		BookingReference: appt.BookingReference,
		SequenceNumber:   appt.SequenceNumber,
		Status:           appt.Status,
		QRPayload:        appt.QRPayload,
		CreatedAt:        appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.OfficerID != nil {
		resp.OfficerID = *appt.OfficerID
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	appt, err := h.coordinator.Cancel(r.Context(), req.AppointmentID, req.Reason)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	if h.events != nil {
		h.events.AppointmentCancelled(r.Context(), appt)
	}

	resp := cancelResponse{
		AppointmentID: appt.ID,
		Status:        appt.Status,
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) writeBookingError(w http.ResponseWriter, err error) {
	var be *booking.Error
	if !errors.As(err, &be) {
		h.logger.Error("booking operation failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    string(booking.CodeUnknown),
			Message: "internal error",
		})
		return
	}
	if be.Code == booking.CodeUnknown {
		h.logger.Error("booking operation failed", "err", err)
	}
	writeJSON(w, statusForCode(be.Code), errorResponse{
		Code:    string(be.Code),
		Message: be.Message,
	})
}

func statusForCode(code booking.Code) int {
	switch code {
	case booking.CodeUserNotFound, booking.CodeServiceNotFound, booking.CodeTimeslotNotFound, booking.CodeNotFound:
		return http.StatusNotFound
	case booking.CodeSlotUnavailable, booking.CodeConcurrencyError, booking.CodeDuplicateBooking, booking.CodeInvalidState:
		return http.StatusConflict
	case booking.CodePastTimeslot:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
