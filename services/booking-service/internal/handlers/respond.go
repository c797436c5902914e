package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/httpx"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/booking"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

type appointmentResponse struct {
	ID                 string  `json:"id"`
	BusinessID         string  `json:"business_id"`
	AppointmentTypeID  string  `json:"appointment_type_id"`
	ScheduledAt        string  `json:"scheduled_at"`
	EndAt              string  `json:"end_at"`
	DurationMinutes    int     `json:"duration_minutes"`
	LocationType       string  `json:"location_type"`
	LocationAddress    string  `json:"location_address,omitempty"`
	StaffID            *string `json:"staff_id,omitempty"`
	ClientID           *string `json:"client_id,omitempty"`
	BookerName         string  `json:"booker_name,omitempty"`
	BookerEmail        string  `json:"booker_email,omitempty"`
	BookerPhone        string  `json:"booker_phone,omitempty"`
	Notes              string  `json:"notes,omitempty"`
	Status             string  `json:"status"`
	IsPublic           bool    `json:"is_public"`
	ConfirmedAt        string  `json:"confirmed_at,omitempty"`
	CancelledAt        string  `json:"cancelled_at,omitempty"`
	CancellationReason string  `json:"cancellation_reason,omitempty"`
	CompletedAt        string  `json:"completed_at,omitempty"`
}

func toAppointmentResponse(a model.Appointment, loc *time.Location) appointmentResponse {
	return appointmentResponse{
		ID:                 a.ID.String(),
		BusinessID:         a.BusinessID.String(),
		AppointmentTypeID:  a.AppointmentTypeID.String(),
		ScheduledAt:        a.ScheduledAt.In(loc).Format(time.RFC3339),
		EndAt:              a.EndAt.In(loc).Format(time.RFC3339),
		DurationMinutes:    a.DurationMinutes,
		LocationType:       a.LocationType,
		LocationAddress:    a.LocationAddress,
		StaffID:            uuidString(a.StaffID),
		ClientID:           uuidString(a.ClientID),
		BookerName:         a.BookerName,
		BookerEmail:        a.BookerEmail,
		BookerPhone:        a.BookerPhone,
		Notes:              a.Notes,
		Status:             string(a.Status),
		IsPublic:           a.IsPublic,
		ConfirmedAt:        timeString(a.ConfirmedAt, loc),
		CancelledAt:        timeString(a.CancelledAt, loc),
		CancellationReason: a.CancellationReason,
		CompletedAt:        timeString(a.CompletedAt, loc),
	}
}

// publicAppointmentResponse is what a management token holder may see.
type publicAppointmentResponse struct {
	ID              string `json:"id"`
	ScheduledAt     string `json:"scheduled_at"`
	EndAt           string `json:"end_at"`
	DurationMinutes int    `json:"duration_minutes"`
	LocationType    string `json:"location_type"`
	LocationAddress string `json:"location_address,omitempty"`
	Status          string `json:"status"`
	BookerName      string `json:"booker_name"`
}

func toPublicAppointmentResponse(a model.Appointment, loc *time.Location) publicAppointmentResponse {
	return publicAppointmentResponse{
		ID:              a.ID.String(),
		ScheduledAt:     a.ScheduledAt.In(loc).Format(time.RFC3339),
		EndAt:           a.EndAt.In(loc).Format(time.RFC3339),
		DurationMinutes: a.DurationMinutes,
		LocationType:    a.LocationType,
		LocationAddress: a.LocationAddress,
		Status:          string(a.Status),
		BookerName:      a.BookerName,
	}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

type slotsResponse struct {
	Date  string     `json:"date"`
	Slots []slotItem `json:"slots"`
}

func toSlotsResponse(date time.Time, slots []availability.Slot, loc *time.Location) slotsResponse {
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.In(loc).Format(time.RFC3339),
			EndTime:   s.End.In(loc).Format(time.RFC3339),
			Available: s.Available,
		})
	}
	return slotsResponse{Date: date.Format(time.DateOnly), Slots: items}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func timeString(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(time.RFC3339)
}

// writeError maps booking errors to status codes. Messages of user errors
// are surfaced verbatim; anything else is logged and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var e *booking.Error
	if !errors.As(err, &e) {
		logger.Error("request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, booking.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, booking.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, booking.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, booking.ErrConflict):
		status = http.StatusConflict
	}
	httpx.WriteError(w, status, e.Message)
}

func parseUUID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	return id, err == nil
}

// optionalUUID parses an optional id; ok is false only for a malformed value.
func optionalUUID(raw string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

func parseTime(raw string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, raw)
	return t, err == nil
}
