// Package handlers is the booking service's HTTP surface.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/auth"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/httpx"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/booking"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

// Bookings is the lifecycle API the handlers drive; *booking.Manager
// implements it.
type Bookings interface {
	AvailableSlots(ctx context.Context, ident auth.Identity, q booking.SlotQuery) ([]availability.Slot, error)
	PublicSlots(ctx context.Context, token string, date time.Time, staffID *uuid.UUID) ([]availability.Slot, error)
	CreateStaffBooking(ctx context.Context, ident auth.Identity, req booking.StaffBookingRequest) (model.Appointment, error)
	CreatePublicBooking(ctx context.Context, req booking.PublicBookingRequest) (booking.PublicBooking, error)
	Get(ctx context.Context, ident auth.Identity, id uuid.UUID) (model.Appointment, error)
	Confirm(ctx context.Context, ident auth.Identity, id uuid.UUID, staffID *uuid.UUID) (model.Appointment, error)
	Complete(ctx context.Context, ident auth.Identity, id uuid.UUID) (model.Appointment, error)
	MarkNoShow(ctx context.Context, ident auth.Identity, id uuid.UUID) (model.Appointment, error)
	Cancel(ctx context.Context, ident auth.Identity, id uuid.UUID, reason string) (model.Appointment, error)
	Reschedule(ctx context.Context, ident auth.Identity, id uuid.UUID, req booking.RescheduleRequest) (model.Appointment, error)
	LookupByManagementToken(ctx context.Context, token string) (model.Appointment, error)
	CancelByManagementToken(ctx context.Context, token, reason string) (model.Appointment, error)
}

var _ Bookings = (*booking.Manager)(nil)

type BookingHandler struct {
	bookings Bookings
	logger   *slog.Logger
	loc      *time.Location
}

func NewBookingHandler(bookings Bookings, logger *slog.Logger, loc *time.Location) *BookingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingHandler{bookings: bookings, logger: logger, loc: loc}
}

// Register mounts the staff routes behind requireStaff and the public routes
// behind publicLimit.
func (h *BookingHandler) Register(mux *http.ServeMux, requireStaff, publicLimit httpx.Middleware) {
	staff := func(fn http.HandlerFunc) http.Handler { return requireStaff(fn) }
	public := func(fn http.HandlerFunc) http.Handler { return publicLimit(fn) }

	mux.Handle("GET /api/v1/appointment-types/{id}/slots", staff(h.Slots))
	mux.Handle("POST /api/v1/appointments", staff(h.Create))
	mux.Handle("GET /api/v1/appointments/{id}", staff(h.Get))
	mux.Handle("POST /api/v1/appointments/{id}/confirm", staff(h.Confirm))
	mux.Handle("POST /api/v1/appointments/{id}/complete", staff(h.Complete))
	mux.Handle("POST /api/v1/appointments/{id}/no-show", staff(h.NoShow))
	mux.Handle("POST /api/v1/appointments/{id}/cancel", staff(h.Cancel))
	mux.Handle("POST /api/v1/appointments/{id}/reschedule", staff(h.Reschedule))

	mux.Handle("GET /api/v1/public/booking/{token}/slots", public(h.PublicSlots))
	mux.Handle("POST /api/v1/public/booking/{token}", public(h.PublicCreate))
	mux.Handle("GET /api/v1/public/bookings/{managementToken}", public(h.PublicLookup))
	mux.Handle("POST /api/v1/public/bookings/{managementToken}/cancel", public(h.PublicCancel))
}

func (h *BookingHandler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
	}
	return ident, ok
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identity(w, r)
	if !ok {
		return
	}
	typeID, ok := parseUUID(r.PathValue("id"))
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid appointment type id")
		return
	}
	date, err := availability.ParseDate(r.URL.Query().Get("date"), h.loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	staffID, ok := optionalUUID(r.URL.Query().Get("staff_id"))
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid staff_id")
		return
	}
	businessID, ok := optionalUUID(r.URL.Query().Get("business_id"))
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid business_id")
		return
	}

	slots, err := h.bookings.AvailableSlots(r.Context(), ident, booking.SlotQuery{
		AppointmentTypeID: typeID,
		BusinessID:        businessID,
		StaffID:           staffID,
		Date:              date,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSlotsResponse(date, slots, h.loc))
}

type createBookingRequest struct {
	BusinessID        string `json:"business_id"`
	AppointmentTypeID string `json:"appointment_type_id"`
	ScheduledAt       string `json:"scheduled_at"`
	DurationMinutes   int    `json:"duration_minutes"`
	StaffID           string `json:"staff_id"`
	ClientID          string `json:"client_id"`
	BookerName        string `json:"booker_name"`
	BookerEmail       string `json:"booker_email"`
	BookerPhone       string `json:"booker_phone"`
	LocationType      string `json:"location_type"`
	LocationAddress   string `json:"location_address"`
	Notes             string `json:"notes"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	businessID, ok := parseUUID(req.BusinessID)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid business_id")
		return
	}
	typeID, ok := parseUUID(req.AppointmentTypeID)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid appointment_type_id")
		return
	}
	start, ok := parseTime(req.ScheduledAt)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid scheduled_at")
		return
	}
	staffID, ok := optionalUUID(req.StaffID)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid staff_id")
		return
	}
	clientID, ok := optionalUUID(req.ClientID)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid client_id")
		return
	}

	appt, err := h.bookings.CreateStaffBooking(r.Context(), ident, booking.StaffBookingRequest{
		BusinessID:        businessID,
		AppointmentTypeID: typeID,
		ScheduledAt:       start,
		DurationMinutes:   req.DurationMinutes,
		StaffID:           staffID,
		ClientID:          clientID,
		BookerName:        req.BookerName,
		BookerEmail:       req.BookerEmail,
		BookerPhone:       req.BookerPhone,
		LocationType:      req.LocationType,
		LocationAddress:   req.LocationAddress,
		Notes:             req.Notes,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt, h.loc))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, func(ident auth.Identity, id uuid.UUID) (model.Appointment, error) {
		return h.bookings.Get(r.Context(), ident, id)
	})
}

type confirmRequest struct {
	StaffID string `json:"staff_id"`
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	staffID, ok := optionalUUID(req.StaffID)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid staff_id")
		return
	}
	h.withAppointment(w, r, func(ident auth.Identity, id uuid.UUID) (model.Appointment, error) {
		return h.bookings.Confirm(r.Context(), ident, id, staffID)
	})
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, func(ident auth.Identity, id uuid.UUID) (model.Appointment, error) {
		return h.bookings.Complete(r.Context(), ident, id)
	})
}

func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, func(ident auth.Identity, id uuid.UUID) (model.Appointment, error) {
		return h.bookings.MarkNoShow(r.Context(), ident, id)
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	h.withAppointment(w, r, func(ident auth.Identity, id uuid.UUID) (model.Appointment, error) {
		return h.bookings.Cancel(r.Context(), ident, id, req.Reason)
	})
}

type rescheduleRequest struct {
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
	StaffID         string `json:"staff_id"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	start, ok := parseTime(req.ScheduledAt)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid scheduled_at")
		return
	}
	staffID, ok := optionalUUID(req.StaffID)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid staff_id")
		return
	}
	h.withAppointment(w, r, func(ident auth.Identity, id uuid.UUID) (model.Appointment, error) {
		return h.bookings.Reschedule(r.Context(), ident, id, booking.RescheduleRequest{
			ScheduledAt:     start,
			DurationMinutes: req.DurationMinutes,
			StaffID:         staffID,
		})
	})
}

func (h *BookingHandler) withAppointment(w http.ResponseWriter, r *http.Request, fn func(auth.Identity, uuid.UUID) (model.Appointment, error)) {
	ident, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, ok := parseUUID(r.PathValue("id"))
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	appt, err := fn(ident, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt, h.loc))
}

// decodeOptional accepts an empty body as the zero request.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := httpx.DecodeJSON(r, dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
