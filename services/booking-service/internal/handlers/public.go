package handlers

import (
	"net/http"

	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/httpx"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/booking"
)

func (h *BookingHandler) PublicSlots(w http.ResponseWriter, r *http.Request) {
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
	slots, err := h.bookings.PublicSlots(r.Context(), r.PathValue("token"), date, staffID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSlotsResponse(date, slots, h.loc))
}

type publicBookingRequest struct {
	ScheduledAt string `json:"scheduled_at"`
	StaffID     string `json:"staff_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Notes       string `json:"notes"`
}

type publicBookingResponse struct {
	Appointment     publicAppointmentResponse `json:"appointment"`
	ManagementToken string                    `json:"management_token"`
}

func (h *BookingHandler) PublicCreate(w http.ResponseWriter, r *http.Request) {
	var req publicBookingRequest
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

	res, err := h.bookings.CreatePublicBooking(r.Context(), booking.PublicBookingRequest{
		Token:       r.PathValue("token"),
		ScheduledAt: start,
		StaffID:     staffID,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, publicBookingResponse{
		Appointment:     toPublicAppointmentResponse(res.Appointment, h.loc),
		ManagementToken: res.ManagementToken,
	})
}

func (h *BookingHandler) PublicLookup(w http.ResponseWriter, r *http.Request) {
	appt, err := h.bookings.LookupByManagementToken(r.Context(), r.PathValue("managementToken"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPublicAppointmentResponse(appt, h.loc))
}

func (h *BookingHandler) PublicCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	appt, err := h.bookings.CancelByManagementToken(r.Context(), r.PathValue("managementToken"), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPublicAppointmentResponse(appt, h.loc))
}
