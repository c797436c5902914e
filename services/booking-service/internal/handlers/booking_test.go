package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/auth"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/httpx"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/booking"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

const testSecret = "handler-test-secret"

type fakeBookings struct {
	appt      model.Appointment
	slots     []availability.Slot
	err       error
	lastIdent auth.Identity
	lastQuery booking.SlotQuery
	lastStaff booking.StaffBookingRequest
	lastPub   booking.PublicBookingRequest
	lastToken string
	lastDate  time.Time
	reason    string
	resched   booking.RescheduleRequest
}

func (f *fakeBookings) AvailableSlots(_ context.Context, ident auth.Identity, q booking.SlotQuery) ([]availability.Slot, error) {
	f.lastIdent, f.lastQuery = ident, q
	return f.slots, f.err
}

func (f *fakeBookings) PublicSlots(_ context.Context, token string, date time.Time, _ *uuid.UUID) ([]availability.Slot, error) {
	f.lastToken, f.lastDate = token, date
	return f.slots, f.err
}

func (f *fakeBookings) CreateStaffBooking(_ context.Context, ident auth.Identity, req booking.StaffBookingRequest) (model.Appointment, error) {
	f.lastIdent, f.lastStaff = ident, req
	return f.appt, f.err
}

func (f *fakeBookings) CreatePublicBooking(_ context.Context, req booking.PublicBookingRequest) (booking.PublicBooking, error) {
	f.lastPub = req
	return booking.PublicBooking{Appointment: f.appt, ManagementToken: "ABCDEFGHJKMN"}, f.err
}

func (f *fakeBookings) Get(_ context.Context, ident auth.Identity, _ uuid.UUID) (model.Appointment, error) {
	f.lastIdent = ident
	return f.appt, f.err
}

func (f *fakeBookings) Confirm(_ context.Context, _ auth.Identity, _ uuid.UUID, _ *uuid.UUID) (model.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeBookings) Complete(context.Context, auth.Identity, uuid.UUID) (model.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeBookings) MarkNoShow(context.Context, auth.Identity, uuid.UUID) (model.Appointment, error) {
	return f.appt, f.err
}

func (f *fakeBookings) Cancel(_ context.Context, _ auth.Identity, _ uuid.UUID, reason string) (model.Appointment, error) {
	f.reason = reason
	return f.appt, f.err
}

func (f *fakeBookings) Reschedule(_ context.Context, _ auth.Identity, _ uuid.UUID, req booking.RescheduleRequest) (model.Appointment, error) {
	f.resched = req
	return f.appt, f.err
}

func (f *fakeBookings) LookupByManagementToken(_ context.Context, token string) (model.Appointment, error) {
	f.lastToken = token
	return f.appt, f.err
}

func (f *fakeBookings) CancelByManagementToken(_ context.Context, token, reason string) (model.Appointment, error) {
	f.lastToken, f.reason = token, reason
	return f.appt, f.err
}

func newTestMux(t *testing.T, fake *fakeBookings) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewBookingHandler(fake, logger, time.UTC)
	mux := http.NewServeMux()
	limiter := httpx.NewRateLimiter(100, time.Minute)
	h.Register(mux, auth.RequireStaff(auth.NewVerifier(testSecret, nil)), limiter.Middleware())
	return mux
}

func bearer(t *testing.T, staff uuid.UUID, businesses ...uuid.UUID) string {
	t.Helper()
	claims := auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   staff.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	for _, b := range businesses {
		claims.BusinessIDs = append(claims.BusinessIDs, b.String())
	}
	tok, err := auth.SignHS256(claims, testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + tok
}

func sampleAppointment() model.Appointment {
	staff := uuid.New()
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	a := model.Appointment{
		ID:                uuid.New(),
		BusinessID:        uuid.New(),
		AppointmentTypeID: uuid.New(),
		LocationType:      model.LocationInPerson,
		StaffID:           &staff,
		BookerName:        "Ada Booker",
		BookerEmail:       "ada@example.com",
		Status:            model.StatusConfirmed,
	}
	a.SetTime(start, 60)
	return a
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestStaffRoutesRequireToken(t *testing.T) {
	mux := newTestMux(t, &fakeBookings{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateStaffBooking(t *testing.T) {
	fake := &fakeBookings{appt: sampleAppointment()}
	mux := newTestMux(t, fake)
	staff, business := uuid.New(), uuid.New()

	body := `{"business_id":"` + business.String() + `","appointment_type_id":"` + uuid.NewString() + `",
		"scheduled_at":"2026-03-04T10:00:00Z","client_id":"` + uuid.NewString() + `","location_type":"virtual"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, staff, business))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if fake.lastIdent.StaffID != staff || len(fake.lastIdent.BusinessIDs) != 1 {
		t.Fatalf("identity not passed through: %+v", fake.lastIdent)
	}
	if fake.lastStaff.BusinessID != business || fake.lastStaff.LocationType != "virtual" || fake.lastStaff.ClientID == nil {
		t.Fatalf("unexpected request: %+v", fake.lastStaff)
	}
	var got appointmentResponse
	decodeBody(t, rec, &got)
	if got.ID != fake.appt.ID.String() || got.Status != "CONFIRMED" || got.EndAt != "2026-03-04T11:00:00Z" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestCreateStaffBooking_BadInput(t *testing.T) {
	mux := newTestMux(t, &fakeBookings{})
	staff := uuid.New()
	cases := []string{
		`{"business_id":"nope"}`,
		`{"business_id":"` + uuid.NewString() + `","appointment_type_id":"` + uuid.NewString() + `","scheduled_at":"tomorrow"}`,
		`{"unknown":true}`,
		`not json`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
		req.Header.Set("Authorization", bearer(t, staff))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{&booking.Error{Kind: booking.ErrNotFound, Message: "appointment not found"}, http.StatusNotFound, "appointment not found"},
		{&booking.Error{Kind: booking.ErrForbidden, Message: "no access"}, http.StatusForbidden, "no access"},
		{&booking.Error{Kind: booking.ErrBadRequest, Message: "cannot cancel appointment: status COMPLETED is final"}, http.StatusBadRequest, "cannot cancel appointment: status COMPLETED is final"},
		{&booking.Error{Kind: booking.ErrConflict, Message: "the requested time conflicts with an existing appointment"}, http.StatusConflict, "the requested time conflicts with an existing appointment"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		fake := &fakeBookings{err: tc.err}
		mux := newTestMux(t, fake)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/"+uuid.NewString()+"/cancel", strings.NewReader(`{"reason":"x"}`))
		req.Header.Set("Authorization", bearer(t, uuid.New()))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
		var body map[string]string
		decodeBody(t, rec, &body)
		if body["error"] != tc.msg {
			t.Fatalf("%v: unexpected message %q", tc.err, body["error"])
		}
	}
}

func TestLifecycleRoutes(t *testing.T) {
	fake := &fakeBookings{appt: sampleAppointment()}
	mux := newTestMux(t, fake)
	token := bearer(t, uuid.New())
	id := uuid.NewString()

	for _, path := range []string{"confirm", "complete", "no-show", "cancel"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/"+id+"/"+path, nil)
		req.Header.Set("Authorization", token)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/"+id+"/reschedule",
		strings.NewReader(`{"scheduled_at":"2026-03-05T15:00:00+02:00","duration_minutes":30}`))
	req.Header.Set("Authorization", token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule: expected 200, got %d", rec.Code)
	}
	if !fake.resched.ScheduledAt.Equal(time.Date(2026, 3, 5, 13, 0, 0, 0, time.UTC)) || fake.resched.DurationMinutes != 30 {
		t.Fatalf("unexpected reschedule request: %+v", fake.resched)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/appointments/not-a-uuid/confirm", nil)
	req.Header.Set("Authorization", token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad id, got %d", rec.Code)
	}
}

func TestStaffSlots(t *testing.T) {
	start := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	fake := &fakeBookings{slots: []availability.Slot{
		{Start: start, End: start.Add(time.Hour), Available: false},
		{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour), Available: true},
	}}
	mux := newTestMux(t, fake)
	typeID, staffID := uuid.New(), uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointment-types/"+typeID.String()+"/slots?date=2026-03-04&staff_id="+staffID.String(), nil)
	req.Header.Set("Authorization", bearer(t, uuid.New()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fake.lastQuery.AppointmentTypeID != typeID || *fake.lastQuery.StaffID != staffID {
		t.Fatalf("unexpected query: %+v", fake.lastQuery)
	}
	var got slotsResponse
	decodeBody(t, rec, &got)
	if got.Date != "2026-03-04" || len(got.Slots) != 2 || got.Slots[0].Available || !got.Slots[1].Available {
		t.Fatalf("unexpected response: %+v", got)
	}
	if got.Slots[1].StartTime != "2026-03-04T10:00:00Z" {
		t.Fatalf("unexpected start %q", got.Slots[1].StartTime)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointment-types/"+typeID.String()+"/slots?date=04/03/2026", nil)
	req.Header.Set("Authorization", bearer(t, uuid.New()))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed date, got %d", rec.Code)
	}
}

func TestPublicSlots_EmptyListIsArray(t *testing.T) {
	fake := &fakeBookings{slots: []availability.Slot{}}
	mux := newTestMux(t, fake)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/booking/page-token/slots?date=2026-03-04", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if fake.lastToken != "page-token" {
		t.Fatalf("token not passed through: %q", fake.lastToken)
	}
	if !strings.Contains(rec.Body.String(), `"slots":[]`) {
		t.Fatalf("expected an empty array, got %s", rec.Body.String())
	}
}

func TestPublicCreateAndManage(t *testing.T) {
	fake := &fakeBookings{appt: sampleAppointment()}
	mux := newTestMux(t, fake)

	body := `{"scheduled_at":"2026-03-04T10:00:00Z","name":"Ada Booker","email":"ada@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/booking/page-token", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if fake.lastPub.Token != "page-token" || fake.lastPub.Email != "ada@example.com" {
		t.Fatalf("unexpected request: %+v", fake.lastPub)
	}
	var created publicBookingResponse
	decodeBody(t, rec, &created)
	if created.ManagementToken != "ABCDEFGHJKMN" || created.Appointment.Status != "CONFIRMED" {
		t.Fatalf("unexpected response: %+v", created)
	}
	if strings.Contains(rec.Body.String(), "business_id") {
		t.Fatalf("public response must not expose internal ids: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/bookings/ABCDEFGHJKMN", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || fake.lastToken != "ABCDEFGHJKMN" {
		t.Fatalf("lookup: %d %q", rec.Code, fake.lastToken)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings/ABCDEFGHJKMN/cancel", strings.NewReader(`{"reason":"sick"}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || fake.reason != "sick" {
		t.Fatalf("cancel: %d %q", rec.Code, fake.reason)
	}
}

func TestPublicRoutesRateLimited(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewBookingHandler(&fakeBookings{}, logger, time.UTC)
	mux := http.NewServeMux()
	h.Register(mux, auth.RequireStaff(auth.NewVerifier(testSecret, nil)), httpx.NewRateLimiter(1, time.Minute).Middleware())

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/bookings/ABCDEFGHJKMN", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}
}

func TestCancelAcceptsEmptyChunkedBody(t *testing.T) {
	fake := &fakeBookings{appt: sampleAppointment()}
	mux := newTestMux(t, fake)

	for _, body := range []string{"", "  \n"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/"+uuid.NewString()+"/cancel", strings.NewReader(body))
		req.ContentLength = -1
		req.Header.Set("Authorization", bearer(t, uuid.New()))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("body %q: expected 200, got %d: %s", body, rec.Code, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/"+uuid.NewString()+"/cancel", strings.NewReader(`{"reason":`))
	req.ContentLength = -1
	req.Header.Set("Authorization", bearer(t, uuid.New()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for truncated json, got %d", rec.Code)
	}
}
