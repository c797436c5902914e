package booking

import (
	"time"

	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

// CheckBookingWindow enforces a type's public booking window. A zero
// MaxAdvanceBookingDays means no upper bound.
func CheckBookingWindow(typ model.AppointmentType, start, now time.Time) error {
	if !start.After(now) {
		return badRequest("the requested time is in the past")
	}
	if h := typ.MinAdvanceNoticeHours; h > 0 && start.Before(now.Add(time.Duration(h)*time.Hour)) {
		return badRequest("bookings require at least %d %s advance notice", h, plural(h, "hour"))
	}
	if d := typ.MaxAdvanceBookingDays; d > 0 && start.After(now.AddDate(0, 0, d)) {
		return badRequest("bookings cannot be made more than %d %s in advance", d, plural(d, "day"))
	}
	return nil
}

func withinWindow(typ model.AppointmentType, start, now time.Time) bool {
	return CheckBookingWindow(typ, start, now) == nil
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
