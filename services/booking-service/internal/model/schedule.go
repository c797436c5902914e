package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentType struct {
	ID                    uuid.UUID
	BusinessID            *uuid.UUID
	Name                  string
	DurationMinutes       int
	RequiresApproval      bool
	PublicBookingEnabled  bool
	PublicBookingToken    string
	MinAdvanceNoticeHours int
	MaxAdvanceBookingDays int
	MaxBookingsPerDay     *int
}

func (t AppointmentType) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// WeeklyAvailabilityRule is a standing block of a staff member's week.
// Times are minutes after local midnight; DayOfWeek follows time.Weekday
// (0 is Sunday).
type WeeklyAvailabilityRule struct {
	ID          uuid.UUID
	StaffID     uuid.UUID
	BusinessID  *uuid.UUID
	DayOfWeek   time.Weekday
	StartMinute int
	EndMinute   int
	IsAvailable bool
}

// AvailabilityOverride replaces the weekly rules of one staff member on one
// date. StartMinute/EndMinute are both set or both nil.
type AvailabilityOverride struct {
	ID          uuid.UUID
	StaffID     uuid.UUID
	Date        time.Time
	IsAvailable bool
	StartMinute *int
	EndMinute   *int
	Reason      string
}
