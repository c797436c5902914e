package model

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
	// StatusRescheduled marks rows superseded by an older reschedule flow.
	// Nothing here produces it; readers treat it as stale.
	StatusRescheduled Status = "RESCHEDULED"
)

// Active reports whether the appointment still occupies its time range.
func (s Status) Active() bool {
	return s == StatusRequested || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return !s.Active()
}

const (
	LocationInPerson = "in_person"
	LocationVirtual  = "virtual"
	LocationPhone    = "phone"
)

type Appointment struct {
	ID                 uuid.UUID
	BusinessID         uuid.UUID
	AppointmentTypeID  uuid.UUID
	ScheduledAt        time.Time
	EndAt              time.Time
	DurationMinutes    int
	LocationType       string
	LocationAddress    string
	StaffID            *uuid.UUID
	ClientID           *uuid.UUID
	BookerName         string
	BookerEmail        string
	BookerPhone        string
	Notes              string
	Status             Status
	IsPublic           bool
	RequestedBy        *uuid.UUID
	ConfirmedBy        *uuid.UUID
	ConfirmedAt        *time.Time
	CancelledBy        *uuid.UUID
	CancelledAt        *time.Time
	CancellationReason string
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SetTime sets the start and duration and derives the end from them.
func (a *Appointment) SetTime(start time.Time, durationMinutes int) {
	a.ScheduledAt = start
	a.DurationMinutes = durationMinutes
	a.EndAt = start.Add(time.Duration(durationMinutes) * time.Minute)
}

type Reminder struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	MinutesBefore int
	ScheduledAt   time.Time
	Channel       string
	Sent          bool
	SentAt        *time.Time
	Traceparent   string
	Tracestate    string
}
