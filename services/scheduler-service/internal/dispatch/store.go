package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Appointment statuses the dispatcher treats as stale work.
const (
	StatusCancelled   = "CANCELLED"
	StatusRescheduled = "RESCHEDULED"
)

// Reminder is one claimed, due reminder row.
type Reminder struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	MinutesBefore int
	ScheduledAt   time.Time
	Channel       string
	Attempts      int
	Traceparent   string
	Tracestate    string
	// Appointment is nil when the parent row no longer exists.
	Appointment *Appointment
}

// Appointment carries what a reminder needs to say and where to send it.
type Appointment struct {
	ID              uuid.UUID
	BusinessID      uuid.UUID
	Status          string
	TypeName        string
	ScheduledAt     time.Time
	EndAt           time.Time
	LocationType    string
	LocationAddress string
	StaffName       string
	// RecipientEmail is the client's address, or the booker's for bookings
	// without a client record. Empty when neither is known.
	RecipientEmail string
	RecipientName  string
}

type Store interface {
	// ClaimDue returns up to limit unsent, live reminders due at now and
	// holds them for claimTTL so concurrent sweepers skip them.
	ClaimDue(ctx context.Context, now time.Time, limit int, claimTTL time.Duration) ([]Reminder, error)
	// MarkSent is idempotent: an already sent reminder is left unchanged.
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkFailed records a failed attempt and releases the claim.
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error
	// DeadLetter gives up on a reminder and publishes a dead-letter event in
	// the same transaction.
	DeadLetter(ctx context.Context, r Reminder, attempts int, reason string, at time.Time) error
}
