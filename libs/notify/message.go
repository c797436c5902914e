// Package notify is the "send notification" capability used by the reminder
// dispatcher and by booking confirmations.
package notify

import (
	"context"
	"time"
)

type Kind string

const (
	KindReminder24h      Kind = "reminder_24h"
	KindReminder2h       Kind = "reminder_2h"
	KindReminder1h       Kind = "reminder_1h"
	KindBookingRequested Kind = "booking_requested"
	KindBookingConfirmed Kind = "booking_confirmed"
	KindBookingCancelled Kind = "booking_cancelled"
)

// ReminderKind classifies a reminder by how long before the appointment it
// fires: 1380 minutes or more is the day-before notice, 90 or more the
// two-hour notice, anything shorter the one-hour notice.
func ReminderKind(minutesBefore int) Kind {
	switch {
	case minutesBefore >= 1380:
		return KindReminder24h
	case minutesBefore >= 90:
		return KindReminder2h
	default:
		return KindReminder1h
	}
}

// AppointmentContext is what a message may say about the appointment.
type AppointmentContext struct {
	ID              string    `json:"id"`
	BusinessID      string    `json:"business_id"`
	TypeName        string    `json:"type_name"`
	Status          string    `json:"status"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	EndAt           time.Time `json:"end_at"`
	StaffName       string    `json:"staff_name,omitempty"`
	LocationType    string    `json:"location_type,omitempty"`
	LocationAddress string    `json:"location_address,omitempty"`
	ManagementToken string    `json:"management_token,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// Message is one notification. ID is stable across retries of the same
// logical send so consumers can de-duplicate.
type Message struct {
	ID            string             `json:"id"`
	Kind          Kind               `json:"kind"`
	Recipient     string             `json:"recipient"`
	RecipientName string             `json:"recipient_name,omitempty"`
	Appointment   AppointmentContext `json:"appointment"`
}

// Sender hands a message to the delivery channel. A nil error means the
// hand-off succeeded.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
