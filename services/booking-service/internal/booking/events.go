package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/notify"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/outbox"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

const aggregateAppointment = "appointment"

// Lifecycle event types; each is also the Kafka topic it is relayed to.
const (
	EventRequested   = "booking.appointment.requested.v1"
	EventConfirmed   = "booking.appointment.confirmed.v1"
	EventCompleted   = "booking.appointment.completed.v1"
	EventNoShow      = "booking.appointment.no_show.v1"
	EventCancelled   = "booking.appointment.cancelled.v1"
	EventRescheduled = "booking.appointment.rescheduled.v1"
)

// AppointmentEvent is the payload of every lifecycle event. Notification is
// set when the booker should be e-mailed about the change.
type AppointmentEvent struct {
	AppointmentID     uuid.UUID       `json:"appointment_id"`
	BusinessID        uuid.UUID       `json:"business_id"`
	AppointmentTypeID uuid.UUID       `json:"appointment_type_id"`
	StaffID           *uuid.UUID      `json:"staff_id,omitempty"`
	Status            model.Status    `json:"status"`
	ScheduledAt       time.Time       `json:"scheduled_at"`
	EndAt             time.Time       `json:"end_at"`
	IsPublic          bool            `json:"is_public"`
	Reason            string          `json:"reason,omitempty"`
	OccurredAt        time.Time       `json:"occurred_at"`
	Notification      *notify.Message `json:"notification,omitempty"`
}

func newAppointmentEvent(eventType string, appt model.Appointment, at time.Time, note *notify.Message) (outbox.Event, error) {
	return outbox.NewEvent(aggregateAppointment, appt.ID.String(), eventType, AppointmentEvent{
		AppointmentID:     appt.ID,
		BusinessID:        appt.BusinessID,
		AppointmentTypeID: appt.AppointmentTypeID,
		StaffID:           appt.StaffID,
		Status:            appt.Status,
		ScheduledAt:       appt.ScheduledAt,
		EndAt:             appt.EndAt,
		IsPublic:          appt.IsPublic,
		Reason:            appt.CancellationReason,
		OccurredAt:        at,
		Notification:      note,
	})
}

// bookerNotice addresses the booker of a public booking; staff-side contact
// details live outside this service, so other appointments get none.
func bookerNotice(kind notify.Kind, appt model.Appointment, typ model.AppointmentType, token string) *notify.Message {
	if appt.BookerEmail == "" {
		return nil
	}
	return &notify.Message{
		ID:            fmt.Sprintf("%s:%s", appt.ID, kind),
		Kind:          kind,
		Recipient:     appt.BookerEmail,
		RecipientName: appt.BookerName,
		Appointment: notify.AppointmentContext{
			ID:              appt.ID.String(),
			BusinessID:      appt.BusinessID.String(),
			TypeName:        typ.Name,
			Status:          string(appt.Status),
			ScheduledAt:     appt.ScheduledAt,
			EndAt:           appt.EndAt,
			LocationType:    appt.LocationType,
			LocationAddress: appt.LocationAddress,
			ManagementToken: token,
			Reason:          appt.CancellationReason,
		},
	}
}

func (m *Manager) publish(ctx context.Context, tx Tx, eventType string, appt model.Appointment, note *notify.Message) error {
	evt, err := newAppointmentEvent(eventType, appt, m.now(), note)
	if err != nil {
		return err
	}
	return tx.Publish(ctx, evt)
}
