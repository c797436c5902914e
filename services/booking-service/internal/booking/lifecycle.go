package booking

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/auth"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/notify"
	otelx "github.com/kareemschultz/SYNERGY-GY-sub000/libs/otel"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

const appointmentNotFound = "appointment not found"

// Get returns an appointment the caller's businesses can see.
func (m *Manager) Get(ctx context.Context, ident auth.Identity, id uuid.UUID) (model.Appointment, error) {
	var appt model.Appointment
	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		appt, err = m.load(ctx, tx, ident, id)
		return err
	})
	return appt, err
}

// Confirm approves a requested booking, optionally assigning a staff member.
func (m *Manager) Confirm(ctx context.Context, ident auth.Identity, id uuid.UUID, staffID *uuid.UUID) (model.Appointment, error) {
	return m.mutate(ctx, ident, id, ActionConfirm, func(tx Tx, appt *model.Appointment) error {
		if staffID != nil {
			appt.StaffID = staffID
		}
		if err := m.checkConflicts(ctx, tx, *appt); err != nil {
			return err
		}
		now := m.now()
		appt.Status = model.StatusConfirmed
		appt.ConfirmedBy = actorID(ident)
		appt.ConfirmedAt = &now
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return userError(err, appointmentNotFound)
		}
		if err := m.scheduleReminders(ctx, tx, *appt); err != nil {
			return err
		}
		typ, err := tx.AppointmentType(ctx, appt.AppointmentTypeID)
		if err != nil {
			return userError(err, "appointment type not found")
		}
		return m.publish(ctx, tx, EventConfirmed, *appt, bookerNotice(notify.KindBookingConfirmed, *appt, typ, ""))
	})
}

func (m *Manager) Complete(ctx context.Context, ident auth.Identity, id uuid.UUID) (model.Appointment, error) {
	return m.mutate(ctx, ident, id, ActionComplete, func(tx Tx, appt *model.Appointment) error {
		now := m.now()
		appt.Status = model.StatusCompleted
		appt.CompletedAt = &now
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return userError(err, appointmentNotFound)
		}
		return m.publish(ctx, tx, EventCompleted, *appt, nil)
	})
}

func (m *Manager) MarkNoShow(ctx context.Context, ident auth.Identity, id uuid.UUID) (model.Appointment, error) {
	return m.mutate(ctx, ident, id, ActionNoShow, func(tx Tx, appt *model.Appointment) error {
		appt.Status = model.StatusNoShow
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return userError(err, appointmentNotFound)
		}
		return m.publish(ctx, tx, EventNoShow, *appt, nil)
	})
}

// Cancel releases the appointment's time. Reminders already queued are left
// for the dispatcher, which discards them once it sees the cancellation.
func (m *Manager) Cancel(ctx context.Context, ident auth.Identity, id uuid.UUID, reason string) (model.Appointment, error) {
	return m.mutate(ctx, ident, id, ActionCancel, func(tx Tx, appt *model.Appointment) error {
		return m.cancel(ctx, tx, appt, actorID(ident), reason)
	})
}

type RescheduleRequest struct {
	ScheduledAt time.Time
	// DurationMinutes keeps the current duration when zero.
	DurationMinutes int
	// StaffID keeps the current assignment when nil.
	StaffID *uuid.UUID
}

// Reschedule moves an appointment without changing its status. Unsent
// reminders of a confirmed appointment are replaced by ones for the new time.
func (m *Manager) Reschedule(ctx context.Context, ident auth.Identity, id uuid.UUID, req RescheduleRequest) (model.Appointment, error) {
	if req.ScheduledAt.IsZero() {
		return model.Appointment{}, badRequest("scheduled_at is required")
	}
	if req.DurationMinutes < 0 {
		return model.Appointment{}, badRequest("duration_minutes must be positive")
	}
	return m.mutate(ctx, ident, id, ActionReschedule, func(tx Tx, appt *model.Appointment) error {
		duration := appt.DurationMinutes
		if req.DurationMinutes > 0 {
			duration = req.DurationMinutes
		}
		if req.StaffID != nil {
			appt.StaffID = req.StaffID
		}
		appt.SetTime(req.ScheduledAt.In(m.loc), duration)
		if err := m.checkConflicts(ctx, tx, *appt); err != nil {
			return err
		}
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return userError(err, appointmentNotFound)
		}
		if appt.Status == model.StatusConfirmed {
			if _, err := tx.DeleteUnsentReminders(ctx, appt.ID); err != nil {
				return err
			}
			if err := m.scheduleReminders(ctx, tx, *appt); err != nil {
				return err
			}
		}
		return m.publish(ctx, tx, EventRescheduled, *appt, nil)
	})
}

// LookupByManagementToken returns the booking a management token belongs to.
func (m *Manager) LookupByManagementToken(ctx context.Context, token string) (model.Appointment, error) {
	hash, ok := managementHash(token)
	if !ok {
		return model.Appointment{}, notFound("booking not found")
	}
	var appt model.Appointment
	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		appt, err = tx.AppointmentByTokenHash(ctx, hash)
		return userError(err, "booking not found")
	})
	return appt, err
}

// CancelByManagementToken lets a public booker cancel their own booking.
func (m *Manager) CancelByManagementToken(ctx context.Context, token, reason string) (model.Appointment, error) {
	hash, ok := managementHash(token)
	if !ok {
		return model.Appointment{}, notFound("booking not found")
	}
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.cancel_public")
	defer span.End()

	var appt model.Appointment
	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		appt, err = tx.AppointmentByTokenHash(ctx, hash)
		if err != nil {
			return userError(err, "booking not found")
		}
		if err := checkTransition(ActionCancel, appt.Status); err != nil {
			return err
		}
		return m.cancel(ctx, tx, &appt, nil, reason)
	})
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}
	m.logger.Info("public booking cancelled", "appointment_id", appt.ID)
	return appt, nil
}

func (m *Manager) cancel(ctx context.Context, tx Tx, appt *model.Appointment, by *uuid.UUID, reason string) error {
	now := m.now()
	appt.Status = model.StatusCancelled
	appt.CancelledBy = by
	appt.CancelledAt = &now
	appt.CancellationReason = strings.TrimSpace(reason)
	if err := tx.UpdateAppointment(ctx, appt); err != nil {
		return userError(err, appointmentNotFound)
	}
	typ, err := tx.AppointmentType(ctx, appt.AppointmentTypeID)
	if err != nil {
		return userError(err, "appointment type not found")
	}
	return m.publish(ctx, tx, EventCancelled, *appt, bookerNotice(notify.KindBookingCancelled, *appt, typ, ""))
}

func (m *Manager) load(ctx context.Context, tx Tx, ident auth.Identity, id uuid.UUID) (model.Appointment, error) {
	appt, err := tx.Appointment(ctx, id)
	if err != nil {
		return model.Appointment{}, userError(err, appointmentNotFound)
	}
	if !ident.CanAccess(appt.BusinessID) {
		return model.Appointment{}, forbidden("you do not have access to this appointment")
	}
	return appt, nil
}

// mutate runs one staff transition: lock, authorize, validate the move, then
// apply fn. Everything happens in a single transaction.
func (m *Manager) mutate(ctx context.Context, ident auth.Identity, id uuid.UUID, action Action, fn func(Tx, *model.Appointment) error) (model.Appointment, error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking."+strings.ReplaceAll(string(action), " ", "_"),
		attribute.String("appointment_id", id.String()))
	defer span.End()

	var appt model.Appointment
	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		appt, err = m.load(ctx, tx, ident, id)
		if err != nil {
			return err
		}
		if err := checkTransition(action, appt.Status); err != nil {
			return err
		}
		return fn(tx, &appt)
	})
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}
	m.logger.Info("appointment updated", "appointment_id", appt.ID, "action", string(action), "status", appt.Status)
	return appt, nil
}

func managementHash(token string) ([]byte, bool) {
	tok, ok := NormalizeManagementToken(token)
	if !ok {
		return nil, false
	}
	return HashManagementToken(tok), true
}
