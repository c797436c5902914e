// Package storage persists reminder delivery state for the dispatcher.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/db"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/outbox"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/scheduler-service/internal/dispatch"
)

// EventDeadLettered is published when a reminder is given up on.
const EventDeadLettered = "scheduler.reminder.dlq.v1"

type ReminderStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewReminderStore(pool *db.Pool) *ReminderStore {
	return &ReminderStore{pool: pool, outbox: outbox.NewRepository()}
}

var _ dispatch.Store = (*ReminderStore)(nil)

func (s *ReminderStore) ClaimDue(ctx context.Context, now time.Time, limit int, claimTTL time.Duration) ([]dispatch.Reminder, error) {
	var out []dispatch.Reminder
	err := s.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		out = out[:0]
		rows, err := tx.Query(ctx, `
			WITH due AS (
				SELECT id
				FROM appointment_reminders
				WHERE sent = false
				  AND dead_lettered_at IS NULL
				  AND scheduled_at <= $1
				  AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
				  AND (claimed_until IS NULL OR claimed_until <= $1)
				ORDER BY scheduled_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			UPDATE appointment_reminders r
			SET claimed_until = $3
			FROM due
			WHERE r.id = due.id
			RETURNING r.id, r.appointment_id, r.minutes_before, r.scheduled_at, r.channel, r.attempts, r.traceparent, r.tracestate
		`, now, limit, now.Add(claimTTL))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r dispatch.Reminder
			if err := rows.Scan(&r.ID, &r.AppointmentID, &r.MinutesBefore, &r.ScheduledAt, &r.Channel, &r.Attempts, &r.Traceparent, &r.Tracestate); err != nil {
				return err
			}
			out = append(out, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		return attachAppointments(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// attachAppointments loads each reminder's appointment with its client and
// staff contact. Reminders whose appointment is gone keep a nil Appointment.
func attachAppointments(ctx context.Context, tx pgx.Tx, reminders []dispatch.Reminder) error {
	ids := make([]uuid.UUID, 0, len(reminders))
	for _, r := range reminders {
		ids = append(ids, r.AppointmentID)
	}
	rows, err := tx.Query(ctx, `
		SELECT a.id, a.business_id, a.status, t.name, a.scheduled_at, a.end_at,
		       a.location_type, a.location_address,
		       COALESCE(s.name, ''),
		       COALESCE(NULLIF(c.email, ''), a.booker_email),
		       COALESCE(NULLIF(c.name, ''), a.booker_name)
		FROM appointments a
		JOIN appointment_types t ON t.id = a.appointment_type_id
		LEFT JOIN staff_members s ON s.id = a.staff_id
		LEFT JOIN clients c ON c.id = a.client_id
		WHERE a.id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*dispatch.Appointment, len(ids))
	for rows.Next() {
		var a dispatch.Appointment
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.Status, &a.TypeName, &a.ScheduledAt, &a.EndAt,
			&a.LocationType, &a.LocationAddress, &a.StaffName, &a.RecipientEmail, &a.RecipientName); err != nil {
			return err
		}
		byID[a.ID] = &a
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range reminders {
		reminders[i].Appointment = byID[reminders[i].AppointmentID]
	}
	return nil
}

func (s *ReminderStore) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE appointment_reminders
		SET sent = true, sent_at = $2, claimed_until = NULL
		WHERE id = $1 AND sent = false
	`, id, at)
	return err
}

func (s *ReminderStore) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE appointment_reminders
		SET attempts = $2,
		    next_attempt_at = $3,
		    last_error = $4,
		    claimed_until = NULL
		WHERE id = $1 AND sent = false
	`, id, attempts, nextAttemptAt, lastError)
	return err
}

type deadLetterPayload struct {
	ReminderID    string    `json:"reminder_id"`
	AppointmentID string    `json:"appointment_id"`
	MinutesBefore int       `json:"minutes_before"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Channel       string    `json:"channel"`
	Attempts      int       `json:"attempts"`
	ErrorReason   string    `json:"error_reason"`
	FailedAt      time.Time `json:"failed_at"`
}

func (s *ReminderStore) DeadLetter(ctx context.Context, r dispatch.Reminder, attempts int, reason string, at time.Time) error {
	evt, err := outbox.NewEvent("appointment_reminder", r.ID.String(), EventDeadLettered, deadLetterPayload{
		ReminderID:    r.ID.String(),
		AppointmentID: r.AppointmentID.String(),
		MinutesBefore: r.MinutesBefore,
		ScheduledAt:   r.ScheduledAt.UTC(),
		Channel:       r.Channel,
		Attempts:      attempts,
		ErrorReason:   reason,
		FailedAt:      at.UTC(),
	})
	if err != nil {
		return err
	}
	return s.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointment_reminders
			SET attempts = $2,
			    last_error = $3,
			    dead_lettered_at = $4,
			    claimed_until = NULL
			WHERE id = $1 AND sent = false AND dead_lettered_at IS NULL
		`, r.ID, attempts, reason, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
}
