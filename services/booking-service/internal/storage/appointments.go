package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/outbox"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/booking"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

type bookingTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

var _ booking.Tx = (*bookingTx)(nil)

const typeColumns = `
	id, business_id, name, duration_minutes, requires_approval, public_booking_enabled,
	COALESCE(public_booking_token, ''), min_advance_notice_hours, max_advance_booking_days, max_bookings_per_day`

func scanType(row pgx.Row) (model.AppointmentType, error) {
	var t model.AppointmentType
	err := row.Scan(&t.ID, &t.BusinessID, &t.Name, &t.DurationMinutes, &t.RequiresApproval, &t.PublicBookingEnabled,
		&t.PublicBookingToken, &t.MinAdvanceNoticeHours, &t.MaxAdvanceBookingDays, &t.MaxBookingsPerDay)
	return t, mapError(err)
}

func (b *bookingTx) AppointmentType(ctx context.Context, id uuid.UUID) (model.AppointmentType, error) {
	return scanType(b.tx.QueryRow(ctx, `SELECT `+typeColumns+` FROM appointment_types WHERE id = $1`, id))
}

func (b *bookingTx) AppointmentTypeByToken(ctx context.Context, token string) (model.AppointmentType, error) {
	return scanType(b.tx.QueryRow(ctx, `SELECT `+typeColumns+` FROM appointment_types WHERE public_booking_token = $1`, token))
}

const appointmentColumns = `
	id, business_id, appointment_type_id, scheduled_at, end_at, duration_minutes, location_type, location_address,
	staff_id, client_id, booker_name, booker_email, booker_phone, notes, status, is_public,
	requested_by, confirmed_by, confirmed_at, cancelled_by, cancelled_at, cancellation_reason, completed_at,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID, &a.BusinessID, &a.AppointmentTypeID, &a.ScheduledAt, &a.EndAt, &a.DurationMinutes, &a.LocationType, &a.LocationAddress,
		&a.StaffID, &a.ClientID, &a.BookerName, &a.BookerEmail, &a.BookerPhone, &a.Notes, &a.Status, &a.IsPublic,
		&a.RequestedBy, &a.ConfirmedBy, &a.ConfirmedAt, &a.CancelledBy, &a.CancelledAt, &a.CancellationReason, &a.CompletedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, mapError(err)
}

func (b *bookingTx) Appointment(ctx context.Context, id uuid.UUID) (model.Appointment, error) {
	return scanAppointment(b.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func (b *bookingTx) AppointmentByTokenHash(ctx context.Context, hash []byte) (model.Appointment, error) {
	return scanAppointment(b.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE management_token_hash = $1 FOR UPDATE`, hash))
}

// overlapping selects active appointments intersecting q.Range with the same
// half-open test the exclusion constraint uses.
func (b *bookingTx) overlapping(ctx context.Context, q booking.ConflictQuery) (pgx.Rows, error) {
	return b.tx.Query(ctx, `
		SELECT id, scheduled_at, end_at
		FROM appointments
		WHERE status IN ('REQUESTED', 'CONFIRMED')
			AND scheduled_at < $2
			AND end_at > $1
			AND ($3::uuid IS NULL OR id <> $3)
			AND (
				($4::uuid IS NOT NULL AND staff_id = $4)
				OR ($4::uuid IS NULL AND business_id = $5)
			)
		ORDER BY scheduled_at
	`, q.Range.Start, q.Range.End, q.ExcludeID, q.StaffID, q.BusinessID)
}

func (b *bookingTx) Conflicts(ctx context.Context, q booking.ConflictQuery) ([]uuid.UUID, error) {
	rows, err := b.overlapping(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		var iv availability.Interval
		if err := rows.Scan(&id, &iv.Start, &iv.End); err != nil {
			return nil, err
		}
		// Zero-length ranges never overlap anything.
		if availability.Overlaps(q.Range, iv) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

func (b *bookingTx) Busy(ctx context.Context, q booking.ConflictQuery) ([]availability.Interval, error) {
	rows, err := b.overlapping(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []availability.Interval
	for rows.Next() {
		var id uuid.UUID
		var iv availability.Interval
		if err := rows.Scan(&id, &iv.Start, &iv.End); err != nil {
			return nil, err
		}
		busy = append(busy, iv)
	}
	return busy, rows.Err()
}

func (b *bookingTx) CountBookingsOnDay(ctx context.Context, typeID uuid.UUID, day availability.Interval) (int, error) {
	var n int
	err := b.tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE appointment_type_id = $1
			AND status <> 'CANCELLED'
			AND scheduled_at >= $2
			AND scheduled_at < $3
	`, typeID, day.Start, day.End).Scan(&n)
	return n, err
}

func (b *bookingTx) InsertAppointment(ctx context.Context, a *model.Appointment, tokenHash []byte) error {
	err := b.tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, business_id, appointment_type_id, scheduled_at, end_at, duration_minutes, location_type, location_address,
			staff_id, client_id, booker_name, booker_email, booker_phone, notes, status, is_public, management_token_hash,
			requested_by, confirmed_by, confirmed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at, updated_at
	`, a.ID, a.BusinessID, a.AppointmentTypeID, a.ScheduledAt, a.EndAt, a.DurationMinutes, a.LocationType, a.LocationAddress,
		a.StaffID, a.ClientID, a.BookerName, a.BookerEmail, a.BookerPhone, a.Notes, a.Status, a.IsPublic, tokenHash,
		a.RequestedBy, a.ConfirmedBy, a.ConfirmedAt,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapError(err)
}

func (b *bookingTx) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	err := b.tx.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
			end_at = $3,
			duration_minutes = $4,
			staff_id = $5,
			status = $6,
			confirmed_by = $7,
			confirmed_at = $8,
			cancelled_by = $9,
			cancelled_at = $10,
			cancellation_reason = $11,
			completed_at = $12,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.ScheduledAt, a.EndAt, a.DurationMinutes, a.StaffID, a.Status,
		a.ConfirmedBy, a.ConfirmedAt, a.CancelledBy, a.CancelledAt, a.CancellationReason, a.CompletedAt,
	).Scan(&a.UpdatedAt)
	return mapError(err)
}

func (b *bookingTx) InsertReminders(ctx context.Context, reminders []model.Reminder) error {
	batch := &pgx.Batch{}
	for _, r := range reminders {
		batch.Queue(`
			INSERT INTO appointment_reminders (id, appointment_id, minutes_before, scheduled_at, channel, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (appointment_id, minutes_before, scheduled_at) DO NOTHING
		`, r.ID, r.AppointmentID, r.MinutesBefore, r.ScheduledAt, r.Channel, r.Traceparent, r.Tracestate)
	}
	return b.tx.SendBatch(ctx, batch).Close()
}

func (b *bookingTx) DeleteUnsentReminders(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	tag, err := b.tx.Exec(ctx, `
		DELETE FROM appointment_reminders
		WHERE appointment_id = $1 AND sent = false AND dead_lettered_at IS NULL
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (b *bookingTx) Publish(ctx context.Context, evt outbox.Event) error {
	return b.outbox.Insert(ctx, b.tx, evt)
}
