package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/outbox"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

// Store runs units of work. InTx must give serializable isolation and retry
// transient failures once; nothing fn wrote survives a returned error.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// ConflictQuery selects active appointments overlapping Range. With a staff
// member only that member's appointments count; without one, every
// appointment of the business does.
type ConflictQuery struct {
	Range      availability.Interval
	BusinessID uuid.UUID
	StaffID    *uuid.UUID
	ExcludeID  *uuid.UUID
}

// Tx is the transactional view of storage. Lookups return ErrNotFound for a
// missing row; writes return ErrConflict when the overlap constraint fires.
type Tx interface {
	AppointmentType(ctx context.Context, id uuid.UUID) (model.AppointmentType, error)
	AppointmentTypeByToken(ctx context.Context, token string) (model.AppointmentType, error)

	// Appointment and AppointmentByTokenHash lock the row for update.
	Appointment(ctx context.Context, id uuid.UUID) (model.Appointment, error)
	AppointmentByTokenHash(ctx context.Context, hash []byte) (model.Appointment, error)

	Conflicts(ctx context.Context, q ConflictQuery) ([]uuid.UUID, error)
	Busy(ctx context.Context, q ConflictQuery) ([]availability.Interval, error)
	// CountBookingsOnDay counts non-cancelled appointments of a type starting within day.
	CountBookingsOnDay(ctx context.Context, typeID uuid.UUID, day availability.Interval) (int, error)

	InsertAppointment(ctx context.Context, appt *model.Appointment, tokenHash []byte) error
	UpdateAppointment(ctx context.Context, appt *model.Appointment) error

	InsertReminders(ctx context.Context, reminders []model.Reminder) error
	DeleteUnsentReminders(ctx context.Context, appointmentID uuid.UUID) (int, error)

	Publish(ctx context.Context, evt outbox.Event) error
}
