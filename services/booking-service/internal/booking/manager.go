// Package booking owns the appointment lifecycle: creating bookings from
// staff and public callers, moving them through their statuses and keeping
// reminders in step.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/auth"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/notify"
	otelx "github.com/kareemschultz/SYNERGY-GY-sub000/libs/otel"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/reminders"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "booking"

type ManagerConfig struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

type Manager struct {
	store     Store
	resolver  *availability.Resolver
	reminders *reminders.Scheduler
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewManager(store Store, resolver *availability.Resolver, sched *reminders.Scheduler, logger *slog.Logger, cfg ManagerConfig) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sched == nil {
		sched = reminders.NewScheduler(nil)
	}
	return &Manager{
		store:     store,
		resolver:  resolver,
		reminders: sched,
		logger:    logger,
		loc:       resolver.Location(),
		now:       cfg.Now,
	}
}

type StaffBookingRequest struct {
	BusinessID        uuid.UUID
	AppointmentTypeID uuid.UUID
	ScheduledAt       time.Time
	// DurationMinutes defaults to the type's duration when zero.
	DurationMinutes int
	// StaffID defaults to the acting staff member when nil.
	StaffID         *uuid.UUID
	ClientID        *uuid.UUID
	BookerName      string
	BookerEmail     string
	BookerPhone     string
	LocationType    string
	LocationAddress string
	Notes           string
}

// CreateStaffBooking records an appointment made by staff. It is confirmed
// immediately and is not subject to the public booking window.
func (m *Manager) CreateStaffBooking(ctx context.Context, ident auth.Identity, req StaffBookingRequest) (model.Appointment, error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.create_staff",
		attribute.String("business_id", req.BusinessID.String()))
	defer span.End()

	if !ident.CanAccess(req.BusinessID) {
		return model.Appointment{}, forbidden("you do not have access to this business")
	}
	if req.ScheduledAt.IsZero() {
		return model.Appointment{}, badRequest("scheduled_at is required")
	}
	if req.DurationMinutes < 0 {
		return model.Appointment{}, badRequest("duration_minutes must be positive")
	}
	locType, err := locationType(req.LocationType)
	if err != nil {
		return model.Appointment{}, err
	}
	staffID := req.StaffID
	if staffID == nil && ident.StaffID != uuid.Nil {
		id := ident.StaffID
		staffID = &id
	}

	var appt model.Appointment
	err = m.store.InTx(ctx, func(tx Tx) error {
		typ, err := tx.AppointmentType(ctx, req.AppointmentTypeID)
		if err != nil {
			return userError(err, "appointment type not found")
		}
		if typ.BusinessID != nil && *typ.BusinessID != req.BusinessID {
			return badRequest("appointment type belongs to another business")
		}
		duration := req.DurationMinutes
		if duration == 0 {
			duration = typ.DurationMinutes
		}

		now := m.now()
		actor := actorID(ident)
		appt = model.Appointment{
			ID:                uuid.New(),
			BusinessID:        req.BusinessID,
			AppointmentTypeID: typ.ID,
			LocationType:      locType,
			LocationAddress:   strings.TrimSpace(req.LocationAddress),
			StaffID:           staffID,
			ClientID:          req.ClientID,
			BookerName:        strings.TrimSpace(req.BookerName),
			BookerEmail:       strings.TrimSpace(req.BookerEmail),
			BookerPhone:       strings.TrimSpace(req.BookerPhone),
			Notes:             req.Notes,
			Status:            model.StatusConfirmed,
			RequestedBy:       actor,
			ConfirmedBy:       actor,
			ConfirmedAt:       &now,
		}
		appt.SetTime(req.ScheduledAt.In(m.loc), duration)

		if err := m.checkConflicts(ctx, tx, appt); err != nil {
			return err
		}
		if err := tx.InsertAppointment(ctx, &appt, nil); err != nil {
			return userError(err, "appointment type not found")
		}
		if err := m.scheduleReminders(ctx, tx, appt); err != nil {
			return err
		}
		return m.publish(ctx, tx, EventConfirmed, appt, bookerNotice(notify.KindBookingConfirmed, appt, typ, ""))
	})
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}
	m.logger.Info("appointment booked", "appointment_id", appt.ID, "business_id", appt.BusinessID, "status", appt.Status)
	return appt, nil
}

type PublicBookingRequest struct {
	Token       string
	ScheduledAt time.Time
	StaffID     *uuid.UUID
	Name        string
	Email       string
	Phone       string
	Notes       string
}

type PublicBooking struct {
	Appointment model.Appointment
	// ManagementToken is only ever available here; storage keeps its digest.
	ManagementToken string
}

// CreatePublicBooking books through an appointment type's publishing token.
// The booking is REQUESTED when the type requires approval and CONFIRMED
// otherwise.
func (m *Manager) CreatePublicBooking(ctx context.Context, req PublicBookingRequest) (PublicBooking, error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.create_public")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if name == "" {
		return PublicBooking{}, badRequest("name is required")
	}
	if email == "" && phone == "" {
		return PublicBooking{}, badRequest("an email address or phone number is required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return PublicBooking{}, badRequest("email address is invalid")
		}
	}
	if req.ScheduledAt.IsZero() {
		return PublicBooking{}, badRequest("scheduled_at is required")
	}

	token, err := NewManagementToken()
	if err != nil {
		return PublicBooking{}, err
	}

	var appt model.Appointment
	var typ model.AppointmentType
	err = m.store.InTx(ctx, func(tx Tx) error {
		var err error
		typ, err = publicType(ctx, tx, req.Token)
		if err != nil {
			return err
		}
		if typ.BusinessID == nil {
			return badRequest("this booking page is not linked to a business")
		}

		now := m.now()
		start := req.ScheduledAt.In(m.loc)
		if err := CheckBookingWindow(typ, start, now); err != nil {
			return err
		}

		appt = model.Appointment{
			ID:                uuid.New(),
			BusinessID:        *typ.BusinessID,
			AppointmentTypeID: typ.ID,
			LocationType:      model.LocationInPerson,
			StaffID:           req.StaffID,
			BookerName:        name,
			BookerEmail:       email,
			BookerPhone:       phone,
			Notes:             req.Notes,
			Status:            model.StatusRequested,
			IsPublic:          true,
		}
		appt.SetTime(start, typ.DurationMinutes)
		if !typ.RequiresApproval {
			appt.Status = model.StatusConfirmed
			appt.ConfirmedAt = &now
		}

		blocks, err := m.resolver.Resolve(ctx, availability.Query{StaffID: req.StaffID, BusinessID: appt.BusinessID, Date: start})
		if err != nil {
			return err
		}
		if !availability.Fits(timeRange(appt), blocks) {
			return badRequest("the requested time is outside available hours")
		}
		if typ.MaxBookingsPerDay != nil {
			n, err := tx.CountBookingsOnDay(ctx, typ.ID, m.dayRange(start))
			if err != nil {
				return err
			}
			if n >= *typ.MaxBookingsPerDay {
				return badRequest("no more bookings are available on this date")
			}
		}
		if err := m.checkConflicts(ctx, tx, appt); err != nil {
			return err
		}
		if err := tx.InsertAppointment(ctx, &appt, HashManagementToken(token)); err != nil {
			return userError(err, "booking page not found")
		}

		if appt.Status == model.StatusConfirmed {
			if err := m.scheduleReminders(ctx, tx, appt); err != nil {
				return err
			}
			return m.publish(ctx, tx, EventConfirmed, appt, bookerNotice(notify.KindBookingConfirmed, appt, typ, token))
		}
		return m.publish(ctx, tx, EventRequested, appt, bookerNotice(notify.KindBookingRequested, appt, typ, token))
	})
	if err != nil {
		span.RecordError(err)
		return PublicBooking{}, err
	}
	m.logger.Info("public booking created", "appointment_id", appt.ID, "appointment_type_id", typ.ID, "status", appt.Status)
	return PublicBooking{Appointment: appt, ManagementToken: token}, nil
}

func publicType(ctx context.Context, tx Tx, token string) (model.AppointmentType, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.AppointmentType{}, notFound("booking page not found")
	}
	typ, err := tx.AppointmentTypeByToken(ctx, token)
	if err != nil {
		return model.AppointmentType{}, userError(err, "booking page not found")
	}
	if !typ.PublicBookingEnabled {
		return model.AppointmentType{}, notFound("booking page not found")
	}
	return typ, nil
}

// checkConflicts scopes the check to the assigned staff member, or to the
// whole business for unassigned appointments.
func (m *Manager) checkConflicts(ctx context.Context, tx Tx, appt model.Appointment) error {
	self := appt.ID
	ids, err := tx.Conflicts(ctx, ConflictQuery{
		Range:      timeRange(appt),
		BusinessID: appt.BusinessID,
		StaffID:    appt.StaffID,
		ExcludeID:  &self,
	})
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		m.logger.Info("booking conflict", "appointment_id", appt.ID, "conflicts_with", ids[0])
		return conflict()
	}
	return nil
}

func (m *Manager) scheduleReminders(ctx context.Context, tx Tx, appt model.Appointment) error {
	planned := m.reminders.Plan(ctx, appt, m.now())
	if len(planned) == 0 {
		return nil
	}
	return tx.InsertReminders(ctx, planned)
}

func (m *Manager) dayRange(t time.Time) availability.Interval {
	day := availability.StartOfDay(t, m.loc)
	return availability.Interval{Start: day, End: day.AddDate(0, 0, 1)}
}

func timeRange(appt model.Appointment) availability.Interval {
	return availability.Interval{Start: appt.ScheduledAt, End: appt.EndAt}
}

func actorID(ident auth.Identity) *uuid.UUID {
	if ident.StaffID == uuid.Nil {
		return nil
	}
	id := ident.StaffID
	return &id
}

func locationType(raw string) (string, error) {
	switch v := strings.TrimSpace(raw); v {
	case "":
		return model.LocationInPerson, nil
	case model.LocationInPerson, model.LocationVirtual, model.LocationPhone:
		return v, nil
	}
	return "", badRequest("location_type must be one of %s, %s, %s", model.LocationInPerson, model.LocationVirtual, model.LocationPhone)
}

// IsUserError reports whether err carries a message meant for the caller.
func IsUserError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
