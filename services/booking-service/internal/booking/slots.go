package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/auth"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

type SlotQuery struct {
	AppointmentTypeID uuid.UUID
	// BusinessID is required for types without a business of their own.
	BusinessID *uuid.UUID
	StaffID    *uuid.UUID
	Date       time.Time
}

// AvailableSlots lists a day's slots for staff. Slots are never marked
// unavailable for booking-window reasons here; that only applies to public
// callers.
func (m *Manager) AvailableSlots(ctx context.Context, ident auth.Identity, q SlotQuery) ([]availability.Slot, error) {
	_, slots, err := m.slots(ctx, q.StaffID, q.Date, func(tx Tx) (model.AppointmentType, uuid.UUID, error) {
		typ, err := tx.AppointmentType(ctx, q.AppointmentTypeID)
		if err != nil {
			return typ, uuid.Nil, userError(err, "appointment type not found")
		}
		var businessID uuid.UUID
		switch {
		case typ.BusinessID != nil:
			businessID = *typ.BusinessID
		case q.BusinessID != nil:
			businessID = *q.BusinessID
		default:
			return typ, uuid.Nil, badRequest("business_id is required for this appointment type")
		}
		if !ident.CanAccess(businessID) {
			return typ, uuid.Nil, forbidden("you do not have access to this business")
		}
		return typ, businessID, nil
	})
	return slots, err
}

// PublicSlots lists a day's slots behind a publishing token. Slots outside
// the type's booking window are reported as unavailable.
func (m *Manager) PublicSlots(ctx context.Context, token string, date time.Time, staffID *uuid.UUID) ([]availability.Slot, error) {
	typ, slots, err := m.slots(ctx, staffID, date, func(tx Tx) (model.AppointmentType, uuid.UUID, error) {
		typ, err := publicType(ctx, tx, token)
		if err != nil {
			return typ, uuid.Nil, err
		}
		if typ.BusinessID == nil {
			return typ, uuid.Nil, badRequest("this booking page is not linked to a business")
		}
		return typ, *typ.BusinessID, nil
	})
	if err != nil {
		return nil, err
	}
	now := m.now()
	for i := range slots {
		if slots[i].Available && !withinWindow(typ, slots[i].Start, now) {
			slots[i].Available = false
		}
	}
	return slots, nil
}

type typeLoader func(Tx) (model.AppointmentType, uuid.UUID, error)

// slots reads the type, the daily count and the busy set in one transaction,
// then resolves availability and generates the grid. A day whose cap is
// reached yields an empty list without generating anything.
func (m *Manager) slots(ctx context.Context, staffID *uuid.UUID, date time.Time, load typeLoader) (model.AppointmentType, []availability.Slot, error) {
	dayRange := m.dayRange(date)

	var (
		typ        model.AppointmentType
		businessID uuid.UUID
		busy       []availability.Interval
		capped     bool
	)
	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		typ, businessID, err = load(tx)
		if err != nil {
			return err
		}
		if typ.MaxBookingsPerDay != nil {
			n, err := tx.CountBookingsOnDay(ctx, typ.ID, dayRange)
			if err != nil {
				return err
			}
			if n >= *typ.MaxBookingsPerDay {
				capped = true
				return nil
			}
		}
		busy, err = tx.Busy(ctx, ConflictQuery{Range: dayRange, BusinessID: businessID, StaffID: staffID})
		return err
	})
	if err != nil {
		return typ, nil, err
	}
	if capped {
		return typ, []availability.Slot{}, nil
	}

	blocks, err := m.resolver.Resolve(ctx, availability.Query{StaffID: staffID, BusinessID: businessID, Date: dayRange.Start})
	if err != nil {
		return typ, nil, err
	}
	slots := availability.GenerateSlots(blocks, typ.Duration(), busy)
	if slots == nil {
		slots = []availability.Slot{}
	}
	return typ, slots, nil
}
