package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/availability"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

var _ availability.RuleSource = (*Store)(nil)

// WeeklyRules returns every rule for weekday, narrowed to one staff member
// when staffID is set. Availability flags and business scope are filtered by
// the resolver.
func (s *Store) WeeklyRules(ctx context.Context, staffID *uuid.UUID, weekday time.Weekday) ([]model.WeeklyAvailabilityRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, staff_id, business_id, day_of_week, start_minute, end_minute, is_available
		FROM weekly_availability_rules
		WHERE day_of_week = $1 AND ($2::uuid IS NULL OR staff_id = $2)
		ORDER BY start_minute
	`, int(weekday), staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.WeeklyAvailabilityRule
	for rows.Next() {
		var r model.WeeklyAvailabilityRule
		var day int16
		if err := rows.Scan(&r.ID, &r.StaffID, &r.BusinessID, &day, &r.StartMinute, &r.EndMinute, &r.IsAvailable); err != nil {
			return nil, err
		}
		r.DayOfWeek = time.Weekday(day)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) Overrides(ctx context.Context, staffID *uuid.UUID, date time.Time) ([]model.AvailabilityOverride, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, staff_id, date, is_available, start_minute, end_minute, reason
		FROM availability_overrides
		WHERE date = $1::date AND ($2::uuid IS NULL OR staff_id = $2)
		ORDER BY start_minute NULLS FIRST
	`, date.Format(time.DateOnly), staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityOverride
	for rows.Next() {
		var o model.AvailabilityOverride
		if err := rows.Scan(&o.ID, &o.StaffID, &o.Date, &o.IsAvailable, &o.StartMinute, &o.EndMinute, &o.Reason); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
