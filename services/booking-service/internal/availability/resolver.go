package availability

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

// Default working hours used when nothing is configured for a date.
const (
	DefaultStartMinute = 9 * 60
	DefaultEndMinute   = 17 * 60
)

type Query struct {
	StaffID    *uuid.UUID
	BusinessID uuid.UUID
	// Date is any instant on the target calendar day in the resolver's location.
	Date time.Time
}

// RuleSource loads the configuration the resolver combines.
type RuleSource interface {
	WeeklyRules(ctx context.Context, staffID *uuid.UUID, weekday time.Weekday) ([]model.WeeklyAvailabilityRule, error)
	Overrides(ctx context.Context, staffID *uuid.UUID, date time.Time) ([]model.AvailabilityOverride, error)
}

type Resolver struct {
	src RuleSource
	loc *time.Location
}

func NewResolver(src RuleSource, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{src: src, loc: loc}
}

func (r *Resolver) Location() *time.Location { return r.loc }

// Resolve returns the open working blocks for the query's date, ordered by
// start time.
func (r *Resolver) Resolve(ctx context.Context, q Query) ([]Interval, error) {
	day := StartOfDay(q.Date, r.loc)
	rules, err := r.src.WeeklyRules(ctx, q.StaffID, day.Weekday())
	if err != nil {
		return nil, err
	}
	overrides, err := r.src.Overrides(ctx, q.StaffID, day)
	if err != nil {
		return nil, err
	}
	return EffectiveBlocks(day, q.StaffID, q.BusinessID, rules, overrides), nil
}

// EffectiveBlocks applies the precedence rules to already-loaded rows:
//  1. any unavailable override empties the day;
//  2. otherwise available overrides replace the weekly rules;
//  3. otherwise the matching available weekly rules apply;
//  4. with nothing configured the day falls back to 09:00-17:00.
//
// Without a staff member the blocks of every staff member are merged so the
// result never contains overlapping blocks.
func EffectiveBlocks(day time.Time, staffID *uuid.UUID, businessID uuid.UUID, rules []model.WeeklyAvailabilityRule, overrides []model.AvailabilityOverride) []Interval {
	var dayOverrides []model.AvailabilityOverride
	for _, o := range overrides {
		if staffID != nil && o.StaffID != *staffID {
			continue
		}
		if !sameDate(o.Date, day) {
			continue
		}
		dayOverrides = append(dayOverrides, o)
	}

	for _, o := range dayOverrides {
		if !o.IsAvailable {
			return []Interval{}
		}
	}

	var blocks []Interval
	if len(dayOverrides) > 0 {
		for _, o := range dayOverrides {
			if o.StartMinute == nil || o.EndMinute == nil {
				blocks = append(blocks, block(day, DefaultStartMinute, DefaultEndMinute))
				continue
			}
			if *o.EndMinute > *o.StartMinute {
				blocks = append(blocks, block(day, *o.StartMinute, *o.EndMinute))
			}
		}
	} else {
		for _, rule := range rules {
			if !ruleMatches(rule, day.Weekday(), staffID, businessID) {
				continue
			}
			blocks = append(blocks, block(day, rule.StartMinute, rule.EndMinute))
		}
	}

	if len(blocks) == 0 && len(dayOverrides) == 0 {
		return []Interval{block(day, DefaultStartMinute, DefaultEndMinute)}
	}

	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Start.Before(blocks[j].Start) })
	if staffID == nil {
		blocks = mergeOverlapping(blocks)
	}
	return blocks
}

func ruleMatches(rule model.WeeklyAvailabilityRule, weekday time.Weekday, staffID *uuid.UUID, businessID uuid.UUID) bool {
	if !rule.IsAvailable || rule.DayOfWeek != weekday || rule.EndMinute <= rule.StartMinute {
		return false
	}
	if staffID != nil && rule.StaffID != *staffID {
		return false
	}
	return rule.BusinessID == nil || *rule.BusinessID == businessID
}

// mergeOverlapping expects blocks sorted by start.
func mergeOverlapping(blocks []Interval) []Interval {
	if len(blocks) < 2 {
		return blocks
	}
	out := []Interval{blocks[0]}
	for _, b := range blocks[1:] {
		last := &out[len(out)-1]
		if Overlaps(*last, b) {
			if b.End.After(last.End) {
				last.End = b.End
			}
			continue
		}
		out = append(out, b)
	}
	return out
}

func block(day time.Time, startMinute, endMinute int) Interval {
	return Interval{Start: atMinute(day, startMinute), End: atMinute(day, endMinute)}
}

// atMinute returns the wall-clock time minute minutes after midnight of day.
func atMinute(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, minute, 0, 0, day.Location())
}

// StartOfDay returns local midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ParseDate parses YYYY-MM-DD as local midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, raw, loc)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
