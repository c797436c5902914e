// Package reminders plans the reminder rows created when an appointment is
// confirmed.
package reminders

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	otelx "github.com/kareemschultz/SYNERGY-GY-sub000/libs/otel"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

const ChannelEmail = "email"

// DefaultOffsets is a day-before and an hour-before reminder.
var DefaultOffsets = []time.Duration{24 * time.Hour, time.Hour}

type Scheduler struct {
	offsets []time.Duration
}

// NewScheduler dedupes the offsets and orders them longest first. Non-positive
// offsets are dropped; an empty set falls back to DefaultOffsets.
func NewScheduler(offsets []time.Duration) *Scheduler {
	seen := make(map[time.Duration]bool, len(offsets))
	var kept []time.Duration
	for _, o := range offsets {
		o = o.Truncate(time.Minute)
		if o <= 0 || seen[o] {
			continue
		}
		seen[o] = true
		kept = append(kept, o)
	}
	if len(kept) == 0 {
		kept = append(kept, DefaultOffsets...)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i] > kept[j] })
	return &Scheduler{offsets: kept}
}

func (s *Scheduler) Offsets() []time.Duration {
	return append([]time.Duration(nil), s.offsets...)
}

// Plan returns one pending reminder per offset whose fire time is still in
// the future. The caller's trace context is stored on each row so the
// dispatcher can continue the trace.
func (s *Scheduler) Plan(ctx context.Context, appt model.Appointment, now time.Time) []model.Reminder {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	var out []model.Reminder
	for _, o := range s.offsets {
		at := appt.ScheduledAt.Add(-o)
		if !at.After(now) {
			continue
		}
		out = append(out, model.Reminder{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			MinutesBefore: int(o / time.Minute),
			ScheduledAt:   at,
			Channel:       ChannelEmail,
			Traceparent:   traceparent,
			Tracestate:    tracestate,
		})
	}
	return out
}
