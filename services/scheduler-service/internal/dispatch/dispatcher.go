// Package dispatch delivers due appointment reminders. A Dispatcher owns its
// schedule; Sweep runs one pass and can be called directly.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/notify"
	otelx "github.com/kareemschultz/SYNERGY-GY-sub000/libs/otel"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const tracerName = "dispatch"

type Config struct {
	Schedule    string
	BatchSize   int
	Concurrency int
	SendTimeout time.Duration
	MaxAttempts int
	Backoff     time.Duration
	ClaimTTL    time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// SweepResult counts what one sweep did with its claimed batch.
type SweepResult struct {
	Claimed      int
	Sent         int
	Skipped      int
	Failed       int
	DeadLettered int
	// LeaseHeld is set when another sweeper owned the lease and nothing ran.
	LeaseHeld bool
}

type outcome int

const (
	outcomeSent outcome = iota + 1
	outcomeSkipped
	outcomeFailed
	outcomeDeadLettered
)

type Dispatcher struct {
	store  Store
	sender notify.Sender
	lease  Lease
	logger *slog.Logger
	cfg    Config
	cron   *cron.Cron
}

// WithDefaults fills unset fields and raises ClaimTTL to MinClaimTTL so claims
// and the sweep lease outlive a full batch of timed-out sends.
func (c Config) WithDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = "@every 5m"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = 5 * time.Minute
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 2 * time.Minute
	}
	if floor := c.MinClaimTTL(); c.ClaimTTL < floor {
		c.ClaimTTL = floor
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// MinClaimTTL is the longest a sweep can spend sending its batch, plus one
// send timeout of margin for the store calls around it.
func (c Config) MinClaimTTL() time.Duration {
	if c.BatchSize <= 0 || c.Concurrency <= 0 || c.SendTimeout <= 0 {
		return 0
	}
	rounds := (c.BatchSize + c.Concurrency - 1) / c.Concurrency
	return time.Duration(rounds+1) * c.SendTimeout
}

// New builds a dispatcher. lease may be nil when a single replica runs; when
// set, its TTL should be the ClaimTTL of cfg.WithDefaults().
func New(store Store, sender notify.Sender, lease Lease, logger *slog.Logger, cfg Config) *Dispatcher {
	requested := cfg.ClaimTTL
	cfg = cfg.WithDefaults()
	if requested > 0 && requested < cfg.ClaimTTL {
		logger.Warn("claim ttl raised to cover a full sweep", "requested", requested, "claim_ttl", cfg.ClaimTTL)
	}
	return &Dispatcher{
		store:  store,
		sender: sender,
		lease:  lease,
		logger: logger,
		cfg:    cfg,
	}
}

// ClaimTTL is the effective claim lifetime.
func (d *Dispatcher) ClaimTTL() time.Duration {
	return d.cfg.ClaimTTL
}

// Start schedules sweeps until Stop. A sweep still running when the next one
// is due causes that tick to be skipped.
func (d *Dispatcher) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{d.logger})))
	if _, err := c.AddFunc(d.cfg.Schedule, func() { d.run(ctx) }); err != nil {
		return fmt.Errorf("dispatch schedule %q: %w", d.cfg.Schedule, err)
	}
	d.cron = c
	c.Start()
	d.logger.Info("reminder dispatcher started", "schedule", d.cfg.Schedule, "batch_size", d.cfg.BatchSize)
	return nil
}

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cron == nil {
		return nil
	}
	done := d.cron.Stop()
	select {
	case <-done.Done():
		d.logger.Info("reminder dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	res, err := d.Sweep(ctx)
	if err != nil {
		d.logger.Error("reminder sweep failed", "err", err)
		return
	}
	if res.Claimed > 0 {
		d.logger.Info("reminder sweep finished",
			"claimed", res.Claimed,
			"sent", res.Sent,
			"skipped", res.Skipped,
			"failed", res.Failed,
			"dead_lettered", res.DeadLettered,
		)
	}
}

// Sweep claims one batch of due reminders and resolves each of them. Sends
// run in parallel up to the configured concurrency; every reminder is marked
// only after its own send has returned.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "reminders.sweep")
	defer span.End()

	if d.lease != nil {
		release, ok, err := d.lease.Acquire(ctx)
		if err != nil {
			span.RecordError(err)
			return SweepResult{}, fmt.Errorf("acquire sweep lease: %w", err)
		}
		if !ok {
			d.logger.Debug("reminder sweep skipped, lease held elsewhere")
			return SweepResult{LeaseHeld: true}, nil
		}
		defer release()
	}

	due, err := d.store.ClaimDue(ctx, d.cfg.Now(), d.cfg.BatchSize, d.cfg.ClaimTTL)
	if err != nil {
		span.RecordError(err)
		return SweepResult{}, fmt.Errorf("claim due reminders: %w", err)
	}
	span.SetAttributes(attribute.Int("reminders.claimed", len(due)))

	outcomes := make([]outcome, len(due))
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for i, r := range due {
		g.Go(func() error {
			o, err := d.process(ctx, r)
			outcomes[i] = o
			return err
		})
	}
	err = g.Wait()

	res := SweepResult{Claimed: len(due)}
	for _, o := range outcomes {
		switch o {
		case outcomeSent:
			res.Sent++
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Failed++
		case outcomeDeadLettered:
			res.DeadLettered++
		}
	}
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	return res, nil
}

func (d *Dispatcher) process(ctx context.Context, r Reminder) (outcome, error) {
	ctx = otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	log := d.logger.With("reminder_id", r.ID, "appointment_id", r.AppointmentID)

	appt := r.Appointment
	switch {
	case appt == nil:
		log.Info("reminder skipped, appointment missing")
		return outcomeSkipped, d.markSent(ctx, r)
	case appt.Status == StatusCancelled || appt.Status == StatusRescheduled:
		log.Info("reminder skipped, appointment no longer scheduled", "status", appt.Status)
		return outcomeSkipped, d.markSent(ctx, r)
	case appt.RecipientEmail == "":
		log.Warn("reminder skipped, no contact address")
		return outcomeSkipped, d.markSent(ctx, r)
	}

	msg := reminderMessage(r)
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err := d.sender.Send(sendCtx, msg)
	cancel()
	if err == nil {
		log.Info("reminder sent", "kind", msg.Kind)
		return outcomeSent, d.markSent(ctx, r)
	}

	now := d.cfg.Now()
	attempts := r.Attempts + 1
	if attempts >= d.cfg.MaxAttempts {
		log.Error("reminder dead-lettered", "err", err, "attempts", attempts)
		if err := d.store.DeadLetter(ctx, r, attempts, err.Error(), now); err != nil {
			return outcomeDeadLettered, fmt.Errorf("dead-letter reminder %s: %w", r.ID, err)
		}
		return outcomeDeadLettered, nil
	}
	next := now.Add(d.cfg.Backoff * time.Duration(attempts))
	log.Error("reminder send failed", "err", err, "attempts", attempts, "next_attempt_at", next)
	if err := d.store.MarkFailed(ctx, r.ID, attempts, next, err.Error()); err != nil {
		return outcomeFailed, fmt.Errorf("record reminder failure %s: %w", r.ID, err)
	}
	return outcomeFailed, nil
}

func (d *Dispatcher) markSent(ctx context.Context, r Reminder) error {
	if err := d.store.MarkSent(ctx, r.ID, d.cfg.Now()); err != nil {
		return fmt.Errorf("mark reminder %s sent: %w", r.ID, err)
	}
	return nil
}

func reminderMessage(r Reminder) notify.Message {
	a := r.Appointment
	return notify.Message{
		ID:            r.ID.String(),
		Kind:          notify.ReminderKind(r.MinutesBefore),
		Recipient:     a.RecipientEmail,
		RecipientName: a.RecipientName,
		Appointment: notify.AppointmentContext{
			ID:              a.ID.String(),
			BusinessID:      a.BusinessID.String(),
			TypeName:        a.TypeName,
			Status:          a.Status,
			ScheduledAt:     a.ScheduledAt,
			EndAt:           a.EndAt,
			StaffName:       a.StaffName,
			LocationType:    a.LocationType,
			LocationAddress: a.LocationAddress,
		},
	}
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
