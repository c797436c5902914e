package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/notify"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type reminderRow struct {
	Reminder
	sent          bool
	sentAt        time.Time
	nextAttemptAt time.Time
	lastError     string
	deadLettered  bool
}

// memStore keeps reminders in memory and returns every live, due row.
type memStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*reminderRow
	dlq  []uuid.UUID
}

func newMemStore(rs ...Reminder) *memStore {
	s := &memStore{rows: map[uuid.UUID]*reminderRow{}}
	for _, r := range rs {
		s.rows[r.ID] = &reminderRow{Reminder: r}
	}
	return s
}

func (s *memStore) ClaimDue(_ context.Context, now time.Time, limit int, _ time.Duration) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reminder
	for _, row := range s.rows {
		if row.sent || row.deadLettered || row.ScheduledAt.After(now) || row.nextAttemptAt.After(now) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, row.Reminder)
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	if row.sent {
		return nil
	}
	row.sent = true
	row.sentAt = at
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id uuid.UUID, attempts int, next time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.Attempts = attempts
	row.nextAttemptAt = next
	row.lastError = lastError
	return nil
}

func (s *memStore) DeadLetter(_ context.Context, r Reminder, attempts int, reason string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[r.ID]
	row.Attempts = attempts
	row.lastError = reason
	row.deadLettered = true
	s.dlq = append(s.dlq, r.ID)
	return nil
}

func (s *memStore) row(id uuid.UUID) reminderRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(store Store, sender notify.Sender, lease Lease) *Dispatcher {
	return New(store, sender, lease, testLogger(), Config{
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Now:         func() time.Time { return testNow },
	})
}

func dueReminder(minutesBefore int, status string) Reminder {
	apptID := uuid.New()
	start := testNow.Add(time.Duration(minutesBefore) * time.Minute)
	return Reminder{
		ID:            uuid.New(),
		AppointmentID: apptID,
		MinutesBefore: minutesBefore,
		ScheduledAt:   testNow.Add(-time.Minute),
		Channel:       "email",
		Appointment: &Appointment{
			ID:             apptID,
			BusinessID:     uuid.New(),
			Status:         status,
			TypeName:       "Consultation",
			ScheduledAt:    start,
			EndAt:          start.Add(time.Hour),
			RecipientEmail: "client@example.com",
			RecipientName:  "Ada Client",
		},
	}
}

func TestSweepSkipsCancelledAppointmentWithoutSending(t *testing.T) {
	r := dueReminder(60, StatusCancelled)
	store := newMemStore(r)
	sender := &recordingSender{}

	res, err := newDispatcher(store, sender, nil).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sender.count() != 0 {
		t.Fatalf("expected no send attempt, got %d", sender.count())
	}
	if !store.row(r.ID).sent {
		t.Fatalf("expected cancelled reminder marked sent")
	}
	if res.Skipped != 1 || res.Sent != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSweepSkipsStaleAndUncontactable(t *testing.T) {
	missing := dueReminder(60, "CONFIRMED")
	missing.Appointment = nil
	rescheduled := dueReminder(60, StatusRescheduled)
	noContact := dueReminder(60, "CONFIRMED")
	noContact.Appointment.RecipientEmail = ""

	store := newMemStore(missing, rescheduled, noContact)
	sender := &recordingSender{}
	res, err := newDispatcher(store, sender, nil).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sender.count() != 0 {
		t.Fatalf("expected no sends, got %d", sender.count())
	}
	for _, r := range []Reminder{missing, rescheduled, noContact} {
		if !store.row(r.ID).sent {
			t.Fatalf("reminder %s not marked sent", r.ID)
		}
	}
	if res.Skipped != 3 {
		t.Fatalf("expected 3 skipped, got %+v", res)
	}
}

func TestSweepSendsAndClassifies(t *testing.T) {
	day := dueReminder(1440, "CONFIRMED")
	two := dueReminder(120, "CONFIRMED")
	one := dueReminder(60, "CONFIRMED")
	store := newMemStore(day, two, one)
	sender := &recordingSender{}

	res, err := newDispatcher(store, sender, nil).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Sent != 3 || res.Claimed != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	kinds := map[string]notify.Kind{}
	for _, m := range sender.msgs {
		kinds[m.ID] = m.Kind
		if m.Recipient != "client@example.com" || m.RecipientName != "Ada Client" {
			t.Fatalf("unexpected recipient %q %q", m.Recipient, m.RecipientName)
		}
	}
	want := map[uuid.UUID]notify.Kind{
		day.ID: notify.KindReminder24h,
		two.ID: notify.KindReminder2h,
		one.ID: notify.KindReminder1h,
	}
	for id, kind := range want {
		if kinds[id.String()] != kind {
			t.Fatalf("reminder %s: expected %s, got %s", id, kind, kinds[id.String()])
		}
		row := store.row(id)
		if !row.sent || !row.sentAt.Equal(testNow) {
			t.Fatalf("reminder %s not marked sent at sweep time: %+v", id, row)
		}
	}
}

func TestSweepFailureBacksOffThenDeadLetters(t *testing.T) {
	r := dueReminder(60, "CONFIRMED")
	store := newMemStore(r)
	sender := &recordingSender{err: errors.New("smtp unavailable")}
	now := testNow
	d := New(store, sender, nil, testLogger(), Config{
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Now:         func() time.Time { return now },
	})

	res, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	row := store.row(r.ID)
	if res.Failed != 1 || row.sent || row.Attempts != 1 {
		t.Fatalf("unexpected state after first failure: %+v %+v", res, row)
	}
	if !row.nextAttemptAt.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expected next attempt after one backoff, got %s", row.nextAttemptAt)
	}

	// Not due again until the backoff elapses.
	if res, _ := d.Sweep(context.Background()); res.Claimed != 0 {
		t.Fatalf("expected nothing claimed during backoff, got %+v", res)
	}

	now = now.Add(5 * time.Minute)
	if _, err := d.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	row = store.row(r.ID)
	if row.Attempts != 2 || !row.nextAttemptAt.Equal(now.Add(10*time.Minute)) {
		t.Fatalf("expected second backoff to double, got %+v", row)
	}

	now = now.Add(10 * time.Minute)
	res, err = d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	row = store.row(r.ID)
	if res.DeadLettered != 1 || !row.deadLettered || row.sent {
		t.Fatalf("expected dead-lettered and unsent: %+v %+v", res, row)
	}
	if len(store.dlq) != 1 || row.lastError != "smtp unavailable" {
		t.Fatalf("unexpected dead-letter record: %v %q", store.dlq, row.lastError)
	}

	now = now.Add(time.Hour)
	if res, _ := d.Sweep(context.Background()); res.Claimed != 0 {
		t.Fatalf("dead-lettered reminder claimed again: %+v", res)
	}
	if sender.count() != 3 {
		t.Fatalf("expected 3 send attempts, got %d", sender.count())
	}
}

func TestSweepHonoursSendTimeout(t *testing.T) {
	r := dueReminder(60, "CONFIRMED")
	store := newMemStore(r)
	sender := notify.SenderFunc(func(ctx context.Context, _ notify.Message) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d := New(store, sender, nil, testLogger(), Config{
		SendTimeout: 20 * time.Millisecond,
		Now:         func() time.Time { return testNow },
	})

	res, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Failed != 1 || store.row(r.ID).sent {
		t.Fatalf("expected timed-out send to be retried later: %+v", res)
	}
}

func TestSweepBoundsConcurrency(t *testing.T) {
	var rs []Reminder
	for i := 0; i < 12; i++ {
		rs = append(rs, dueReminder(60, "CONFIRMED"))
	}
	store := newMemStore(rs...)

	var inFlight, peak atomic.Int32
	sender := notify.SenderFunc(func(context.Context, notify.Message) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	d := New(store, sender, nil, testLogger(), Config{
		Concurrency: 3,
		Now:         func() time.Time { return testNow },
	})

	res, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Sent != 12 {
		t.Fatalf("expected 12 sent, got %+v", res)
	}
	if peak.Load() > 3 {
		t.Fatalf("expected at most 3 concurrent sends, saw %d", peak.Load())
	}
}

type stubLease struct {
	ok       bool
	released bool
}

func (l *stubLease) Acquire(context.Context) (func(), bool, error) {
	return func() { l.released = true }, l.ok, nil
}

func TestSweepRequiresLease(t *testing.T) {
	r := dueReminder(60, "CONFIRMED")
	store := newMemStore(r)
	sender := &recordingSender{}

	held := &stubLease{ok: false}
	res, err := newDispatcher(store, sender, held).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !res.LeaseHeld || sender.count() != 0 {
		t.Fatalf("expected sweep to stand down, got %+v", res)
	}

	free := &stubLease{ok: true}
	res, err = newDispatcher(store, sender, free).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Sent != 1 || !free.released {
		t.Fatalf("expected send and lease release, got %+v released=%v", res, free.released)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	d := New(newMemStore(), &recordingSender{}, nil, testLogger(), Config{Schedule: "every so often"})
	if err := d.Start(context.Background()); err == nil {
		t.Fatalf("expected schedule error")
	}
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("stop without start: %v", err)
	}
}

func TestStartStop(t *testing.T) {
	d := newDispatcher(newMemStore(), &recordingSender{}, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestClaimTTLCoversWorstCaseSweep(t *testing.T) {
	cfg := Config{}.WithDefaults()
	// 50 reminders at concurrency 4 with a 10s timeout can take 13 rounds.
	worst := 13 * 10 * time.Second
	if cfg.ClaimTTL <= worst {
		t.Fatalf("default claim ttl %s does not outlive a %s sweep", cfg.ClaimTTL, worst)
	}

	d := New(newMemStore(), &recordingSender{}, nil, testLogger(), Config{
		BatchSize:   50,
		Concurrency: 4,
		SendTimeout: 10 * time.Millisecond,
		ClaimTTL:    120 * time.Millisecond,
	})
	if got, want := d.ClaimTTL(), 140*time.Millisecond; got != want {
		t.Fatalf("claim ttl = %s, want %s", got, want)
	}

	d = New(newMemStore(), &recordingSender{}, nil, testLogger(), Config{
		BatchSize:   10,
		Concurrency: 5,
		SendTimeout: time.Second,
		ClaimTTL:    time.Minute,
	})
	if d.ClaimTTL() != time.Minute {
		t.Fatalf("sufficient claim ttl was changed to %s", d.ClaimTTL())
	}
}
