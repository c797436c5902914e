package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

func TestReminderKind(t *testing.T) {
	cases := []struct {
		minutes int
		want    Kind
	}{
		{1440, KindReminder24h},
		{1380, KindReminder24h},
		{1379, KindReminder2h},
		{120, KindReminder2h},
		{90, KindReminder2h},
		{89, KindReminder1h},
		{60, KindReminder1h},
	}
	for _, tc := range cases {
		if got := ReminderKind(tc.minutes); got != tc.want {
			t.Fatalf("ReminderKind(%d) = %s, want %s", tc.minutes, got, tc.want)
		}
	}
}

func sampleMessage(kind Kind) Message {
	return Message{
		ID:            "rem-1",
		Kind:          kind,
		Recipient:     "client@example.com",
		RecipientName: "Asha",
		Appointment: AppointmentContext{
			ID:              "appt-1",
			TypeName:        "Tax consultation",
			ScheduledAt:     time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
			StaffName:       "R. Persaud",
			LocationAddress: "12 Main St",
			ManagementToken: "ABCD2345EFGH",
		},
	}
}

func TestRenderEveryKind(t *testing.T) {
	for _, kind := range []Kind{KindReminder24h, KindReminder2h, KindReminder1h, KindBookingRequested, KindBookingConfirmed, KindBookingCancelled} {
		subject, body, err := Render(sampleMessage(kind), time.UTC)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if subject == "" || !strings.Contains(body, "Hello Asha") || !strings.Contains(body, "Monday, 2 March 2026 at 14:00 UTC") {
			t.Fatalf("%s: unexpected output %q / %q", kind, subject, body)
		}
	}
	_, body, _ := Render(sampleMessage(KindBookingConfirmed), time.UTC)
	if !strings.Contains(body, "ABCD2345EFGH") || !strings.Contains(body, "With: R. Persaud") {
		t.Fatalf("details missing: %q", body)
	}
	if _, _, err := Render(Message{Kind: "unknown"}, nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaSender(t *testing.T) {
	w := &recordingWriter{}
	if err := NewKafkaSender(w).Send(context.Background(), sampleMessage(KindReminder1h)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(w.msgs) != 1 || w.msgs[0].Topic != TopicRequested || string(w.msgs[0].Key) != "appt-1" {
		t.Fatalf("unexpected kafka messages %+v", w.msgs)
	}
	if kafkax.ExtractEventMeta(w.msgs[0]).EventID != "rem-1" {
		t.Fatal("expected message id as event id")
	}
	var decoded Message
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil || decoded.Kind != KindReminder1h {
		t.Fatalf("bad payload: %v %+v", err, decoded)
	}

	w.err = errors.New("broker down")
	if err := NewKafkaSender(w).Send(context.Background(), sampleMessage(KindReminder1h)); err == nil {
		t.Fatal("expected broker error to surface")
	}
}

type fakeMail struct {
	to, subject, body string
}

func (m *fakeMail) Send(_ context.Context, to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return nil
}

func TestEmailSender(t *testing.T) {
	mail := &fakeMail{}
	if err := NewEmailSender(mail, time.UTC).Send(context.Background(), sampleMessage(KindReminder24h)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if mail.to != "client@example.com" || !strings.Contains(mail.subject, "tomorrow") {
		t.Fatalf("unexpected mail %+v", mail)
	}
}
