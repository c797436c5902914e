// Package delivery turns consumed events into e-mails.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/email"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/notify"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// Booking lifecycle topics that may carry a notice for the booker.
const (
	TopicBookingRequested = "booking.appointment.requested.v1"
	TopicBookingConfirmed = "booking.appointment.confirmed.v1"
	TopicBookingCancelled = "booking.appointment.cancelled.v1"
)

// Topics lists everything the handler understands.
var Topics = []string{
	notify.TopicRequested,
	TopicBookingRequested,
	TopicBookingConfirmed,
	TopicBookingCancelled,
}

type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Handler struct {
	mail    email.Sender
	loc     *time.Location
	records Recorder
	logger  *slog.Logger
	timeout time.Duration
}

func NewHandler(mail email.Sender, loc *time.Location, records Recorder, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{mail: mail, loc: loc, records: records, logger: logger, timeout: 15 * time.Second}
}

// lifecycleEvent is the part of a booking event this service reads.
type lifecycleEvent struct {
	Notification *notify.Message `json:"notification"`
}

// Handle delivers the message carried by msg, if any. Malformed payloads are
// logged and dropped. Every attempt is recorded; a failed send is returned so
// the consumer retries it.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	note, err := decode(msg)
	if err != nil {
		h.logger.Error("invalid notification payload", "topic", msg.Topic, "err", err)
		return nil
	}
	if note == nil {
		return nil
	}
	if note.Recipient == "" {
		h.logger.Warn("notification without recipient dropped", "notification_id", note.ID, "kind", note.Kind)
		return nil
	}

	rec := storage.Notification{
		AppointmentID: note.Appointment.ID,
		Kind:          note.Kind,
		Channel:       "email",
		Recipient:     note.Recipient,
		Message:       *note,
		Status:        storage.StatusSent,
	}
	sendErr := h.send(ctx, *note)
	if sendErr != nil {
		h.logger.Error("email send failed", "notification_id", note.ID, "kind", note.Kind, "err", sendErr)
		rec.Status = storage.StatusFailed
		rec.Error = sendErr.Error()
	}
	if err := h.records.Insert(ctx, rec); err != nil {
		return fmt.Errorf("record notification %s: %w", note.ID, err)
	}
	if sendErr != nil {
		return fmt.Errorf("send notification %s: %w", note.ID, sendErr)
	}
	h.logger.Info("notification processed", "notification_id", note.ID, "kind", note.Kind, "status", rec.Status)
	return nil
}

func (h *Handler) send(ctx context.Context, note notify.Message) error {
	subject, body, err := notify.Render(note, h.loc)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.mail.Send(ctx, note.Recipient, subject, body)
}

func decode(msg kafka.Message) (*notify.Message, error) {
	switch msg.Topic {
	case notify.TopicRequested:
		var m notify.Message
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case TopicBookingRequested, TopicBookingConfirmed, TopicBookingCancelled:
		var evt lifecycleEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return nil, err
		}
		return evt.Notification, nil
	}
	return nil, fmt.Errorf("unexpected topic %q", msg.Topic)
}
