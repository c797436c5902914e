package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/email"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// TopicRequested carries messages from producers to notification-service.
const TopicRequested = "notification.requested.v1"

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSender hands messages to notification-service. The send succeeds once
// the broker acknowledges the write.
type KafkaSender struct {
	writer MessageWriter
	topic  string
}

func NewKafkaSender(writer MessageWriter) *KafkaSender {
	return &KafkaSender{writer: writer, topic: TopicRequested}
}

func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		return errors.New("notify: message id is required")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafkax.NewMessage(ctx, s.topic, msg.Appointment.ID, msg.ID, payload))
}

// EmailSender renders and delivers messages directly over SMTP.
type EmailSender struct {
	mail email.Sender
	loc  *time.Location
}

func NewEmailSender(mail email.Sender, loc *time.Location) *EmailSender {
	return &EmailSender{mail: mail, loc: loc}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	subject, body, err := Render(msg, s.loc)
	if err != nil {
		return err
	}
	return s.mail.Send(ctx, msg.Recipient, subject, body)
}
