// Package storage records delivered and failed notifications.
package storage

import (
	"context"
	"encoding/json"

	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/db"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/notify"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	AppointmentID string
	Kind          notify.Kind
	Channel       string
	Recipient     string
	Message       notify.Message
	Status        string
	Error         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Message)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, kind, channel, recipient, payload, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.AppointmentID, string(n.Kind), n.Channel, n.Recipient, payload, n.Status, n.Error)
	return err
}
