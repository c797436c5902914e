package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"
)

// ListTypes returns every appointment type, ordered by name.
func (s *Store) ListTypes(ctx context.Context) ([]model.AppointmentType, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+typeColumns+` FROM appointment_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AppointmentType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PublishType enables public booking for a type under token, replacing any
// previous token.
func (s *Store) PublishType(ctx context.Context, id uuid.UUID, token string) (model.AppointmentType, error) {
	return scanType(s.pool.QueryRow(ctx, `
		UPDATE appointment_types
		SET public_booking_enabled = true, public_booking_token = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+typeColumns, id, token))
}

func (s *Store) UnpublishType(ctx context.Context, id uuid.UUID) (model.AppointmentType, error) {
	return scanType(s.pool.QueryRow(ctx, `
		UPDATE appointment_types
		SET public_booking_enabled = false, updated_at = now()
		WHERE id = $1
		RETURNING `+typeColumns, id))
}
