package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/booking"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, booking.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), booking.ErrNotFound},
		{"exclusion", &pgconn.PgError{Code: "23P01", ConstraintName: overlapConstraint}, booking.ErrConflict},
		{"unique on overlap", &pgconn.PgError{Code: "23505", ConstraintName: overlapConstraint}, booking.ErrConflict},
		{"foreign key", &pgconn.PgError{Code: "23503", ConstraintName: "appointments_appointment_type_id_fkey"}, booking.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapError(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("mapError(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	other := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_management_token_hash_key"}
	if got := mapError(other); errors.Is(got, booking.ErrConflict) || got != error(other) {
		t.Fatalf("unrelated unique violation must pass through, got %v", got)
	}
	if mapError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
