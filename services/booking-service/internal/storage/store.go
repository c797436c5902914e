// Package storage is the Postgres side of the booking service.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/db"
	"github.com/kareemschultz/SYNERGY-GY-sub000/libs/outbox"
	"github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/booking"
)

const overlapConstraint = "appointments_no_overlap"

// Store implements booking.Store and availability.RuleSource.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool, outbox: outbox.NewRepository()}
}

// InTx runs fn in a serializable transaction; db.Pool retries it once on a
// serialization failure.
func (s *Store) InTx(ctx context.Context, fn func(booking.Tx) error) error {
	return s.pool.InTx(ctx, db.Serializable, func(tx pgx.Tx) error {
		return fn(&bookingTx{tx: tx, outbox: s.outbox})
	})
}

// mapError turns row-level failures into the booking sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23P01":
			return fmt.Errorf("%w: %s", booking.ErrConflict, pgErr.ConstraintName)
		case pgErr.Code == "23505" && pgErr.ConstraintName == overlapConstraint:
			return fmt.Errorf("%w: %s", booking.ErrConflict, pgErr.ConstraintName)
		case pgErr.Code == "23503":
			return fmt.Errorf("%w: %s", booking.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}
