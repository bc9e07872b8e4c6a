package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/islandtours/tour-booking-backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DefaultReserveMaxRetries bounds transaction retries when Postgres reports
// a deadlock or serialization failure during a reservation.
const DefaultReserveMaxRetries = 5

// TourRepository is the inventory ledger: all mutations of a tour's
// booked_participants counter go through it, so two concurrent reservations
// against the same tour are linearized by the row lock.
type TourRepository struct {
	db         *sqlx.DB
	maxRetries int
}

// NewTourRepository creates a new TourRepository
func NewTourRepository(db *sqlx.DB) *TourRepository {
	return &TourRepository{db: db, maxRetries: DefaultReserveMaxRetries}
}

// SetMaxRetries overrides the retry bound for reservation transactions.
// Non-positive values are ignored.
func (r *TourRepository) SetMaxRetries(n int) {
	if n > 0 {
		r.maxRetries = n
	}
}

// GetByID retrieves a tour by ID
func (r *TourRepository) GetByID(tourID uuid.UUID) (*models.Tour, error) {
	var tour models.Tour
	query := `
		SELECT id, category_id, name, description, price, max_participants,
		       booked_participants, is_active, created_at, updated_at
		FROM tours
		WHERE id = $1`

	err := r.db.Get(&tour, query, tourID)
	if err == sql.ErrNoRows {
		return nil, models.ErrTourNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tour: %w", err)
	}
	return &tour, nil
}

// ListActive retrieves all active tours
func (r *TourRepository) ListActive(limit, offset int) ([]models.Tour, error) {
	query := `
		SELECT id, category_id, name, description, price, max_participants,
		       booked_participants, is_active, created_at, updated_at
		FROM tours
		WHERE is_active = true
		ORDER BY name
		LIMIT $1 OFFSET $2`

	var tours []models.Tour
	err := r.db.Select(&tours, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tours: %w", err)
	}
	return tours, nil
}

// ============================================================================
// INVENTORY LEDGER OPERATIONS
// ============================================================================

// ReserveInTx reserves count seats on a tour inside the caller's transaction.
// The tour row is locked before the capacity check so concurrent reservations
// serialize; the whole transaction aborts on a shortfall with no partial
// state. Returns the seats remaining after this reservation.
func (r *TourRepository) ReserveInTx(tx *sqlx.Tx, tourID uuid.UUID, count int) (int, error) {
	if count < 1 {
		return 0, fmt.Errorf("reservation count must be positive, got %d", count)
	}

	var capacity struct {
		MaxParticipants    int `db:"max_participants"`
		BookedParticipants int `db:"booked_participants"`
	}
	err := tx.Get(&capacity, `
		SELECT max_participants, booked_participants
		FROM tours
		WHERE id = $1
		FOR UPDATE`, tourID)
	if err == sql.ErrNoRows {
		return 0, models.ErrTourNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock tour row: %w", err)
	}

	available := capacity.MaxParticipants - capacity.BookedParticipants
	if available < count {
		return 0, &models.InsufficientCapacityError{Requested: count, Available: available}
	}

	_, err = tx.Exec(`
		UPDATE tours
		SET booked_participants = booked_participants + $2, updated_at = NOW()
		WHERE id = $1`, tourID, count)
	if err != nil {
		return 0, fmt.Errorf("failed to commit seats: %w", err)
	}

	return available - count, nil
}

// ReleaseInTx returns count seats to a tour inside the caller's transaction.
// Floored at zero: a correct caller never drives the counter negative, the
// GREATEST guard just keeps the invariant if one does.
func (r *TourRepository) ReleaseInTx(tx *sqlx.Tx, tourID uuid.UUID, count int) error {
	_, err := tx.Exec(`
		UPDATE tours
		SET booked_participants = GREATEST(booked_participants - $2, 0), updated_at = NOW()
		WHERE id = $1`, tourID, count)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	return nil
}

// Reserve reserves count seats on a tour in its own transaction, retrying on
// deadlock or serialization failure. Failed attempts leave no side effects.
func (r *TourRepository) Reserve(tourID uuid.UUID, count int) (int, error) {
	var remaining int
	err := r.withRetry(func() error {
		tx, err := r.db.Beginx()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		remaining, err = r.ReserveInTx(tx, tourID, count)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	return remaining, err
}

// Release returns count seats to a tour as a single atomic update
func (r *TourRepository) Release(tourID uuid.UUID, count int) error {
	_, err := r.db.Exec(`
		UPDATE tours
		SET booked_participants = GREATEST(booked_participants - $2, 0), updated_at = NOW()
		WHERE id = $1`, tourID, count)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	return nil
}

// withRetry runs fn up to maxRetries times, retrying only transient
// transaction failures. Domain errors pass through untouched.
func (r *TourRepository) withRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		err = fn()
		if err == nil || !IsRetryableError(err) {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", r.maxRetries, err)
}

// IsRetryableError reports whether err is a Postgres deadlock or
// serialization failure worth retrying.
func IsRetryableError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
