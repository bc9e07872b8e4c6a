package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/islandtours/tour-booking-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

const bookingColumns = `
	id, tour_id, user_id, booking_date, number_of_participants,
	total_price, status, expired_at, created_at, updated_at`

// BookingRepository handles booking persistence and the transactional state
// transitions. Every transition re-checks current status in its WHERE clause
// so racing transitions (user cancel vs sweeper expiry vs gateway confirm)
// resolve to exactly one winner.
type BookingRepository struct {
	db    *sqlx.DB
	tours *TourRepository
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB, tours *TourRepository) *BookingRepository {
	return &BookingRepository{db: db, tours: tours}
}

// ============================================================================
// READS
// ============================================================================

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	err := r.db.Get(&booking, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetByUserID retrieves a user's bookings, newest first
func (r *BookingRepository) GetByUserID(userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var bookings []models.Booking
	err := r.db.Select(&bookings, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// GetExpiredPending returns pending bookings past their payment deadline,
// oldest deadline first. The sweeper processes these in bounded batches.
func (r *BookingRepository) GetExpiredPending(limit int) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND expired_at <= NOW()
		ORDER BY expired_at
		LIMIT $1`

	var bookings []models.Booking
	err := r.db.Select(&bookings, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// STATE TRANSITIONS
// ============================================================================

// CreateWithReservation reserves seats and persists the booking in one
// transaction. On a capacity shortfall nothing is committed. Returns the
// seats remaining on the tour after this reservation.
func (r *BookingRepository) CreateWithReservation(booking *models.Booking) (int, error) {
	booking.ID = uuid.New()
	booking.Status = models.BookingStatusPending
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt

	var remaining int
	err := r.tours.withRetry(func() error {
		tx, err := r.db.Beginx()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		remaining, err = r.tours.ReserveInTx(tx, booking.TourID, booking.NumberOfParticipants)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO bookings (
				id, tour_id, user_id, booking_date, number_of_participants,
				total_price, status, expired_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			booking.ID, booking.TourID, booking.UserID, booking.BookingDate,
			booking.NumberOfParticipants, booking.TotalPrice, booking.Status,
			booking.ExpiredAt, booking.CreatedAt, booking.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// CancelWithRelease moves a pending or confirmed booking to cancelled and
// releases its seats in the same transaction. If the status flip loses the
// race the seats are not touched.
func (r *BookingRepository) CancelWithRelease(booking *models.Booking) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE bookings
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')`, booking.ID)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return r.transitionConflict(booking.ID, models.BookingStatusCancelled)
	}

	if err := r.tours.ReleaseInTx(tx, booking.TourID, booking.NumberOfParticipants); err != nil {
		return err
	}

	return tx.Commit()
}

// ExpireWithRelease moves a pending booking past its deadline to expired and
// releases its seats in the same transaction. Returns false with no error if
// the booking was already expired, so sweeper re-scans stay idempotent and
// seats are never double-released.
func (r *BookingRepository) ExpireWithRelease(booking *models.Booking) (bool, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE bookings
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND expired_at <= NOW()`, booking.ID)
	if err != nil {
		return false, fmt.Errorf("failed to expire booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		current, err := r.GetByID(booking.ID)
		if err != nil {
			return false, err
		}
		if current.Status == models.BookingStatusExpired {
			return false, nil
		}
		return false, &models.InvalidTransitionError{From: current.Status, To: models.BookingStatusExpired}
	}

	if err := r.tours.ReleaseInTx(tx, booking.TourID, booking.NumberOfParticipants); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Confirm moves a pending booking to confirmed, but only before its payment
// deadline. Seats were committed at creation, so the ledger is not touched.
// The caller discriminates why a guard rejected the update.
func (r *BookingRepository) Confirm(bookingID uuid.UUID) error {
	result, err := r.db.Exec(`
		UPDATE bookings
		SET status = 'confirmed', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND expired_at > NOW()`, bookingID)
	if err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return r.transitionConflict(bookingID, models.BookingStatusConfirmed)
	}
	return nil
}

// transitionConflict explains a guarded UPDATE that matched no rows
func (r *BookingRepository) transitionConflict(bookingID uuid.UUID, to models.BookingStatus) error {
	current, err := r.GetByID(bookingID)
	if err != nil {
		return err
	}
	if to == models.BookingStatusConfirmed && current.Status != models.BookingStatusConfirmed {
		// The confirm guard only rejects a pending booking past its deadline,
		// or a booking whose seats were already released (expired by the
		// sweeper, or cancelled). In every case the money settled against a
		// booking that can no longer be confirmed.
		return &models.LateConfirmationConflictError{BookingID: bookingID.String()}
	}
	return &models.InvalidTransitionError{From: current.Status, To: to}
}
