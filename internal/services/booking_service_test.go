package services

import (
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/islandtours/tour-booking-backend/internal/database"
	"github.com/islandtours/tour-booking-backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingHarness struct {
	svc  *BookingService
	mock sqlmock.Sqlmock
}

func newBookingHarness(t *testing.T) *bookingHarness {
	t.Helper()

	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })
	db := sqlx.NewDb(rawDB, "sqlmock")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tourRepo := database.NewTourRepository(db)
	bookingRepo := database.NewBookingRepository(db, tourRepo)
	auditRepo := database.NewPaymentAuditRepository(db, logger)
	notifier := NewNotificationService(logger, "")
	svc := NewBookingService(bookingRepo, tourRepo, auditRepo, notifier, logger, 30*time.Minute)

	return &bookingHarness{svc: svc, mock: mock}
}

func tourRows(tourID uuid.UUID, price float64, maxSeats, booked int, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "category_id", "name", "description", "price",
		"max_participants", "booked_participants", "is_active",
		"created_at", "updated_at",
	}).AddRow(
		tourID, nil, "Whale Watching", "Half-day boat tour", price,
		maxSeats, booked, active, now, now,
	)
}

func TestCreateBooking(t *testing.T) {
	userID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		h := newBookingHarness(t)
		tourID := uuid.New()
		req := &models.CreateBookingRequest{
			TourID:               tourID,
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 3,
		}

		h.mock.ExpectQuery(`SELECT (.+) FROM tours`).
			WithArgs(tourID).
			WillReturnRows(tourRows(tourID, 125.50, 20, 4, true))
		h.mock.ExpectBegin()
		h.mock.ExpectQuery(`SELECT max_participants, booked_participants`).
			WithArgs(tourID).
			WillReturnRows(sqlmock.NewRows([]string{"max_participants", "booked_participants"}).
				AddRow(20, 4))
		h.mock.ExpectExec(`UPDATE tours`).
			WithArgs(tourID, 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(`INSERT INTO bookings`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		h.mock.ExpectCommit()

		resp, err := h.svc.CreateBooking(userID, req)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusPending, resp.Status)
		assert.InDelta(t, 376.50, resp.TotalPrice, 0.001)
		assert.Equal(t, 13, resp.RemainingSeats)
		assert.Greater(t, resp.ExpiresInSeconds, 0)
		assert.LessOrEqual(t, resp.ExpiresInSeconds, int((30 * time.Minute).Seconds()))

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("Insufficient Capacity Surfaces Shortfall", func(t *testing.T) {
		h := newBookingHarness(t)
		tourID := uuid.New()
		req := &models.CreateBookingRequest{
			TourID:               tourID,
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 5,
		}

		h.mock.ExpectQuery(`SELECT (.+) FROM tours`).
			WithArgs(tourID).
			WillReturnRows(tourRows(tourID, 125.50, 20, 18, true))
		h.mock.ExpectBegin()
		h.mock.ExpectQuery(`SELECT max_participants, booked_participants`).
			WithArgs(tourID).
			WillReturnRows(sqlmock.NewRows([]string{"max_participants", "booked_participants"}).
				AddRow(20, 18))
		h.mock.ExpectRollback()

		_, err := h.svc.CreateBooking(userID, req)

		var capacity *models.InsufficientCapacityError
		require.ErrorAs(t, err, &capacity)
		assert.Equal(t, 5, capacity.Requested)
		assert.Equal(t, 2, capacity.Available)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("Inactive Tour", func(t *testing.T) {
		h := newBookingHarness(t)
		tourID := uuid.New()
		req := &models.CreateBookingRequest{
			TourID:               tourID,
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 1,
		}

		h.mock.ExpectQuery(`SELECT (.+) FROM tours`).
			WithArgs(tourID).
			WillReturnRows(tourRows(tourID, 125.50, 20, 4, false))

		_, err := h.svc.CreateBooking(userID, req)
		assert.ErrorIs(t, err, models.ErrTourNotFound)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("Invalid Participant Count", func(t *testing.T) {
		h := newBookingHarness(t)
		req := &models.CreateBookingRequest{
			TourID:               uuid.New(),
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 0,
		}

		_, err := h.svc.CreateBooking(userID, req)
		assert.Error(t, err)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})
}

func TestGetBooking(t *testing.T) {
	t.Run("Owner Mismatch", func(t *testing.T) {
		h := newBookingHarness(t)
		booking := &models.Booking{
			ID:                   uuid.New(),
			TourID:               uuid.New(),
			UserID:               uuid.New(),
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 2,
			TotalPrice:           100,
			Status:               models.BookingStatusPending,
			ExpiredAt:            time.Now().Add(30 * time.Minute),
		}

		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))

		_, err := h.svc.GetBooking(booking.ID, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotBookingOwner)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		h := newBookingHarness(t)
		bookingID := uuid.New()

		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := h.svc.GetBooking(bookingID, uuid.New())
		assert.ErrorIs(t, err, models.ErrBookingNotFound)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})
}

func TestCancelBooking(t *testing.T) {
	t.Run("Success Releases Seats", func(t *testing.T) {
		h := newBookingHarness(t)
		userID := uuid.New()
		booking := &models.Booking{
			ID:                   uuid.New(),
			TourID:               uuid.New(),
			UserID:               userID,
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 4,
			TotalPrice:           400,
			Status:               models.BookingStatusPending,
			ExpiredAt:            time.Now().Add(30 * time.Minute),
		}

		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))
		h.mock.ExpectBegin()
		h.mock.ExpectExec(`UPDATE bookings`).
			WithArgs(booking.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(`UPDATE tours`).
			WithArgs(booking.TourID, 4).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectCommit()

		err := h.svc.CancelBooking(booking.ID, userID)
		require.NoError(t, err)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("Not The Owner", func(t *testing.T) {
		h := newBookingHarness(t)
		booking := &models.Booking{
			ID:                   uuid.New(),
			TourID:               uuid.New(),
			UserID:               uuid.New(),
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 1,
			TotalPrice:           100,
			Status:               models.BookingStatusPending,
			ExpiredAt:            time.Now().Add(30 * time.Minute),
		}

		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))

		err := h.svc.CancelBooking(booking.ID, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotBookingOwner)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})
}

func TestExpireBooking(t *testing.T) {
	t.Run("Expires Pending Booking", func(t *testing.T) {
		h := newBookingHarness(t)
		booking := &models.Booking{
			ID:                   uuid.New(),
			TourID:               uuid.New(),
			UserID:               uuid.New(),
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 2,
			TotalPrice:           200,
			Status:               models.BookingStatusPending,
			ExpiredAt:            time.Now().Add(-time.Minute),
		}

		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))
		h.mock.ExpectBegin()
		h.mock.ExpectExec(`UPDATE bookings`).
			WithArgs(booking.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec(`UPDATE tours`).
			WithArgs(booking.TourID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectCommit()

		expired, err := h.svc.ExpireBooking(booking.ID)
		require.NoError(t, err)
		assert.True(t, expired)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("Second Expiry Is No-Op", func(t *testing.T) {
		h := newBookingHarness(t)
		booking := &models.Booking{
			ID:                   uuid.New(),
			TourID:               uuid.New(),
			UserID:               uuid.New(),
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 2,
			TotalPrice:           200,
			Status:               models.BookingStatusExpired,
			ExpiredAt:            time.Now().Add(-time.Minute),
		}

		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))
		h.mock.ExpectBegin()
		h.mock.ExpectExec(`UPDATE bookings`).
			WithArgs(booking.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))
		h.mock.ExpectRollback()

		expired, err := h.svc.ExpireBooking(booking.ID)
		require.NoError(t, err)
		assert.False(t, expired)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})
}

func TestConfirmBooking(t *testing.T) {
	t.Run("Success Notifies", func(t *testing.T) {
		h := newBookingHarness(t)
		booking := &models.Booking{
			ID:                   uuid.New(),
			TourID:               uuid.New(),
			UserID:               uuid.New(),
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 2,
			TotalPrice:           200,
			Status:               models.BookingStatusConfirmed,
			ExpiredAt:            time.Now().Add(10 * time.Minute),
		}

		h.mock.ExpectExec(`UPDATE bookings`).
			WithArgs(booking.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))

		err := h.svc.ConfirmBooking(booking.ID, "TBK-AAAABBBBCCCC")
		require.NoError(t, err)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Confirmation Ignored", func(t *testing.T) {
		h := newBookingHarness(t)
		booking := &models.Booking{
			ID:                   uuid.New(),
			TourID:               uuid.New(),
			UserID:               uuid.New(),
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 2,
			TotalPrice:           200,
			Status:               models.BookingStatusConfirmed,
			ExpiredAt:            time.Now().Add(10 * time.Minute),
		}

		h.mock.ExpectExec(`UPDATE bookings`).
			WithArgs(booking.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))

		err := h.svc.ConfirmBooking(booking.ID, "TBK-AAAABBBBCCCC")
		assert.NoError(t, err)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("Late Settlement Flags Reconciliation Once", func(t *testing.T) {
		h := newBookingHarness(t)
		booking := &models.Booking{
			ID:                   uuid.New(),
			TourID:               uuid.New(),
			UserID:               uuid.New(),
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 2,
			TotalPrice:           200,
			Status:               models.BookingStatusPending,
			ExpiredAt:            time.Now().Add(-5 * time.Minute),
		}

		h.mock.ExpectExec(`UPDATE bookings`).
			WithArgs(booking.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))
		h.mock.ExpectQuery(`SELECT COUNT`).
			WithArgs(booking.ID, models.PaymentEventReconciliationFlagged).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		h.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := h.svc.ConfirmBooking(booking.ID, "TBK-AAAABBBBCCCC")

		var late *models.LateConfirmationConflictError
		require.ErrorAs(t, err, &late)
		assert.Equal(t, booking.ID.String(), late.BookingID)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("Settlement After Sweeper Expiry Flags Reconciliation", func(t *testing.T) {
		h := newBookingHarness(t)
		booking := &models.Booking{
			ID:                   uuid.New(),
			TourID:               uuid.New(),
			UserID:               uuid.New(),
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 2,
			TotalPrice:           200,
			Status:               models.BookingStatusExpired,
			ExpiredAt:            time.Now().Add(-5 * time.Minute),
		}

		h.mock.ExpectExec(`UPDATE bookings`).
			WithArgs(booking.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))
		h.mock.ExpectQuery(`SELECT COUNT`).
			WithArgs(booking.ID, models.PaymentEventReconciliationFlagged).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		h.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := h.svc.ConfirmBooking(booking.ID, "TBK-AAAABBBBCCCC")

		var late *models.LateConfirmationConflictError
		require.ErrorAs(t, err, &late)
		assert.Equal(t, booking.ID.String(), late.BookingID)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("Already Flagged Booking Not Flagged Again", func(t *testing.T) {
		h := newBookingHarness(t)
		booking := &models.Booking{
			ID:                   uuid.New(),
			TourID:               uuid.New(),
			UserID:               uuid.New(),
			BookingDate:          time.Now().Add(48 * time.Hour),
			NumberOfParticipants: 2,
			TotalPrice:           200,
			Status:               models.BookingStatusPending,
			ExpiredAt:            time.Now().Add(-5 * time.Minute),
		}

		h.mock.ExpectExec(`UPDATE bookings`).
			WithArgs(booking.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		h.mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(booking.ID).
			WillReturnRows(serviceBookingRows(booking))
		h.mock.ExpectQuery(`SELECT COUNT`).
			WithArgs(booking.ID, models.PaymentEventReconciliationFlagged).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := h.svc.ConfirmBooking(booking.ID, "TBK-AAAABBBBCCCC")

		var late *models.LateConfirmationConflictError
		require.ErrorAs(t, err, &late)

		assert.NoError(t, h.mock.ExpectationsWereMet())
	})
}
