package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/islandtours/tour-booking-backend/internal/database"
	"github.com/islandtours/tour-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// BookingService is the booking state machine. Bookings start pending,
// transition exactly once to confirmed, cancelled or expired, and never leave
// a terminal state. Seat inventory moves only through the transactional
// repository operations, so a transition and its ledger effect commit or
// fail together.
type BookingService struct {
	bookingRepo *database.BookingRepository
	tourRepo    *database.TourRepository
	auditRepo   *database.PaymentAuditRepository
	notifier    *NotificationService
	logger      *logrus.Logger
	gracePeriod time.Duration
}

// NewBookingService creates a new BookingService
func NewBookingService(
	bookingRepo *database.BookingRepository,
	tourRepo *database.TourRepository,
	auditRepo *database.PaymentAuditRepository,
	notifier *NotificationService,
	logger *logrus.Logger,
	gracePeriod time.Duration,
) *BookingService {
	return &BookingService{
		bookingRepo: bookingRepo,
		tourRepo:    tourRepo,
		auditRepo:   auditRepo,
		notifier:    notifier,
		logger:      logger,
		gracePeriod: gracePeriod,
	}
}

// CreateBooking reserves seats and persists a pending booking in one atomic
// unit. The total price is frozen from the tour's current price; the payment
// deadline is now plus the grace period.
func (s *BookingService) CreateBooking(userID uuid.UUID, req *models.CreateBookingRequest) (*models.BookingResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tour, err := s.tourRepo.GetByID(req.TourID)
	if err != nil {
		return nil, err
	}
	if !tour.IsActive {
		return nil, models.ErrTourNotFound
	}

	now := time.Now()
	booking := &models.Booking{
		TourID:               tour.ID,
		UserID:               userID,
		BookingDate:          req.BookingDate,
		NumberOfParticipants: req.NumberOfParticipants,
		TotalPrice:           tour.Price * float64(req.NumberOfParticipants),
		ExpiredAt:            now.Add(s.gracePeriod),
	}

	remaining, err := s.bookingRepo.CreateWithReservation(booking)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"tour_id":      tour.ID,
		"user_id":      userID,
		"participants": booking.NumberOfParticipants,
		"remaining":    remaining,
	}).Info("Booking created")

	return &models.BookingResponse{
		BookingID:        booking.ID,
		TourID:           tour.ID,
		Status:           booking.Status,
		TotalPrice:       booking.TotalPrice,
		ExpiredAt:        booking.ExpiredAt,
		ExpiresInSeconds: int(time.Until(booking.ExpiredAt).Seconds()),
		RemainingSeats:   remaining,
	}, nil
}

// GetBooking retrieves a booking scoped to its owner
func (s *BookingService) GetBooking(bookingID, userID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, models.ErrNotBookingOwner
	}
	return booking, nil
}

// ListBookings retrieves a user's bookings, newest first
func (s *BookingService) ListBookings(userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	return s.bookingRepo.GetByUserID(userID, limit, offset)
}

// CancelBooking cancels a pending or confirmed booking owned by actorID and
// releases its seats in the same transaction
func (s *BookingService) CancelBooking(bookingID, actorID uuid.UUID) error {
	booking, err := s.bookingRepo.GetByID(bookingID)
	if err != nil {
		return err
	}
	if booking.UserID != actorID {
		return models.ErrNotBookingOwner
	}

	if err := s.bookingRepo.CancelWithRelease(booking); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"user_id":    actorID,
	}).Info("Booking cancelled, seats released")

	s.notifier.BookingCancelled(booking)
	return nil
}

// ExpireBooking expires a pending booking past its deadline, releasing its
// seats. Idempotent: expiring an already-expired booking reports false with
// no error and releases nothing.
func (s *BookingService) ExpireBooking(bookingID uuid.UUID) (bool, error) {
	booking, err := s.bookingRepo.GetByID(bookingID)
	if err != nil {
		return false, err
	}

	expired, err := s.bookingRepo.ExpireWithRelease(booking)
	if err != nil {
		return false, err
	}
	if !expired {
		return false, nil
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"tour_id":    booking.TourID,
		"seats":      booking.NumberOfParticipants,
	}).Info("Booking expired, seats released")

	s.notifier.BookingExpired(booking)
	return true, nil
}

// ConfirmBooking confirms a pending booking on a settled payment. A duplicate
// settled callback on an already-confirmed booking is a no-op. A settled
// callback after expiry or cancellation never resurrects the booking: the
// seats were already released, so the conflict is written to the
// reconciliation queue for manual review instead.
func (s *BookingService) ConfirmBooking(bookingID uuid.UUID, orderReference string) error {
	err := s.bookingRepo.Confirm(bookingID)
	if err == nil {
		booking, getErr := s.bookingRepo.GetByID(bookingID)
		if getErr != nil {
			s.logger.WithError(getErr).WithField("booking_id", bookingID).Warn("Confirmed booking could not be re-read for notification")
			return nil
		}
		s.logger.WithFields(logrus.Fields{
			"booking_id":      bookingID,
			"order_reference": orderReference,
		}).Info("Booking confirmed")
		s.notifier.BookingConfirmed(booking)
		return nil
	}

	var invalid *models.InvalidTransitionError
	if errors.As(err, &invalid) && invalid.From == models.BookingStatusConfirmed {
		// Duplicate settled callback; the gateway retried a delivery we
		// already processed.
		s.logger.WithFields(logrus.Fields{
			"booking_id":      bookingID,
			"order_reference": orderReference,
		}).Info("Duplicate confirmation ignored")
		return nil
	}

	var late *models.LateConfirmationConflictError
	if errors.As(err, &late) {
		s.flagForReconciliation(bookingID, orderReference)
	}

	return err
}

// flagForReconciliation records a late-settlement conflict for manual review
func (s *BookingService) flagForReconciliation(bookingID uuid.UUID, orderReference string) {
	flagged, err := s.auditRepo.HasEvent(bookingID, models.PaymentEventReconciliationFlagged)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to check reconciliation flag")
	}
	if flagged {
		return
	}

	audit := models.NewPaymentAudit(models.PaymentEventReconciliationFlagged, models.PaymentSourceGatewayWebhook).
		SetBooking(bookingID).
		SetOrderReference(orderReference).
		SetError(fmt.Sprintf("settled callback arrived for booking %s after its seats were released", bookingID))
	if err := s.auditRepo.Log(audit); err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to write reconciliation entry")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":      bookingID,
		"order_reference": orderReference,
	}).Warn("Late settlement after seat release, flagged for manual reconciliation")
}
