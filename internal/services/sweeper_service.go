package services

import (
	"fmt"

	"github.com/islandtours/tour-booking-backend/internal/config"
	"github.com/islandtours/tour-booking-backend/internal/database"
	"github.com/islandtours/tour-booking-backend/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SweeperService runs the periodic expiry sweep: pending bookings past their
// payment deadline are expired and their seats released. Each booking is an
// independent unit of work; one failure is logged and retried on the next
// sweep without blocking the rest of the batch.
type SweeperService struct {
	cron        *cron.Cron
	bookings    *BookingService
	bookingRepo *database.BookingRepository
	paymentRepo *database.PaymentRepository
	auditRepo   *database.PaymentAuditRepository
	logger      *logrus.Logger
	cfg         config.SweeperConfig
}

// NewSweeperService creates a new SweeperService
func NewSweeperService(
	bookings *BookingService,
	bookingRepo *database.BookingRepository,
	paymentRepo *database.PaymentRepository,
	auditRepo *database.PaymentAuditRepository,
	logger *logrus.Logger,
	cfg config.SweeperConfig,
) *SweeperService {
	return &SweeperService{
		cron:        cron.New(cron.WithSeconds()),
		bookings:    bookings,
		bookingRepo: bookingRepo,
		paymentRepo: paymentRepo,
		auditRepo:   auditRepo,
		logger:      logger,
		cfg:         cfg,
	}
}

// Start schedules the sweep and runs one immediately to catch bookings that
// expired while the service was down
func (s *SweeperService) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, s.sweepJob)
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.cfg.Schedule).Info("Expiry sweeper started")

	go s.sweepJob()
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *SweeperService) Stop() {
	s.logger.Info("Stopping expiry sweeper")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Expiry sweeper stopped")
}

// RunOnce runs a single sweep cycle (manual trigger / tests)
func (s *SweeperService) RunOnce() {
	s.sweepJob()
}

func (s *SweeperService) sweepJob() {
	s.sweepExpiredBookings()
	s.flagStalePayments()
}

// sweepExpiredBookings expires pending bookings past their deadline
func (s *SweeperService) sweepExpiredBookings() {
	batch, err := s.bookingRepo.GetExpiredPending(s.cfg.BatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to select expired bookings")
		return
	}
	if len(batch) == 0 {
		return
	}

	s.logger.WithField("count", len(batch)).Info("Processing expired bookings")

	expired := 0
	for _, booking := range batch {
		ok, err := s.bookings.ExpireBooking(booking.ID)
		if err != nil {
			// Left pending: still selected on the next sweep
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to expire booking")
			continue
		}
		if ok {
			expired++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"expired": expired,
		"batch":   len(batch),
	}).Info("Expiry sweep complete")
}

// flagStalePayments flags payments stuck pending past the timeout for manual
// reconciliation. No outcome is guessed; a human resolves these.
func (s *SweeperService) flagStalePayments() {
	stale, err := s.paymentRepo.GetStalePending(s.cfg.PaymentPendingTimeout, s.cfg.BatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to select stale payments")
		return
	}

	for _, payment := range stale {
		flagged, err := s.auditRepo.HasEvent(payment.BookingID, models.PaymentEventReconciliationFlagged)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", payment.BookingID).Error("Failed to check reconciliation flag")
			continue
		}
		if flagged {
			continue
		}

		audit := models.NewPaymentAudit(models.PaymentEventReconciliationFlagged, models.PaymentSourceSweeper).
			SetBooking(payment.BookingID).
			SetOrderReference(payment.OrderReference).
			SetError(fmt.Sprintf("payment pending for more than %s", s.cfg.PaymentPendingTimeout))
		if err := s.auditRepo.Log(audit); err != nil {
			s.logger.WithError(err).WithField("booking_id", payment.BookingID).Error("Failed to flag stale payment")
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"booking_id":      payment.BookingID,
			"order_reference": payment.OrderReference,
		}).Warn("Stale pending payment flagged for reconciliation")
	}
}
