package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/islandtours/tour-booking-backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry
// This should NEVER fail silently - payment events must be logged
func (r *PaymentAuditRepository) Log(audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	// Ensure ID and timestamp are set
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, order_reference,
			event_type, event_source,
			payment_status, error_message,
			raw_body, details, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := r.db.Exec(query,
		audit.ID, audit.BookingID, audit.OrderReference,
		audit.EventType, audit.EventSource,
		audit.PaymentStatus, audit.ErrorMessage,
		audit.RawBody, audit.Details, audit.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":      audit.EventType,
			"order_reference": audit.OrderReference,
		}).Error("CRITICAL: Failed to log payment audit - THIS SHOULD NEVER HAPPEN")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
	}).Debug("Payment audit logged")

	return nil
}

// ListRequiringReconciliation returns reconciliation_required entries for the
// back-office review queue, newest first
func (r *PaymentAuditRepository) ListRequiringReconciliation(limit, offset int) ([]models.PaymentAudit, error) {
	query := `
		SELECT id, booking_id, order_reference, event_type, event_source,
		       payment_status, error_message, raw_body, details, created_at
		FROM payment_audits
		WHERE event_type = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var audits []models.PaymentAudit
	err := r.db.Select(&audits, query, models.PaymentEventReconciliationFlagged, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation entries: %w", err)
	}
	return audits, nil
}

// HasEvent reports whether a booking already has an audit entry of the given
// type. Keeps recurring jobs from re-flagging the same booking every run.
func (r *PaymentAuditRepository) HasEvent(bookingID uuid.UUID, eventType models.PaymentEventType) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM payment_audits WHERE booking_id = $1 AND event_type = $2`
	err := r.db.Get(&count, query, bookingID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to check audit entries: %w", err)
	}
	return count > 0, nil
}
