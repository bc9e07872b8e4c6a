package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/islandtours/tour-booking-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// PaymentRepository handles payment records. A booking has at most one
// payment row; re-initiating a payment overwrites the row via upsert so lost
// gateway responses can be retried safely.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Upsert creates or replaces the payment record for a booking
func (r *PaymentRepository) Upsert(payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt

	query := `
		INSERT INTO payments (
			id, booking_id, order_reference, status, amount, currency,
			request_payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (booking_id) DO UPDATE
		SET order_reference = EXCLUDED.order_reference,
		    status = EXCLUDED.status,
		    amount = EXCLUDED.amount,
		    currency = EXCLUDED.currency,
		    request_payload = EXCLUDED.request_payload,
		    updated_at = NOW()`

	_, err := r.db.Exec(query,
		payment.ID, payment.BookingID, payment.OrderReference, payment.Status,
		payment.Amount, payment.Currency, payment.RequestPayload,
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}

// GetByBookingID retrieves the payment for a booking, nil if none exists
func (r *PaymentRepository) GetByBookingID(bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	query := `
		SELECT id, booking_id, order_reference, status, amount, currency,
		       request_payload, created_at, updated_at
		FROM payments
		WHERE booking_id = $1`

	err := r.db.Get(&payment, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// GetByOrderReference retrieves a payment by its gateway order reference
func (r *PaymentRepository) GetByOrderReference(orderRef string) (*models.Payment, error) {
	var payment models.Payment
	query := `
		SELECT id, booking_id, order_reference, status, amount, currency,
		       request_payload, created_at, updated_at
		FROM payments
		WHERE order_reference = $1`

	err := r.db.Get(&payment, query, orderRef)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// UpdateStatus records the gateway-reported status for a payment
func (r *PaymentRepository) UpdateStatus(orderRef string, status models.PaymentStatus) error {
	result, err := r.db.Exec(`
		UPDATE payments
		SET status = $2, updated_at = NOW()
		WHERE order_reference = $1`, orderRef, status)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("no payment found for order reference %s", orderRef)
	}
	return nil
}

// GetStalePending returns payments stuck in pending past the timeout. The
// sweeper flags these for reconciliation rather than guessing an outcome.
func (r *PaymentRepository) GetStalePending(timeout time.Duration, limit int) ([]models.Payment, error) {
	cutoff := time.Now().Add(-timeout)
	query := `
		SELECT id, booking_id, order_reference, status, amount, currency,
		       request_payload, created_at, updated_at
		FROM payments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	var payments []models.Payment
	err := r.db.Select(&payments, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select stale payments: %w", err)
	}
	return payments, nil
}
