package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventInitiated             PaymentEventType = "payment_initiated"
	PaymentEventWebhookReceived       PaymentEventType = "webhook_received"
	PaymentEventSettled               PaymentEventType = "payment_settled"
	PaymentEventFailed                PaymentEventType = "payment_failed"
	PaymentEventDuplicateWebhook      PaymentEventType = "duplicate_webhook"
	PaymentEventReconciliationFlagged PaymentEventType = "reconciliation_required"
	PaymentEventError                 PaymentEventType = "error"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend        PaymentEventSource = "backend"
	PaymentSourceGatewayWebhook PaymentEventSource = "gateway_webhook"
	PaymentSourceSweeper        PaymentEventSource = "sweeper"
)

// PaymentAudit is an immutable audit log entry for payment events. Late
// settlement conflicts land here as reconciliation_required rows for manual
// review; they are never auto-resolved.
type PaymentAudit struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	BookingID      *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	OrderReference *string    `json:"order_reference,omitempty" db:"order_reference"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	PaymentStatus *string `json:"payment_status,omitempty" db:"payment_status"`
	ErrorMessage  *string `json:"error_message,omitempty" db:"error_message"`

	// Raw payloads kept for debugging and manual reconciliation
	RawBody *string `json:"raw_body,omitempty" db:"raw_body"`
	Details JSONB   `json:"details,omitempty" db:"details"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetBooking sets the booking ID for the audit
func (pa *PaymentAudit) SetBooking(bookingID uuid.UUID) *PaymentAudit {
	pa.BookingID = &bookingID
	return pa
}

// SetOrderReference sets the gateway order reference
func (pa *PaymentAudit) SetOrderReference(ref string) *PaymentAudit {
	pa.OrderReference = &ref
	return pa
}

// SetPaymentStatus sets the gateway-reported status
func (pa *PaymentAudit) SetPaymentStatus(status string) *PaymentAudit {
	pa.PaymentStatus = &status
	return pa
}

// SetError sets the error message
func (pa *PaymentAudit) SetError(msg string) *PaymentAudit {
	pa.ErrorMessage = &msg
	return pa
}

// SetRawBody sets the raw webhook body
func (pa *PaymentAudit) SetRawBody(body string) *PaymentAudit {
	pa.RawBody = &body
	return pa
}
