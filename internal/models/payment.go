package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB is a JSONB column helper
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
// Returns JSON as string for compatibility with pgx simple protocol mode
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// PaymentStatus mirrors the gateway's payment lifecycle
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSettled PaymentStatus = "settled"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is the one-to-one payment record for a booking. At most one active
// payment exists per booking; re-initiating payment overwrites this row
// rather than creating a duplicate.
type Payment struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	BookingID      uuid.UUID     `json:"booking_id" db:"booking_id"`
	OrderReference string        `json:"order_reference" db:"order_reference"`
	Status         PaymentStatus `json:"status" db:"status"`
	Amount         float64       `json:"amount" db:"amount"`
	Currency       string        `json:"currency" db:"currency"`
	// RequestPayload is the raw request sent to the gateway, kept for
	// audit and replay.
	RequestPayload JSONB     `json:"request_payload,omitempty" db:"request_payload"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// InitiatePaymentResponse is returned to the client after a payment intent
// is created with the gateway
type InitiatePaymentResponse struct {
	BookingID      uuid.UUID `json:"booking_id"`
	OrderReference string    `json:"order_reference"`
	PaymentToken   string    `json:"payment_token"`
	PaymentPageURL string    `json:"payment_page_url,omitempty"`
}
