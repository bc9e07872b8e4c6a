package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
)

// IsTerminal reports whether no further transition is permitted from s
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCancelled || s == BookingStatusExpired
}

// Booking represents a seat reservation against a tour.
// TotalPrice is frozen at creation time (tour price x participants) and is
// never recomputed if the tour's price later changes.
type Booking struct {
	ID                   uuid.UUID     `json:"id" db:"id"`
	TourID               uuid.UUID     `json:"tour_id" db:"tour_id"`
	UserID               uuid.UUID     `json:"user_id" db:"user_id"`
	BookingDate          time.Time     `json:"booking_date" db:"booking_date"`
	NumberOfParticipants int           `json:"number_of_participants" db:"number_of_participants"`
	TotalPrice           float64       `json:"total_price" db:"total_price"`
	Status               BookingStatus `json:"status" db:"status"`
	ExpiredAt            time.Time     `json:"expired_at" db:"expired_at"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at" db:"updated_at"`
}

// IsPastDeadline reports whether the payment grace period has elapsed
func (b *Booking) IsPastDeadline(now time.Time) bool {
	return now.After(b.ExpiredAt)
}

// CreateBookingRequest is the payload accepted by the booking creation endpoint
type CreateBookingRequest struct {
	TourID               uuid.UUID `json:"tour_id" binding:"required"`
	BookingDate          time.Time `json:"booking_date" binding:"required"`
	NumberOfParticipants int       `json:"number_of_participants" binding:"required"`
}

// Validate checks the request beyond what binding enforces
func (r *CreateBookingRequest) Validate() error {
	if r.NumberOfParticipants < 1 {
		return fmt.Errorf("number_of_participants must be at least 1")
	}
	if r.BookingDate.Before(time.Now().Truncate(24 * time.Hour)) {
		return fmt.Errorf("booking_date cannot be in the past")
	}
	return nil
}

// BookingResponse is returned after booking creation. RemainingSeats reflects
// availability immediately after this reservation; it is informational and
// not re-queried.
type BookingResponse struct {
	BookingID        uuid.UUID     `json:"booking_id"`
	TourID           uuid.UUID     `json:"tour_id"`
	Status           BookingStatus `json:"status"`
	TotalPrice       float64       `json:"total_price"`
	ExpiredAt        time.Time     `json:"expired_at"`
	ExpiresInSeconds int           `json:"expires_in_seconds"`
	RemainingSeats   int           `json:"remaining_seats"`
}
