package models

import (
	"time"

	"github.com/google/uuid"
)

// Tour represents a bookable tour with finite seat capacity.
// BookedParticipants is mutated only through TourRepository reserve/release
// operations, never read-then-written anywhere else.
type Tour struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	CategoryID         *uuid.UUID `json:"category_id,omitempty" db:"category_id"`
	Name               string     `json:"name" db:"name"`
	Description        string     `json:"description" db:"description"`
	Price              float64    `json:"price" db:"price"`
	MaxParticipants    int        `json:"max_participants" db:"max_participants"`
	BookedParticipants int        `json:"booked_participants" db:"booked_participants"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// AvailableSeats returns the seats still open on this tour
func (t *Tour) AvailableSeats() int {
	available := t.MaxParticipants - t.BookedParticipants
	if available < 0 {
		return 0
	}
	return available
}

// TourAvailabilityResponse is the read-model returned by the availability endpoint
type TourAvailabilityResponse struct {
	TourID          uuid.UUID `json:"tour_id"`
	Name            string    `json:"name"`
	Price           float64   `json:"price"`
	MaxParticipants int       `json:"max_participants"`
	AvailableSeats  int       `json:"available_seats"`
}
