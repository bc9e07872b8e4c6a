package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for lookup failures. Handlers map these to 404/403
// responses instead of generic 500s.
var (
	ErrTourNotFound    = errors.New("tour not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrNotBookingOwner = errors.New("booking belongs to another user")
)

// InsufficientCapacityError is returned when a reservation asks for more
// seats than the tour has left. No partial reservation occurs.
type InsufficientCapacityError struct {
	Requested int
	Available int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity: requested %d seats, %d available", e.Requested, e.Available)
}

// InvalidTransitionError is returned when a booking transition is attempted
// from a state that does not permit it. Indicates a stale client or a
// duplicate action, never a fatal condition.
type InvalidTransitionError struct {
	From BookingStatus
	To   BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: booking is %s, cannot move to %s", e.From, e.To)
}

// LateConfirmationConflictError is returned when a settled payment callback
// arrives for a booking that can no longer be confirmed: past its deadline,
// expired by the sweeper, or cancelled. The booking is not resurrected; the
// conflict is flagged for manual reconciliation.
type LateConfirmationConflictError struct {
	BookingID string
}

func (e *LateConfirmationConflictError) Error() string {
	return fmt.Sprintf("late settlement for booking %s after its seats were released, flagged for reconciliation", e.BookingID)
}

// IsInsufficientCapacity reports whether err is a capacity shortfall
func IsInsufficientCapacity(err error) bool {
	var target *InsufficientCapacityError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is a rejected state transition
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}
