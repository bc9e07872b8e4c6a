package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/islandtours/tour-booking-backend/internal/middleware"
	"github.com/islandtours/tour-booking-backend/internal/models"
	"github.com/islandtours/tour-booking-backend/internal/services"
)

// BookingHandler handles booking endpoints
type BookingHandler struct {
	bookings *services.BookingService
	payments *services.PaymentService
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings *services.BookingService, payments *services.PaymentService) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		payments: payments,
	}
}

// CreateBooking creates a new booking with seat reservation
// POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	response, err := h.bookings.CreateBooking(userCtx.UserID, &req)
	if err != nil {
		var capacity *models.InsufficientCapacityError
		switch {
		case errors.As(err, &capacity):
			c.JSON(http.StatusConflict, gin.H{
				"error":     "insufficient_capacity",
				"message":   capacity.Error(),
				"requested": capacity.Requested,
				"available": capacity.Available,
			})
		case errors.Is(err, models.ErrTourNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Tour not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create booking"})
		}
		return
	}

	c.JSON(http.StatusCreated, response)
}

// GetBooking retrieves one of the caller's bookings
// GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	booking, err := h.bookings.GetBooking(bookingID, userCtx.UserID)
	if err != nil {
		respondBookingLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ListBookings retrieves the caller's bookings
// GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := h.bookings.ListBookings(userCtx.UserID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// CancelBooking cancels one of the caller's bookings and releases its seats
// POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	if err := h.bookings.CancelBooking(bookingID, userCtx.UserID); err != nil {
		var invalid *models.InvalidTransitionError
		switch {
		case errors.As(err, &invalid):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_transition",
				"message": invalid.Error(),
				"status":  invalid.From,
			})
		case errors.Is(err, models.ErrBookingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		case errors.Is(err, models.ErrNotBookingOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "Booking belongs to another user"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel booking"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Booking cancelled", "booking_id": bookingID})
}

// InitiatePayment creates a payment intent with the gateway for a pending booking
// POST /api/v1/bookings/:id/payment
func (h *BookingHandler) InitiatePayment(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	response, err := h.payments.InitiatePayment(bookingID, userCtx.UserID)
	if err != nil {
		var invalid *models.InvalidTransitionError
		var late *models.LateConfirmationConflictError
		switch {
		case errors.As(err, &invalid):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "message": invalid.Error()})
		case errors.As(err, &late):
			c.JSON(http.StatusConflict, gin.H{"error": "booking_expired", "message": "Payment window has closed for this booking"})
		case errors.Is(err, models.ErrBookingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		case errors.Is(err, models.ErrNotBookingOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "Booking belongs to another user"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to initiate payment"})
		}
		return
	}

	c.JSON(http.StatusOK, response)
}

// respondBookingLookupError maps lookup failures to domain responses
func respondBookingLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
	case errors.Is(err, models.ErrNotBookingOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "Booking belongs to another user"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get booking"})
	}
}
