package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/islandtours/tour-booking-backend/internal/database"
	"github.com/islandtours/tour-booking-backend/internal/models"
)

// TourHandler handles tour catalog read endpoints
type TourHandler struct {
	tourRepo *database.TourRepository
}

// NewTourHandler creates a new TourHandler
func NewTourHandler(tourRepo *database.TourRepository) *TourHandler {
	return &TourHandler{tourRepo: tourRepo}
}

// ListTours lists active tours
// GET /api/v1/tours
func (h *TourHandler) ListTours(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	tours, err := h.tourRepo.ListActive(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tours"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tours": tours, "count": len(tours)})
}

// GetTour retrieves a single tour
// GET /api/v1/tours/:id
func (h *TourHandler) GetTour(c *gin.Context) {
	tourID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tour ID"})
		return
	}

	tour, err := h.tourRepo.GetByID(tourID)
	if err != nil {
		if errors.Is(err, models.ErrTourNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tour not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get tour"})
		return
	}

	c.JSON(http.StatusOK, tour)
}

// GetTourAvailability returns current seat availability for a tour
// GET /api/v1/tours/:id/availability
func (h *TourHandler) GetTourAvailability(c *gin.Context) {
	tourID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tour ID"})
		return
	}

	tour, err := h.tourRepo.GetByID(tourID)
	if err != nil {
		if errors.Is(err, models.ErrTourNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tour not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get tour"})
		return
	}

	c.JSON(http.StatusOK, models.TourAvailabilityResponse{
		TourID:          tour.ID,
		Name:            tour.Name,
		Price:           tour.Price,
		MaxParticipants: tour.MaxParticipants,
		AvailableSeats:  tour.AvailableSeats(),
	})
}
