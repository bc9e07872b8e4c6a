package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/islandtours/tour-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// NotificationService dispatches booking lifecycle notifications. Delivery is
// best-effort: failures are logged and swallowed, they never roll back or
// block a committed state transition.
type NotificationService struct {
	logger     *logrus.Logger
	webhookURL string
	client     *http.Client
}

// NewNotificationService creates a new NotificationService. webhookURL may be
// empty, in which case events are only logged.
func NewNotificationService(logger *logrus.Logger, webhookURL string) *NotificationService {
	return &NotificationService{
		logger:     logger,
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type notificationEvent struct {
	Event     string    `json:"event"`
	BookingID string    `json:"booking_id"`
	UserID    string    `json:"user_id"`
	TourID    string    `json:"tour_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingConfirmed notifies the user their booking is confirmed
func (s *NotificationService) BookingConfirmed(booking *models.Booking) {
	s.dispatch("booking_confirmed", booking)
}

// BookingCancelled notifies the user their booking was cancelled
func (s *NotificationService) BookingCancelled(booking *models.Booking) {
	s.dispatch("booking_cancelled", booking)
}

// BookingExpired notifies the user their booking expired unpaid and the
// seats were released
func (s *NotificationService) BookingExpired(booking *models.Booking) {
	s.dispatch("booking_expired", booking)
}

func (s *NotificationService) dispatch(event string, booking *models.Booking) {
	entry := s.logger.WithFields(logrus.Fields{
		"event":      event,
		"booking_id": booking.ID,
		"user_id":    booking.UserID,
	})
	entry.Info("Dispatching notification")

	if s.webhookURL == "" {
		return
	}

	if err := s.post(event, booking); err != nil {
		entry.WithError(err).Warn("Notification delivery failed")
	}
}

func (s *NotificationService) post(event string, booking *models.Booking) error {
	payload := notificationEvent{
		Event:     event,
		BookingID: booking.ID.String(),
		UserID:    booking.UserID.String(),
		TourID:    booking.TourID.String(),
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
