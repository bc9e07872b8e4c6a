package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/booking_test")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 30*time.Minute, cfg.Booking.ExpiryGracePeriod)
		assert.Equal(t, 5, cfg.Booking.ReserveMaxRetries)
		assert.Equal(t, "0 * * * * *", cfg.Sweeper.Schedule)
		assert.Equal(t, 100, cfg.Sweeper.BatchSize)
		assert.Empty(t, cfg.Notification.WebhookURL)
	})

	t.Run("Notification Webhook URL", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("NOTIFICATION_WEBHOOK_URL", "https://hooks.example.com/bookings")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://hooks.example.com/bookings", cfg.Notification.WebhookURL)
	})

	t.Run("Missing Database URL", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("JWT_SECRET", "test-secret")

		_, err := Load()
		assert.ErrorContains(t, err, "DATABASE_URL")
	})
}
