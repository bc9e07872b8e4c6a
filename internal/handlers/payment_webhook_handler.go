package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/islandtours/tour-booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// PaymentWebhookHandler receives machine-to-machine callbacks from the
// payment gateway. The route carries no user session; authenticity comes
// from the checkValue signature instead.
type PaymentWebhookHandler struct {
	payments *services.PaymentService
	logger   *logrus.Logger
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler
func NewPaymentWebhookHandler(payments *services.PaymentService, logger *logrus.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		payments: payments,
		logger:   logger,
	}
}

// HandleWebhook processes a gateway payment callback
// POST /api/v1/webhooks/payment
func (h *PaymentWebhookHandler) HandleWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	var payload services.GatewayWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.logger.WithError(err).Warn("Malformed webhook payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	if payload.OrderReference == "" || payload.PaymentStatus == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing order_reference or payment_status"})
		return
	}

	if !h.payments.VerifyWebhookSignature(&payload) {
		h.logger.WithField("order_reference", payload.OrderReference).Warn("Webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	if err := h.payments.HandleWebhook(&payload, string(rawBody)); err != nil {
		h.logger.WithError(err).WithField("order_reference", payload.OrderReference).Error("Webhook processing failed")
		// Non-200 makes the gateway retry the delivery
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
