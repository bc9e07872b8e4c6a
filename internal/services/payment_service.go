package services

import (
	"bytes"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/islandtours/tour-booking-backend/internal/config"
	"github.com/islandtours/tour-booking-backend/internal/database"
	"github.com/islandtours/tour-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// PaymentService integrates with the payment gateway: it creates payment
// intents for pending bookings and maps inbound webhook callbacks onto
// booking state transitions. Webhooks may arrive duplicated and out of
// order; current booking status is always re-checked before transitioning.
type PaymentService struct {
	paymentRepo *database.PaymentRepository
	auditRepo   *database.PaymentAuditRepository
	bookings    *BookingService
	cfg         *config.PaymentConfig
	logger      *logrus.Logger
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker
}

// GatewayPaymentRequest is the request sent to the gateway.
// NOTE: the merchant token is never sent - it is only an input to the
// checkValue calculation.
type GatewayPaymentRequest struct {
	MerchantKey  string `json:"merchantKey"`
	InvoiceID    string `json:"invoiceId"`
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
	ReturnURL    string `json:"returnUrl"`
	WebhookURL   string `json:"webhookUrl,omitempty"`
	Description  string `json:"orderDescription,omitempty"`
	CheckValue   string `json:"checkValue"`
}

// GatewayPaymentResponse is the response from the gateway
type GatewayPaymentResponse struct {
	Status       string `json:"status"` // "success" or "error"
	PaymentToken string `json:"paymentToken"`
	PaymentPage  string `json:"paymentPage"`
	Message      string `json:"message,omitempty"`
}

// GatewayWebhookPayload is the callback the gateway posts after a payment
// attempt. PaymentStatus is one of "settled", "failed", "pending".
type GatewayWebhookPayload struct {
	OrderReference string `json:"order_reference"`
	PaymentStatus  string `json:"payment_status"`
	Amount         string `json:"amount"`
	CurrencyCode   string `json:"currency_code"`
	TransactionID  string `json:"transaction_id,omitempty"`
	CheckValue     string `json:"check_value"`
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	paymentRepo *database.PaymentRepository,
	auditRepo *database.PaymentAuditRepository,
	bookings *BookingService,
	cfg *config.PaymentConfig,
	logger *logrus.Logger,
) *PaymentService {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("Circuit breaker state changed")
		},
	})

	return &PaymentService{
		paymentRepo: paymentRepo,
		auditRepo:   auditRepo,
		bookings:    bookings,
		cfg:         cfg,
		logger:      logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: breaker,
	}
}

// GenerateCheckValue creates the SHA-512 checkValue for gateway authentication
// Step 1: hash1 = SHA512(merchantToken) uppercase hex
// Step 2: hash2 = SHA512("merchantKey|invoiceId|amount|currencyCode|hash1") uppercase hex
func (s *PaymentService) GenerateCheckValue(invoiceID, amount, currencyCode string) string {
	hash1 := sha512.Sum512([]byte(s.cfg.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		s.cfg.MerchantKey,
		invoiceID,
		amount,
		currencyCode,
		hash1Hex,
	)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// VerifyWebhookSignature checks the callback's checkValue against the one we
// would compute with our merchant secret. The signing recipe mirrors the
// outbound one with payment_status in place of the currency code.
func (s *PaymentService) VerifyWebhookSignature(payload *GatewayWebhookPayload) bool {
	hash1 := sha512.Sum512([]byte(s.cfg.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		s.cfg.MerchantKey,
		payload.OrderReference,
		payload.Amount,
		strings.ToUpper(payload.PaymentStatus),
		hash1Hex,
	)
	hash2 := sha512.Sum512([]byte(data))
	expected := strings.ToUpper(hex.EncodeToString(hash2[:]))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToUpper(payload.CheckValue))) == 1
}

// InitiatePayment creates a payment intent with the gateway for a pending
// booking. Idempotent by booking: if a payment row already exists its order
// reference is reused and the row overwritten, never duplicated, so the call
// is safe to repeat when the first response was lost.
func (s *PaymentService) InitiatePayment(bookingID, userID uuid.UUID) (*models.InitiatePaymentResponse, error) {
	if s.cfg.MerchantKey == "" || s.cfg.MerchantToken == "" {
		return nil, fmt.Errorf("payment gateway not configured: missing merchant credentials")
	}

	booking, err := s.bookings.GetBooking(bookingID, userID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, &models.InvalidTransitionError{From: booking.Status, To: models.BookingStatusConfirmed}
	}
	if booking.IsPastDeadline(time.Now()) {
		return nil, &models.LateConfirmationConflictError{BookingID: bookingID.String()}
	}

	// Reuse the existing order reference if payment was initiated before
	orderRef := fmt.Sprintf("TBK-%s", strings.ToUpper(uuid.NewString()[:12]))
	existing, err := s.paymentRepo.GetByBookingID(bookingID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		orderRef = existing.OrderReference
	}

	amount := fmt.Sprintf("%.2f", booking.TotalPrice)
	request := &GatewayPaymentRequest{
		MerchantKey:  s.cfg.MerchantKey,
		InvoiceID:    orderRef,
		Amount:       amount,
		CurrencyCode: s.cfg.Currency,
		ReturnURL:    s.cfg.ReturnURL,
		WebhookURL:   s.cfg.WebhookURL,
		Description:  fmt.Sprintf("Tour booking %s", booking.ID),
		CheckValue:   s.GenerateCheckValue(orderRef, amount, s.cfg.Currency),
	}

	payment := &models.Payment{
		BookingID:      booking.ID,
		OrderReference: orderRef,
		Status:         models.PaymentStatusPending,
		Amount:         booking.TotalPrice,
		Currency:       s.cfg.Currency,
		RequestPayload: requestPayloadJSON(request),
	}
	if err := s.paymentRepo.Upsert(payment); err != nil {
		return nil, err
	}

	response, err := s.callGateway(request)
	if err != nil {
		audit := models.NewPaymentAudit(models.PaymentEventError, models.PaymentSourceBackend).
			SetBooking(booking.ID).
			SetOrderReference(orderRef).
			SetError(err.Error())
		if auditErr := s.auditRepo.Log(audit); auditErr != nil {
			s.logger.WithError(auditErr).Error("Failed to audit gateway error")
		}
		return nil, err
	}

	audit := models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceBackend).
		SetBooking(booking.ID).
		SetOrderReference(orderRef).
		SetPaymentStatus(string(models.PaymentStatusPending))
	if err := s.auditRepo.Log(audit); err != nil {
		s.logger.WithError(err).Error("Failed to audit payment initiation")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":      booking.ID,
		"order_reference": orderRef,
	}).Info("Payment initiated")

	return &models.InitiatePaymentResponse{
		BookingID:      booking.ID,
		OrderReference: orderRef,
		PaymentToken:   response.PaymentToken,
		PaymentPageURL: response.PaymentPage,
	}, nil
}

// HandleWebhook maps a gateway callback onto the booking state machine:
// settled confirms, failed marks the payment failed and leaves the booking
// pending for the sweeper, pending is a no-op. Duplicate and out-of-order
// deliveries are tolerated; late settlements land in the reconciliation
// queue and still answer success so the gateway stops retrying.
func (s *PaymentService) HandleWebhook(payload *GatewayWebhookPayload, rawBody string) error {
	received := models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceGatewayWebhook).
		SetOrderReference(payload.OrderReference).
		SetPaymentStatus(payload.PaymentStatus).
		SetRawBody(rawBody)
	if err := s.auditRepo.Log(received); err != nil {
		s.logger.WithError(err).Error("Failed to audit webhook receipt")
	}

	payment, err := s.paymentRepo.GetByOrderReference(payload.OrderReference)
	if err != nil {
		return err
	}
	if payment == nil {
		return fmt.Errorf("no payment found for order reference %s", payload.OrderReference)
	}

	switch strings.ToLower(payload.PaymentStatus) {
	case "settled", "success":
		return s.handleSettled(payment, payload)
	case "failed", "cancelled":
		return s.handleFailed(payment, payload)
	case "pending":
		// Gateway is still processing; nothing to transition yet
		return nil
	default:
		return fmt.Errorf("unknown payment status %q for order reference %s", payload.PaymentStatus, payload.OrderReference)
	}
}

func (s *PaymentService) handleSettled(payment *models.Payment, payload *GatewayWebhookPayload) error {
	if payment.Status != models.PaymentStatusSettled {
		if err := s.paymentRepo.UpdateStatus(payment.OrderReference, models.PaymentStatusSettled); err != nil {
			return err
		}
	}

	err := s.bookings.ConfirmBooking(payment.BookingID, payment.OrderReference)
	if err != nil {
		var late *models.LateConfirmationConflictError
		if errors.As(err, &late) {
			// Already flagged for reconciliation by the state machine.
			// Answer success so the gateway does not keep retrying a
			// conflict only a human can resolve.
			return nil
		}
		return err
	}

	audit := models.NewPaymentAudit(models.PaymentEventSettled, models.PaymentSourceGatewayWebhook).
		SetBooking(payment.BookingID).
		SetOrderReference(payment.OrderReference).
		SetPaymentStatus(string(models.PaymentStatusSettled))
	if err := s.auditRepo.Log(audit); err != nil {
		s.logger.WithError(err).Error("Failed to audit settlement")
	}
	return nil
}

func (s *PaymentService) handleFailed(payment *models.Payment, payload *GatewayWebhookPayload) error {
	// The booking stays pending: the user may retry payment until the
	// sweeper releases the seats at the deadline.
	if err := s.paymentRepo.UpdateStatus(payment.OrderReference, models.PaymentStatusFailed); err != nil {
		return err
	}

	audit := models.NewPaymentAudit(models.PaymentEventFailed, models.PaymentSourceGatewayWebhook).
		SetBooking(payment.BookingID).
		SetOrderReference(payment.OrderReference).
		SetPaymentStatus(string(models.PaymentStatusFailed))
	if err := s.auditRepo.Log(audit); err != nil {
		s.logger.WithError(err).Error("Failed to audit payment failure")
	}
	return nil
}

// callGateway posts the payment request through the circuit breaker
func (s *PaymentService) callGateway(request *GatewayPaymentRequest) (*GatewayPaymentResponse, error) {
	if s.cfg.GatewayURL == "" {
		return nil, fmt.Errorf("payment gateway not configured: missing gateway URL")
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal gateway request: %w", err)
		}

		resp, err := s.client.Post(s.cfg.GatewayURL, "application/json", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gateway request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read gateway response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(respBody))
		}

		var gatewayResp GatewayPaymentResponse
		if err := json.Unmarshal(respBody, &gatewayResp); err != nil {
			return nil, fmt.Errorf("failed to parse gateway response: %w", err)
		}
		if gatewayResp.Status != "success" {
			return nil, fmt.Errorf("gateway rejected payment: %s", gatewayResp.Message)
		}
		return &gatewayResp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*GatewayPaymentResponse), nil
}

// requestPayloadJSON converts the gateway request into a JSONB column value
func requestPayloadJSON(request *GatewayPaymentRequest) models.JSONB {
	raw, err := json.Marshal(request)
	if err != nil {
		return nil
	}
	var payload models.JSONB
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	// Never persist the checkValue; it is derived from the merchant secret
	delete(payload, "checkValue")
	return payload
}
