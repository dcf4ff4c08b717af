package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/splithaus/splithaus/internal/models"
	"github.com/splithaus/splithaus/pkg/crypto"
	apperrors "github.com/splithaus/splithaus/pkg/errors"
	"github.com/splithaus/splithaus/pkg/logger"
	"github.com/splithaus/splithaus/pkg/metrics"
)

const approvedResponseCode = "APPROVED"

// transactionEvent is the gateway's webhook envelope. Extra fields the
// gateway sends are ignored; only what reconciliation needs is decoded.
type transactionEvent struct {
	Type string         `json:"type"`
	Obj  transactionObj `json:"obj"`
}

type transactionObj struct {
	ID              json.Number      `json:"id"`
	Order           transactionOrder `json:"order"`
	Success         bool             `json:"success"`
	Pending         bool             `json:"pending"`
	TxnResponseCode string           `json:"txn_response_code"`
	AmountCents     int64            `json:"amount_cents"`
	Currency        string           `json:"currency"`
}

type transactionOrder struct {
	ID              json.Number `json:"id"`
	MerchantOrderID string      `json:"merchant_order_id"`
}

// ReconcileResult reports what a webhook delivery did to the ledger.
type ReconcileResult struct {
	PaymentID string `json:"payment_id,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
	Applied   bool   `json:"applied"`
}

// ReconcileService applies gateway webhook events to payment requests. Every
// status write is a compare-and-swap against pending, so replayed and
// out-of-order deliveries are harmless no-ops.
type ReconcileService struct {
	db            *gorm.DB
	households    *HouseholdService
	notifications *NotificationService
	hmacSecret    string
	log           *zap.Logger
	now           func() time.Time
}

// NewReconcileService constructs a ReconcileService. The HMAC secret is
// required: unauthenticated reconciliation is never acceptable.
func NewReconcileService(db *gorm.DB, households *HouseholdService, notifications *NotificationService, hmacSecret string) (*ReconcileService, error) {
	if db == nil {
		return nil, errors.New("reconcile service: db is required")
	}
	if strings.TrimSpace(hmacSecret) == "" {
		return nil, errors.New("reconcile service: hmac secret is required")
	}
	return &ReconcileService{
		db:            db,
		households:    households,
		notifications: notifications,
		hmacSecret:    hmacSecret,
		log:           logger.WithModule("reconcile"),
		now:           time.Now,
	}, nil
}

// HandleEvent verifies and applies one raw webhook delivery. The signature is
// checked over the exact raw bytes before anything is parsed. Events that
// reference no known gateway order return ErrNotFound so the gateway retries
// later; everything else that cannot apply resolves as a no-op.
func (s *ReconcileService) HandleEvent(ctx context.Context, raw []byte, signature string) (*ReconcileResult, error) {
	ctx = ensureContext(ctx)

	if !crypto.VerifySignature(raw, signature, []byte(s.hmacSecret)) {
		metrics.SignatureFailures.Inc()
		metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		return nil, apperrors.ErrUnauthorized.WithMessage("invalid webhook signature")
	}

	var event transactionEvent
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&event); err != nil {
		metrics.WebhookEvents.WithLabelValues("invalid").Inc()
		return nil, apperrors.NewBadRequest("malformed webhook payload")
	}

	// Tagged-variant decode: only transaction events reach business logic.
	if event.Type != "TRANSACTION" {
		metrics.WebhookEvents.WithLabelValues("invalid").Inc()
		return nil, apperrors.NewBadRequest("unsupported event type")
	}

	orderID := event.Obj.Order.ID.String()
	if orderID == "" {
		metrics.WebhookEvents.WithLabelValues("invalid").Inc()
		return nil, apperrors.NewBadRequest("webhook payload missing order id")
	}

	// Matching is strictly on the order id recorded at checkout time. A
	// merchant_order_id is informational only.
	var payment models.PaymentRequest
	if err := s.db.WithContext(ctx).
		Where("gateway_order_id = ?", orderID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.WebhookEvents.WithLabelValues("not_found").Inc()
			return nil, apperrors.ErrNotFound.WithMessage("no payment request for gateway order")
		}
		return nil, fmt.Errorf("reconcile service: find payment: %w", err)
	}

	// Settled rows accept no further transitions. The conditional update
	// below enforces this either way; the early answer just skips the write.
	if payment.Terminal() {
		metrics.WebhookEvents.WithLabelValues("noop").Inc()
		s.log.Info("webhook ignored, payment already settled",
			zap.String("payment_id", payment.ID),
			zap.String("status", payment.Status),
		)
		return &ReconcileResult{PaymentID: payment.ID, NewStatus: payment.Status}, nil
	}

	if event.Obj.AmountCents != 0 && event.Obj.AmountCents != payment.AmountCents {
		s.log.Warn("webhook amount differs from payment request",
			zap.String("payment_id", payment.ID),
			zap.Int64("expected_cents", payment.AmountCents),
			zap.Int64("reported_cents", event.Obj.AmountCents),
		)
	}

	newStatus := s.decide(event.Obj)
	if newStatus == models.PaymentStatusPending {
		// Gateway still processing. Nothing to record yet.
		metrics.WebhookEvents.WithLabelValues("noop").Inc()
		return &ReconcileResult{PaymentID: payment.ID, NewStatus: payment.Status}, nil
	}

	updates := map[string]any{
		"status":         newStatus,
		"gateway_txn_id": event.Obj.ID.String(),
	}
	if newStatus == models.PaymentStatusPaid {
		updates["paid_at"] = s.now().UTC()
	}

	// The whole transition is one conditional update. Terminal rows never
	// move again; only a row still awaiting settlement can be written.
	result := s.db.WithContext(ctx).
		Model(&models.PaymentRequest{}).
		Where("id = ? AND status IN ?", payment.ID,
			[]string{models.PaymentStatusPending, models.PaymentStatusOverdue}).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("reconcile service: apply transition: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Replay or out-of-order delivery against a settled row.
		metrics.WebhookEvents.WithLabelValues("noop").Inc()
		s.log.Info("webhook ignored, payment already settled",
			zap.String("payment_id", payment.ID),
			zap.String("status", payment.Status),
		)
		return &ReconcileResult{PaymentID: payment.ID, NewStatus: payment.Status}, nil
	}

	metrics.WebhookEvents.WithLabelValues("applied").Inc()
	s.log.Info("webhook applied",
		zap.String("payment_id", payment.ID),
		zap.String("new_status", newStatus),
		zap.String("gateway_txn_id", event.Obj.ID.String()),
	)

	// Notifications piggyback on the same guard: they fire exactly when the
	// transition applied, never on a replay.
	if newStatus == models.PaymentStatusPaid {
		s.notifyPaid(ctx, &payment)
	}

	return &ReconcileResult{PaymentID: payment.ID, NewStatus: newStatus, Applied: true}, nil
}

// decide maps one transaction report onto a target status. Approved successes
// settle the payment, in-flight transactions change nothing, and every other
// combination is a failed attempt.
func (s *ReconcileService) decide(obj transactionObj) string {
	switch {
	case obj.Success && strings.EqualFold(obj.TxnResponseCode, approvedResponseCode):
		return models.PaymentStatusPaid
	case obj.Pending, strings.EqualFold(obj.TxnResponseCode, "PENDING"):
		return models.PaymentStatusPending
	default:
		return models.PaymentStatusFailed
	}
}

func (s *ReconcileService) notifyPaid(ctx context.Context, payment *models.PaymentRequest) {
	if s.notifications == nil {
		return
	}

	amount := formatAmount(payment.AmountCents, payment.Currency)
	s.notifications.Notify(ctx, CreateNotificationInput{
		UserID:  payment.UserID,
		Type:    models.NotificationPaymentSucceeded,
		Title:   "Payment confirmed",
		Message: fmt.Sprintf("Your rent payment of %s was received", amount),
		Metadata: map[string]any{
			"payment_id":   payment.ID,
			"household_id": payment.HouseholdID,
		},
	})

	if s.households == nil {
		return
	}
	creator, err := s.households.Creator(ctx, payment.HouseholdID)
	if err != nil {
		s.log.Warn("creator lookup failed for paid notification",
			zap.String("household_id", payment.HouseholdID),
			zap.Error(err),
		)
		return
	}
	s.notifications.Notify(ctx, CreateNotificationInput{
		UserID:  creator.UserID,
		Type:    models.NotificationPaymentReceived,
		Title:   "Rent payment received",
		Message: fmt.Sprintf("A rent payment of %s was received", amount),
		Metadata: map[string]any{
			"payment_id":   payment.ID,
			"household_id": payment.HouseholdID,
			"payer_id":     payment.UserID,
		},
	})
}
