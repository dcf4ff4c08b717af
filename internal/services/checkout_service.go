package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/splithaus/splithaus/internal/gateway"
	"github.com/splithaus/splithaus/internal/models"
	apperrors "github.com/splithaus/splithaus/pkg/errors"
	"github.com/splithaus/splithaus/pkg/logger"
	"github.com/splithaus/splithaus/pkg/metrics"
)

// CheckoutGateway is the slice of the gateway client the checkout flow needs.
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, params gateway.CheckoutParams) (*gateway.CheckoutSession, error)
}

// CheckoutService opens gateway payment sessions for pending payment requests.
type CheckoutService struct {
	db      *gorm.DB
	gateway CheckoutGateway
	users   *UserService
	log     *zap.Logger
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(db *gorm.DB, gw CheckoutGateway, users *UserService) (*CheckoutService, error) {
	if db == nil {
		return nil, errors.New("checkout service: db is required")
	}
	if gw == nil {
		return nil, errors.New("checkout service: gateway client is required")
	}
	return &CheckoutService{
		db:      db,
		gateway: gw,
		users:   users,
		log:     logger.WithModule("checkout"),
	}, nil
}

// Checkout is what the paying resident needs to complete payment in the
// hosted gateway page.
type Checkout struct {
	PaymentID    string `json:"payment_id"`
	OrderID      string `json:"order_id"`
	PaymentToken string `json:"payment_token"`
	IframeURL    string `json:"iframe_url"`
}

// BeginCheckout negotiates a gateway session for the payment request. Only the
// payer may start checkout. Paid requests are rejected; a failed request is
// atomically moved back to pending first so a new attempt can proceed. Nothing
// is persisted unless the full gateway negotiation succeeds.
func (s *CheckoutService) BeginCheckout(ctx context.Context, paymentID, callerID string) (*Checkout, error) {
	ctx = ensureContext(ctx)

	var payment models.PaymentRequest
	if err := s.db.WithContext(ctx).Where("id = ?", paymentID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("payment request not found")
		}
		return nil, fmt.Errorf("checkout service: load payment: %w", err)
	}

	if payment.UserID != callerID {
		metrics.CheckoutAttempts.WithLabelValues("forbidden").Inc()
		return nil, apperrors.ErrForbidden.WithMessage("only the payer can start checkout")
	}

	switch payment.Status {
	case models.PaymentStatusPaid:
		metrics.CheckoutAttempts.WithLabelValues("already_paid").Inc()
		return nil, apperrors.ErrAlreadyPaid
	case models.PaymentStatusFailed:
		// Retry path: the reset is conditional on the row still being failed
		// so a concurrent webhook or checkout cannot be clobbered.
		result := s.db.WithContext(ctx).
			Model(&models.PaymentRequest{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusFailed).
			Update("status", models.PaymentStatusPending)
		if result.Error != nil {
			return nil, fmt.Errorf("checkout service: reset failed payment: %w", result.Error)
		}
		if result.RowsAffected != 1 {
			metrics.CheckoutAttempts.WithLabelValues("conflict").Inc()
			return nil, apperrors.ErrInvalidState.WithMessage("payment request changed, retry checkout")
		}
		payment.Status = models.PaymentStatusPending
	case models.PaymentStatusPending, models.PaymentStatusOverdue:
	default:
		metrics.CheckoutAttempts.WithLabelValues("invalid_state").Inc()
		return nil, apperrors.ErrInvalidState.WithMessage("payment request cannot be checked out")
	}

	params := gateway.CheckoutParams{
		MerchantOrderID: fmt.Sprintf("%s-%d", payment.ID, time.Now().UTC().UnixNano()),
		AmountCents:     payment.AmountCents,
		Currency:        payment.Currency,
	}
	if s.users != nil {
		if user, err := s.users.Get(ctx, payment.UserID); err == nil {
			params.BillingEmail = user.Email
			params.BillingName = user.DisplayName
			params.BillingPhone = user.Phone
		}
	}

	session, err := s.gateway.CreateCheckout(ctx, params)
	if err != nil {
		metrics.CheckoutAttempts.WithLabelValues("gateway_error").Inc()
		s.log.Warn("gateway checkout failed",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		// The row stays pending; the resident can simply retry.
		return nil, apperrors.ErrGateway
	}

	// One write, only after the whole negotiation succeeded, and only while
	// the row is still open. A repeat checkout overwrites the previous
	// session; the latest one wins. The status guard keeps a webhook that
	// settled the payment during the gateway round trips from being clobbered
	// with a stale session.
	result := s.db.WithContext(ctx).
		Model(&models.PaymentRequest{}).
		Where("id = ? AND status IN ?", payment.ID,
			[]string{models.PaymentStatusPending, models.PaymentStatusOverdue}).
		Updates(map[string]any{
			"gateway_order_id": session.OrderID,
			"checkout_token":   session.PaymentToken,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("checkout service: persist session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		metrics.CheckoutAttempts.WithLabelValues("already_paid").Inc()
		return nil, apperrors.ErrAlreadyPaid
	}

	metrics.CheckoutAttempts.WithLabelValues("success").Inc()

	return &Checkout{
		PaymentID:    payment.ID,
		OrderID:      session.OrderID,
		PaymentToken: session.PaymentToken,
		IframeURL:    session.IframeURL,
	}, nil
}
