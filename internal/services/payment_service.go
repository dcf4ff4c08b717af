package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/splithaus/splithaus/internal/models"
	apperrors "github.com/splithaus/splithaus/pkg/errors"
	"github.com/splithaus/splithaus/pkg/logger"
)

// PaymentService creates and tracks per-resident rent payment requests.
type PaymentService struct {
	db            *gorm.DB
	households    *HouseholdService
	notifications *NotificationService
	log           *zap.Logger
	now           func() time.Time
}

// PaymentOption customises PaymentService behaviour.
type PaymentOption func(*PaymentService)

// WithPaymentClock injects a custom clock primarily for testing.
func WithPaymentClock(clock func() time.Time) PaymentOption {
	return func(s *PaymentService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(db *gorm.DB, households *HouseholdService, notifications *NotificationService, opts ...PaymentOption) (*PaymentService, error) {
	if db == nil {
		return nil, errors.New("payment service: db is required")
	}
	if households == nil {
		return nil, errors.New("payment service: household service is required")
	}

	service := &PaymentService{
		db:            db,
		households:    households,
		notifications: notifications,
		log:           logger.WithModule("payments"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreatePeriodPaymentsInput describes one billing period for a household.
// The period is identified by the calendar month of DueDate.
type CreatePeriodPaymentsInput struct {
	HouseholdID      string
	CreatorID        string
	TotalAmountCents int64
	Currency         string
	DueDate          time.Time
}

// CreatePeriodPayments splits the period total evenly across the household's
// residents and persists one pending payment request per resident. The split
// is deterministic: every resident gets total/n cents and the first total%n
// residents in joined order get one extra cent, so the rows always sum to the
// exact total. A household may have at most one batch per calendar month.
func (s *PaymentService) CreatePeriodPayments(ctx context.Context, input CreatePeriodPaymentsInput) ([]models.PaymentRequest, error) {
	ctx = ensureContext(ctx)

	if input.TotalAmountCents <= 0 {
		return nil, apperrors.NewBadRequest("total amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, apperrors.NewBadRequest("currency is required")
	}
	if input.DueDate.IsZero() {
		return nil, apperrors.NewBadRequest("due date is required")
	}

	if err := s.households.RequireCreator(ctx, input.HouseholdID, input.CreatorID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrForbidden
		}
		return nil, err
	}

	residents, err := s.households.Residents(ctx, input.HouseholdID)
	if err != nil {
		return nil, err
	}
	if len(residents) == 0 {
		return nil, apperrors.NewBadRequest("household has no residents to bill")
	}

	dueDate := input.DueDate.UTC()
	periodStart := time.Date(dueDate.Year(), dueDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)
	period := periodStart.Format("2006-01")

	n := int64(len(residents))
	base := input.TotalAmountCents / n
	remainder := input.TotalAmountCents % n

	payments := make([]models.PaymentRequest, 0, len(residents))
	for i, resident := range residents {
		amount := base
		if int64(i) < remainder {
			amount++
		}
		payments = append(payments, models.PaymentRequest{
			HouseholdID: input.HouseholdID,
			UserID:      resident.UserID,
			AmountCents: amount,
			Currency:    currency,
			DueDate:     dueDate,
			Period:      period,
			Status:      models.PaymentStatusPending,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.PaymentRequest{}).
			Where("household_id = ? AND due_date >= ? AND due_date < ?",
				input.HouseholdID, periodStart, periodEnd).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check existing period: %w", err)
		}
		if existing > 0 {
			return apperrors.ErrConflict.WithMessage("payment requests already exist for this billing period")
		}

		// The count only gives a friendly answer on the serial path. Under
		// concurrent generators both can count zero; the unique index on
		// (household_id, user_id, period) is what actually rejects the loser.
		if err := tx.Create(&payments).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.ErrConflict.WithMessage("payment requests already exist for this billing period")
			}
			return fmt.Errorf("create payment requests: %w", err)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("payment service: %w", err)
	}

	for _, payment := range payments {
		s.notifyDue(ctx, &payment)
	}

	return payments, nil
}

// Get loads a payment request. Only the payer or a fellow household member
// may view it.
func (s *PaymentService) Get(ctx context.Context, paymentID, callerID string) (*models.PaymentRequest, error) {
	ctx = ensureContext(ctx)

	var payment models.PaymentRequest
	if err := s.db.WithContext(ctx).Where("id = ?", paymentID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("payment service: load payment: %w", err)
	}

	if payment.UserID != callerID {
		if _, err := s.households.membership(ctx, payment.HouseholdID, callerID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.ErrForbidden
			}
			return nil, err
		}
	}
	return &payment, nil
}

// ListForHousehold returns a household's payment requests, newest period
// first. The caller must belong to the household.
func (s *PaymentService) ListForHousehold(ctx context.Context, householdID, callerID string) ([]models.PaymentRequest, error) {
	ctx = ensureContext(ctx)

	if _, err := s.households.membership(ctx, householdID, callerID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrForbidden
		}
		return nil, err
	}

	var payments []models.PaymentRequest
	if err := s.db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Order("due_date DESC, created_at DESC").
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("payment service: list for household: %w", err)
	}
	return payments, nil
}

// ListForUser returns the user's own payment requests, optionally filtered by
// status, newest period first.
func (s *PaymentService) ListForUser(ctx context.Context, userID, status string) ([]models.PaymentRequest, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status = strings.TrimSpace(status); status != "" {
		query = query.Where("status = ?", status)
	}

	var payments []models.PaymentRequest
	if err := query.
		Order("due_date DESC, created_at DESC").
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("payment service: list for user: %w", err)
	}
	return payments, nil
}

// MarkOverdue flips pending payment requests whose due date has passed to
// overdue and notifies the payers. Overdue rows remain payable; the status is
// advisory. Used by the maintenance sweep.
func (s *PaymentService) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	now = now.UTC()

	var due []models.PaymentRequest
	if err := s.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", models.PaymentStatusPending, now).
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("payment service: find overdue: %w", err)
	}

	var flipped int64
	for _, payment := range due {
		// Conditional on status so a concurrent checkout or webhook that
		// already moved the row wins.
		result := s.db.WithContext(ctx).
			Model(&models.PaymentRequest{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
			Update("status", models.PaymentStatusOverdue)
		if result.Error != nil {
			return flipped, fmt.Errorf("payment service: mark overdue: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		flipped++

		if s.notifications != nil {
			s.notifications.Notify(ctx, CreateNotificationInput{
				UserID:  payment.UserID,
				Type:    models.NotificationPaymentOverdue,
				Title:   "Rent payment overdue",
				Message: fmt.Sprintf("Your rent payment of %s is overdue", formatAmount(payment.AmountCents, payment.Currency)),
				Metadata: map[string]any{
					"payment_id":   payment.ID,
					"household_id": payment.HouseholdID,
				},
			})
		}
	}

	return flipped, nil
}

func (s *PaymentService) notifyDue(ctx context.Context, payment *models.PaymentRequest) {
	if s.notifications == nil {
		return
	}
	s.notifications.Notify(ctx, CreateNotificationInput{
		UserID:  payment.UserID,
		Type:    models.NotificationPaymentDue,
		Title:   "Rent payment due",
		Message: fmt.Sprintf("Your rent payment of %s is due %s", formatAmount(payment.AmountCents, payment.Currency), payment.DueDate.Format("2 Jan 2006")),
		Metadata: map[string]any{
			"payment_id":   payment.ID,
			"household_id": payment.HouseholdID,
		},
	})
}

func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
