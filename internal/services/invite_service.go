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
	"github.com/splithaus/splithaus/pkg/crypto"
	apperrors "github.com/splithaus/splithaus/pkg/errors"
	"github.com/splithaus/splithaus/pkg/logger"
	"github.com/splithaus/splithaus/pkg/mail"
	"github.com/splithaus/splithaus/pkg/metrics"
)

const (
	defaultInviteExpiry     = 7 * 24 * time.Hour
	defaultInviteTokenBytes = 24
	defaultInviteMaxUses    = 1
)

// errMembershipExists aborts the redemption transaction so the token
// consumption rolls back when the membership row already exists.
var errMembershipExists = errors.New("invite: membership already exists")

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteExpiry overrides the invitation token lifetime.
func WithInviteExpiry(d time.Duration) InviteOption {
	return func(s *InviteService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInviteMaxUses overrides the default use cap for new tokens.
func WithInviteMaxUses(n int) InviteOption {
	return func(s *InviteService) {
		if n > 0 {
			s.maxUses = n
		}
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithInviteBaseURL configures the base URL used in emailed invite links.
func WithInviteBaseURL(url string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// InviteService issues, redeems, and revokes household invitation tokens.
type InviteService struct {
	db            *gorm.DB
	households    *HouseholdService
	users         *UserService
	notifications *NotificationService
	mailer        mail.Mailer
	log           *zap.Logger

	expiry  time.Duration
	maxUses int
	baseURL string
	now     func() time.Time
}

// NewInviteService constructs an InviteService with the provided dependencies.
// The mailer is optional; invitation email is best-effort.
func NewInviteService(db *gorm.DB, households *HouseholdService, users *UserService, notifications *NotificationService, mailer mail.Mailer, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	if households == nil {
		return nil, errors.New("invite service: household service is required")
	}

	service := &InviteService{
		db:            db,
		households:    households,
		users:         users,
		notifications: notifications,
		mailer:        mailer,
		log:           logger.WithModule("invites"),
		expiry:        defaultInviteExpiry,
		maxUses:       defaultInviteMaxUses,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Issue creates a single-use invitation token for the household. Only the
// household creator may issue. The raw token is returned exactly once; the
// stored row keeps only its hash.
func (s *InviteService) Issue(ctx context.Context, householdID, creatorID, email string) (string, *models.InvitationToken, error) {
	ctx = ensureContext(ctx)

	if err := s.households.RequireCreator(ctx, householdID, creatorID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil, apperrors.ErrForbidden
		}
		return "", nil, err
	}

	rawToken, err := crypto.GenerateToken(defaultInviteTokenBytes)
	if err != nil {
		return "", nil, fmt.Errorf("invite service: generate token: %w", err)
	}

	now := s.now().UTC()
	invite := models.InvitationToken{
		TokenHash:   crypto.HashToken(rawToken),
		HouseholdID: householdID,
		CreatedBy:   creatorID,
		Email:       strings.ToLower(strings.TrimSpace(email)),
		ExpiresAt:   now.Add(s.expiry),
		MaxUses:     s.maxUses,
		IsActive:    true,
	}

	if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
		return "", nil, fmt.Errorf("invite service: create invite: %w", err)
	}

	s.sendInviteEmail(ctx, invite.Email, rawToken)

	return rawToken, &invite, nil
}

// RedeemResult reports the outcome of a redemption.
type RedeemResult struct {
	HouseholdID   string `json:"household_id"`
	AlreadyMember bool   `json:"already_member"`
}

// Redeem validates and atomically consumes an invitation token, creating a
// membership for the user. The use-count increment is a single conditional
// update so that a token with max uses N yields at most N memberships even
// under simultaneous redemption attempts.
func (s *InviteService) Redeem(ctx context.Context, token, userID, displayName string) (*RedeemResult, error) {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewBadRequest("token is required")
	}

	var invite models.InvitationToken
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", crypto.HashToken(token)).
		First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.InviteRedemptions.WithLabelValues("not_found").Inc()
			return nil, apperrors.ErrNotFound.WithMessage("invitation token not found")
		}
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}

	// Idempotent success: a user who already belongs to the household does
	// not consume the token again.
	if member, err := s.isMember(ctx, invite.HouseholdID, userID); err != nil {
		return nil, err
	} else if member {
		metrics.InviteRedemptions.WithLabelValues("already_member").Inc()
		return &RedeemResult{HouseholdID: invite.HouseholdID, AlreadyMember: true}, nil
	}

	now := s.now().UTC()
	email := s.userEmail(ctx, userID)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The guard conditions and the increment must be one statement:
		// rows-affected tells us whether this request won the slot.
		result := tx.Model(&models.InvitationToken{}).
			Where("id = ? AND is_active = ? AND use_count < max_uses AND expires_at > ?",
				invite.ID, true, now).
			Updates(map[string]any{
				"use_count": gorm.Expr("use_count + 1"),
				"used_by":   userID,
				"used_at":   now,
			})
		if result.Error != nil {
			return fmt.Errorf("consume token: %w", result.Error)
		}
		if result.RowsAffected != 1 {
			return apperrors.ErrInvalidState.WithMessage("invitation token is expired, exhausted, or revoked")
		}

		if err := tx.Model(&models.InvitationToken{}).
			Where("id = ? AND use_count >= max_uses", invite.ID).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivate exhausted token: %w", err)
		}

		membership := models.HouseholdMembership{
			HouseholdID: invite.HouseholdID,
			UserID:      userID,
			DisplayName: defaultIfEmpty(strings.TrimSpace(displayName), email),
			Email:       email,
			Role:        models.RoleResident,
			JoinedAt:    now,
		}
		if err := tx.Create(&membership).Error; err != nil {
			if isUniqueConstraintError(err) {
				return errMembershipExists
			}
			return fmt.Errorf("create membership: %w", err)
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errMembershipExists):
		// Lost a race against this same user's concurrent redemption. The
		// rollback restored the use count, so this is idempotent success.
		metrics.InviteRedemptions.WithLabelValues("already_member").Inc()
		return &RedeemResult{HouseholdID: invite.HouseholdID, AlreadyMember: true}, nil
	default:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			metrics.InviteRedemptions.WithLabelValues("invalid_state").Inc()
			return nil, appErr
		}
		return nil, fmt.Errorf("invite service: %w", err)
	}

	metrics.InviteRedemptions.WithLabelValues("success").Inc()
	s.notifyCreator(ctx, &invite, displayName)

	return &RedeemResult{HouseholdID: invite.HouseholdID}, nil
}

// Cancel deactivates an invitation token. The row survives as an audit trail.
// Only the household creator may cancel. Cancelling an already-inactive token
// is a no-op success.
func (s *InviteService) Cancel(ctx context.Context, tokenID, callerID string) error {
	ctx = ensureContext(ctx)

	var invite models.InvitationToken
	if err := s.db.WithContext(ctx).Where("id = ?", tokenID).First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("invite service: load invite: %w", err)
	}

	if err := s.households.RequireCreator(ctx, invite.HouseholdID, callerID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrForbidden
		}
		return err
	}

	if !invite.IsActive {
		return nil
	}

	if err := s.db.WithContext(ctx).
		Model(&models.InvitationToken{}).
		Where("id = ?", invite.ID).
		Update("is_active", false).Error; err != nil {
		return fmt.Errorf("invite service: cancel invite: %w", err)
	}

	s.notifyInvitee(ctx, &invite)
	return nil
}

// ListForHousehold returns the household's invitation tokens, newest first.
// Only the household creator may list them.
func (s *InviteService) ListForHousehold(ctx context.Context, householdID, callerID string) ([]models.InvitationToken, error) {
	ctx = ensureContext(ctx)

	if err := s.households.RequireCreator(ctx, householdID, callerID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrForbidden
		}
		return nil, err
	}

	var invites []models.InvitationToken
	if err := s.db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Order("created_at DESC").
		Find(&invites).Error; err != nil {
		return nil, fmt.Errorf("invite service: list invites: %w", err)
	}
	return invites, nil
}

// DeactivateExpired flips expired-but-active tokens to inactive. Rows are
// kept; this only closes the redemption window. Used by the maintenance sweep.
func (s *InviteService) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.InvitationToken{}).
		Where("is_active = ? AND expires_at <= ?", true, now.UTC()).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("invite service: deactivate expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *InviteService) isMember(ctx context.Context, householdID, userID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.HouseholdMembership{}).
		Where("household_id = ? AND user_id = ?", householdID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("invite service: membership lookup: %w", err)
	}
	return count > 0, nil
}

func (s *InviteService) userEmail(ctx context.Context, userID string) string {
	if s.users == nil {
		return ""
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Email
}

func (s *InviteService) notifyCreator(ctx context.Context, invite *models.InvitationToken, displayName string) {
	if s.notifications == nil {
		return
	}
	s.notifications.Notify(ctx, CreateNotificationInput{
		UserID:  invite.CreatedBy,
		Type:    models.NotificationMemberJoined,
		Title:   "New member joined",
		Message: fmt.Sprintf("%s joined your household", defaultIfEmpty(displayName, "A new member")),
		Metadata: map[string]any{
			"household_id": invite.HouseholdID,
			"invite_id":    invite.ID,
		},
	})
}

func (s *InviteService) notifyInvitee(ctx context.Context, invite *models.InvitationToken) {
	if s.notifications == nil || s.users == nil || invite.Email == "" {
		return
	}
	user, err := s.users.FindByEmail(ctx, invite.Email)
	if err != nil || user == nil {
		return
	}
	s.notifications.Notify(ctx, CreateNotificationInput{
		UserID:  user.ID,
		Type:    models.NotificationInviteCancelled,
		Title:   "Invitation cancelled",
		Message: "Your household invitation has been cancelled",
		Metadata: map[string]any{
			"household_id": invite.HouseholdID,
		},
	})
}

func (s *InviteService) sendInviteEmail(ctx context.Context, email, rawToken string) {
	if s.mailer == nil || email == "" {
		return
	}

	link := rawToken
	if s.baseURL != "" {
		link = fmt.Sprintf("%s/join?token=%s", s.baseURL, rawToken)
	}

	message := mail.Message{
		To:      []string{email},
		Subject: "You're invited to join a household on SplitHaus",
		Body:    fmt.Sprintf("Hello,\n\nYou have been invited to join a household on SplitHaus. Use the following link to accept:\n%s\n\nThe invitation expires in 7 days. If you did not expect this email, you can ignore it.\n", link),
	}
	if err := s.mailer.Send(ctx, message); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("invite email failed", zap.String("email", email), zap.Error(err))
	}
}
