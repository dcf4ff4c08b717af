package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/splithaus/splithaus/internal/models"
	apperrors "github.com/splithaus/splithaus/pkg/errors"
)

// HouseholdService manages households and their memberships.
type HouseholdService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewHouseholdService constructs a HouseholdService.
func NewHouseholdService(db *gorm.DB) (*HouseholdService, error) {
	if db == nil {
		return nil, errors.New("household service: db is required")
	}
	return &HouseholdService{db: db, now: time.Now}, nil
}

// CreateHouseholdInput describes a new household.
type CreateHouseholdInput struct {
	Name        string
	Address     string
	CreatorID   string
	DisplayName string
	Email       string
}

// Create persists a household together with the creator's membership row.
func (s *HouseholdService) Create(ctx context.Context, input CreateHouseholdInput) (*models.Household, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("household name is required")
	}
	creatorID := strings.TrimSpace(input.CreatorID)
	if creatorID == "" {
		return nil, errors.New("household service: creator id is required")
	}

	household := models.Household{
		Name:      name,
		Address:   strings.TrimSpace(input.Address),
		CreatedBy: creatorID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&household).Error; err != nil {
			return fmt.Errorf("create household: %w", err)
		}

		membership := models.HouseholdMembership{
			HouseholdID: household.ID,
			UserID:      creatorID,
			DisplayName: defaultIfEmpty(input.DisplayName, "Owner"),
			Email:       strings.TrimSpace(input.Email),
			Role:        models.RoleCreator,
			JoinedAt:    s.now().UTC(),
		}
		if err := tx.Create(&membership).Error; err != nil {
			return fmt.Errorf("create creator membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("household service: %w", err)
	}

	return &household, nil
}

// ListForUser returns the households the user belongs to.
func (s *HouseholdService) ListForUser(ctx context.Context, userID string) ([]models.Household, error) {
	ctx = ensureContext(ctx)

	var households []models.Household
	if err := s.db.WithContext(ctx).
		Joins("JOIN household_memberships ON household_memberships.household_id = households.id").
		Where("household_memberships.user_id = ?", userID).
		Order("households.created_at ASC").
		Find(&households).Error; err != nil {
		return nil, fmt.Errorf("household service: list for user: %w", err)
	}
	return households, nil
}

// Members returns the memberships of a household. The caller must belong to it.
func (s *HouseholdService) Members(ctx context.Context, householdID, callerID string) ([]models.HouseholdMembership, error) {
	ctx = ensureContext(ctx)

	if _, err := s.membership(ctx, householdID, callerID); err != nil {
		return nil, err
	}

	var members []models.HouseholdMembership
	if err := s.db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Order("joined_at ASC, user_id ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("household service: list members: %w", err)
	}
	return members, nil
}

// Residents returns non-creator members in the stable order used for payment
// splitting: earliest joined first, ties broken by user id.
func (s *HouseholdService) Residents(ctx context.Context, householdID string) ([]models.HouseholdMembership, error) {
	ctx = ensureContext(ctx)

	var residents []models.HouseholdMembership
	if err := s.db.WithContext(ctx).
		Where("household_id = ? AND role = ?", householdID, models.RoleResident).
		Order("joined_at ASC, user_id ASC").
		Find(&residents).Error; err != nil {
		return nil, fmt.Errorf("household service: list residents: %w", err)
	}
	return residents, nil
}

// RemoveMember deletes a membership. Residents may remove themselves; only
// the household creator may remove others. The creator cannot be removed.
func (s *HouseholdService) RemoveMember(ctx context.Context, householdID, callerID, targetUserID string) error {
	ctx = ensureContext(ctx)

	target, err := s.membership(ctx, householdID, targetUserID)
	if err != nil {
		return err
	}
	if target.Role == models.RoleCreator {
		return apperrors.ErrForbidden.WithMessage("the household creator cannot be removed")
	}

	if callerID != targetUserID {
		if err := s.RequireCreator(ctx, householdID, callerID); err != nil {
			return err
		}
	}

	result := s.db.WithContext(ctx).
		Where("household_id = ? AND user_id = ?", householdID, targetUserID).
		Delete(&models.HouseholdMembership{})
	if result.Error != nil {
		return fmt.Errorf("household service: remove member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RequireCreator verifies that userID is the household's creator.
func (s *HouseholdService) RequireCreator(ctx context.Context, householdID, userID string) error {
	membership, err := s.membership(ctx, householdID, userID)
	if err != nil {
		return err
	}
	if membership.Role != models.RoleCreator {
		return apperrors.ErrForbidden
	}
	return nil
}

// Creator returns the creator membership of the household.
func (s *HouseholdService) Creator(ctx context.Context, householdID string) (*models.HouseholdMembership, error) {
	ctx = ensureContext(ctx)

	var membership models.HouseholdMembership
	if err := s.db.WithContext(ctx).
		Where("household_id = ? AND role = ?", householdID, models.RoleCreator).
		First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("household service: load creator: %w", err)
	}
	return &membership, nil
}

func (s *HouseholdService) membership(ctx context.Context, householdID, userID string) (*models.HouseholdMembership, error) {
	var membership models.HouseholdMembership
	if err := s.db.WithContext(ctx).
		Where("household_id = ? AND user_id = ?", householdID, userID).
		First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("household service: load membership: %w", err)
	}
	return &membership, nil
}
