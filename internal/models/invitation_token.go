package models

import "time"

// InvitationToken is a limited-use credential granting membership in one
// household. Rows are deactivated rather than deleted so the audit trail of
// who was invited, by whom, and who redeemed survives.
type InvitationToken struct {
	BaseModel

	TokenHash   string `gorm:"uniqueIndex;not null" json:"-"`
	HouseholdID string `gorm:"type:uuid;not null;index" json:"household_id"`
	CreatedBy   string `gorm:"type:uuid;not null" json:"created_by"`
	Email       string `gorm:"type:varchar(255)" json:"email,omitempty"`

	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	MaxUses   int       `gorm:"not null;default:1" json:"max_uses"`
	UseCount  int       `gorm:"not null;default:0" json:"use_count"`
	IsActive  bool      `gorm:"not null;default:true;index" json:"is_active"`

	UsedBy *string    `gorm:"type:uuid" json:"used_by,omitempty"`
	UsedAt *time.Time `json:"used_at,omitempty"`

	Household *Household `gorm:"foreignKey:HouseholdID" json:"-"`
}

// Redeemable reports whether the token would accept a redemption at the given
// instant. The authoritative check is the conditional update in the invite
// service; this helper only serves presentation.
func (t *InvitationToken) Redeemable(now time.Time) bool {
	return t.IsActive && t.UseCount < t.MaxUses && t.ExpiresAt.After(now)
}
