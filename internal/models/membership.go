package models

import "time"

// Membership roles.
const (
	RoleCreator  = "creator"
	RoleResident = "resident"
)

// HouseholdMembership links a user to a household. At most one membership may
// exist per (household, user) pair; the composite unique index is the guard
// concurrent invite redemptions race against.
type HouseholdMembership struct {
	BaseModel

	HouseholdID string    `gorm:"type:uuid;not null;uniqueIndex:idx_household_user" json:"household_id"`
	UserID      string    `gorm:"type:uuid;not null;uniqueIndex:idx_household_user" json:"user_id"`
	DisplayName string    `gorm:"type:varchar(64);not null" json:"display_name"`
	Email       string    `gorm:"type:varchar(255)" json:"email,omitempty"`
	Role        string    `gorm:"type:varchar(16);not null;default:'resident'" json:"role"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`

	Household *Household `gorm:"foreignKey:HouseholdID" json:"-"`
	User      *User      `gorm:"foreignKey:UserID" json:"-"`
}
