package models

// User is a registered account. Authentication concerns beyond the stored
// password hash live in internal/auth.
type User struct {
	BaseModel

	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	Password    string `gorm:"not null" json:"-"`
	DisplayName string `gorm:"type:varchar(64);not null" json:"display_name"`
	Phone       string `gorm:"type:varchar(32)" json:"phone,omitempty"`

	Memberships []HouseholdMembership `gorm:"foreignKey:UserID" json:"-"`
}
