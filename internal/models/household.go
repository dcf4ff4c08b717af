package models

// Household groups the residents that share rent for one address.
type Household struct {
	BaseModel

	Name      string `gorm:"type:varchar(128);not null" json:"name"`
	Address   string `gorm:"type:varchar(255)" json:"address,omitempty"`
	CreatedBy string `gorm:"type:uuid;not null;index" json:"created_by"`

	Memberships []HouseholdMembership `gorm:"foreignKey:HouseholdID" json:"memberships,omitempty"`
}
