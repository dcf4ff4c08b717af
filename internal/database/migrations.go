package database

import (
	"gorm.io/gorm"

	"github.com/splithaus/splithaus/internal/models"
)

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Household{},
		&models.HouseholdMembership{},
		&models.InvitationToken{},
		&models.PaymentRequest{},
		&models.Notification{},
	)
}
