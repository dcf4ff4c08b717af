package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/splithaus/splithaus/internal/database/testutil"
	"github.com/splithaus/splithaus/internal/models"
)

// fixture bundles the services most tests need over one in-memory database.
type fixture struct {
	db            *gorm.DB
	users         *UserService
	households    *HouseholdService
	notifications *NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	users, err := NewUserService(db)
	require.NoError(t, err)
	households, err := NewHouseholdService(db)
	require.NoError(t, err)
	notifications, err := NewNotificationService(db)
	require.NoError(t, err)

	return &fixture{
		db:            db,
		users:         users,
		households:    households,
		notifications: notifications,
	}
}

func (f *fixture) createUser(t *testing.T, email string) *models.User {
	t.Helper()

	user, err := f.users.Register(context.Background(), RegisterInput{
		Email:       email,
		Password:    "correct-horse-battery",
		DisplayName: email,
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) createHousehold(t *testing.T, creator *models.User) *models.Household {
	t.Helper()

	household, err := f.households.Create(context.Background(), CreateHouseholdInput{
		Name:      "Test Flat",
		CreatorID: creator.ID,
		Email:     creator.Email,
	})
	require.NoError(t, err)
	return household
}

// addResident inserts a resident membership directly, with a controllable
// join time so split ordering is deterministic.
func (f *fixture) addResident(t *testing.T, householdID string, user *models.User, joinedAt time.Time) {
	t.Helper()

	membership := models.HouseholdMembership{
		HouseholdID: householdID,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Role:        models.RoleResident,
		JoinedAt:    joinedAt.UTC(),
	}
	require.NoError(t, f.db.Create(&membership).Error)
}

func (f *fixture) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()

	rows, err := f.notifications.ListForUser(context.Background(), ListNotificationsInput{UserID: userID})
	require.NoError(t, err)
	return rows
}
