package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splithaus/splithaus/internal/models"
	apperrors "github.com/splithaus/splithaus/pkg/errors"
)

func newPaymentService(t *testing.T, f *fixture) *PaymentService {
	t.Helper()

	payments, err := NewPaymentService(f.db, f.households, f.notifications)
	require.NoError(t, err)
	return payments
}

func TestCreatePeriodPaymentsEvenSplit(t *testing.T) {
	f := newFixture(t)
	creator := f.createUser(t, "creator@example.com")
	household := f.createHousehold(t, creator)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"} {
		f.addResident(t, household.ID, f.createUser(t, email), base.AddDate(0, 0, i))
	}

	payments := newPaymentService(t, f)
	rows, err := payments.CreatePeriodPayments(context.Background(), CreatePeriodPaymentsInput{
		HouseholdID:      household.ID,
		CreatorID:        creator.ID,
		TotalAmountCents: 200_000,
		Currency:         "egp",
		DueDate:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	for _, row := range rows {
		require.EqualValues(t, 50_000, row.AmountCents)
		require.Equal(t, "EGP", row.Currency)
		require.Equal(t, models.PaymentStatusPending, row.Status)
	}
}

func TestCreatePeriodPaymentsRemainderCents(t *testing.T) {
	f := newFixture(t)
	creator := f.createUser(t, "creator@example.com")
	household := f.createHousehold(t, creator)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := f.createUser(t, "first@example.com")
	second := f.createUser(t, "second@example.com")
	third := f.createUser(t, "third@example.com")
	f.addResident(t, household.ID, first, base)
	f.addResident(t, household.ID, second, base.AddDate(0, 0, 1))
	f.addResident(t, household.ID, third, base.AddDate(0, 0, 2))

	payments := newPaymentService(t, f)
	rows, err := payments.CreatePeriodPayments(context.Background(), CreatePeriodPaymentsInput{
		HouseholdID:      household.ID,
		CreatorID:        creator.ID,
		TotalAmountCents: 10_001,
		Currency:         "EGP",
		DueDate:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// The odd cent lands on the earliest-joined resident; the rows always sum
	// to the exact period total.
	byUser := map[string]int64{}
	var sum int64
	for _, row := range rows {
		byUser[row.UserID] = row.AmountCents
		sum += row.AmountCents
	}
	require.EqualValues(t, 10_001, sum)
	require.EqualValues(t, 3334, byUser[first.ID])
	require.EqualValues(t, 3334, byUser[second.ID])
	require.EqualValues(t, 3333, byUser[third.ID])
}

func TestCreatePeriodPaymentsDuplicatePeriod(t *testing.T) {
	f := newFixture(t)
	creator := f.createUser(t, "creator@example.com")
	household := f.createHousehold(t, creator)
	f.addResident(t, household.ID, f.createUser(t, "a@example.com"), time.Now())

	payments := newPaymentService(t, f)
	input := CreatePeriodPaymentsInput{
		HouseholdID:      household.ID,
		CreatorID:        creator.ID,
		TotalAmountCents: 50_000,
		Currency:         "EGP",
		DueDate:          time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC),
	}

	_, err := payments.CreatePeriodPayments(context.Background(), input)
	require.NoError(t, err)

	// Same calendar month, different day: still the same billing period.
	input.DueDate = time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC)
	_, err = payments.CreatePeriodPayments(context.Background(), input)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	// The next month is a fresh period.
	input.DueDate = time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)
	_, err = payments.CreatePeriodPayments(context.Background(), input)
	require.NoError(t, err)
}

func TestCreatePeriodPaymentsPeriodUniqueIndex(t *testing.T) {
	f := newFixture(t)
	creator := f.createUser(t, "creator@example.com")
	resident := f.createUser(t, "resident@example.com")
	household := f.createHousehold(t, creator)
	f.addResident(t, household.ID, resident, time.Now())

	payments := newPaymentService(t, f)
	rows, err := payments.CreatePeriodPayments(context.Background(), CreatePeriodPaymentsInput{
		HouseholdID:      household.ID,
		CreatorID:        creator.ID,
		TotalAmountCents: 50_000,
		Currency:         "EGP",
		DueDate:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, "2026-04", rows[0].Period)

	// A concurrent generator that slipped past the count still cannot commit
	// a second batch: the storage layer itself rejects the duplicate period.
	dup := models.PaymentRequest{
		HouseholdID: household.ID,
		UserID:      resident.ID,
		AmountCents: 50_000,
		Currency:    "EGP",
		DueDate:     time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC),
		Period:      "2026-04",
		Status:      models.PaymentStatusPending,
	}
	err = f.db.Create(&dup).Error
	require.Error(t, err)
	require.True(t, isUniqueConstraintError(err))
}

func TestCreatePeriodPaymentsGuards(t *testing.T) {
	f := newFixture(t)
	creator := f.createUser(t, "creator@example.com")
	resident := f.createUser(t, "resident@example.com")
	household := f.createHousehold(t, creator)
	f.addResident(t, household.ID, resident, time.Now())

	payments := newPaymentService(t, f)
	input := CreatePeriodPaymentsInput{
		HouseholdID:      household.ID,
		CreatorID:        resident.ID,
		TotalAmountCents: 50_000,
		Currency:         "EGP",
		DueDate:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	_, err := payments.CreatePeriodPayments(context.Background(), input)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	input.CreatorID = creator.ID
	input.TotalAmountCents = 0
	_, err = payments.CreatePeriodPayments(context.Background(), input)
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestCreatePeriodPaymentsNoResidents(t *testing.T) {
	f := newFixture(t)
	creator := f.createUser(t, "creator@example.com")
	household := f.createHousehold(t, creator)

	payments := newPaymentService(t, f)
	_, err := payments.CreatePeriodPayments(context.Background(), CreatePeriodPaymentsInput{
		HouseholdID:      household.ID,
		CreatorID:        creator.ID,
		TotalAmountCents: 50_000,
		Currency:         "EGP",
		DueDate:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	creator := f.createUser(t, "creator@example.com")
	resident := f.createUser(t, "resident@example.com")
	household := f.createHousehold(t, creator)
	f.addResident(t, household.ID, resident, time.Now())

	payments := newPaymentService(t, f)
	rows, err := payments.CreatePeriodPayments(context.Background(), CreatePeriodPaymentsInput{
		HouseholdID:      household.ID,
		CreatorID:        creator.ID,
		TotalAmountCents: 50_000,
		Currency:         "EGP",
		DueDate:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	paid := rows[0]

	// A row that already settled must not be flipped.
	require.NoError(t, f.db.Model(&models.PaymentRequest{}).
		Where("id = ?", paid.ID).
		Update("status", models.PaymentStatusPaid).Error)

	later, err := payments.CreatePeriodPayments(context.Background(), CreatePeriodPaymentsInput{
		HouseholdID:      household.ID,
		CreatorID:        creator.ID,
		TotalAmountCents: 50_000,
		Currency:         "EGP",
		DueDate:          time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	flipped, err := payments.MarkOverdue(context.Background(), time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.EqualValues(t, 0, flipped)

	flipped, err = payments.MarkOverdue(context.Background(), time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.EqualValues(t, 1, flipped)

	var reloaded models.PaymentRequest
	require.NoError(t, f.db.Where("id = ?", paid.ID).First(&reloaded).Error)
	require.Equal(t, models.PaymentStatusPaid, reloaded.Status)
	reloaded = models.PaymentRequest{}
	require.NoError(t, f.db.Where("id = ?", later[0].ID).First(&reloaded).Error)
	require.Equal(t, models.PaymentStatusOverdue, reloaded.Status)
}

func TestListPayments(t *testing.T) {
	f := newFixture(t)
	creator := f.createUser(t, "creator@example.com")
	resident := f.createUser(t, "resident@example.com")
	outsider := f.createUser(t, "outsider@example.com")
	household := f.createHousehold(t, creator)
	f.addResident(t, household.ID, resident, time.Now())

	payments := newPaymentService(t, f)
	_, err := payments.CreatePeriodPayments(context.Background(), CreatePeriodPaymentsInput{
		HouseholdID:      household.ID,
		CreatorID:        creator.ID,
		TotalAmountCents: 50_000,
		Currency:         "EGP",
		DueDate:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	forHousehold, err := payments.ListForHousehold(context.Background(), household.ID, resident.ID)
	require.NoError(t, err)
	require.Len(t, forHousehold, 1)

	_, err = payments.ListForHousehold(context.Background(), household.ID, outsider.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	mine, err := payments.ListForUser(context.Background(), resident.ID, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	none, err := payments.ListForUser(context.Background(), resident.ID, models.PaymentStatusPaid)
	require.NoError(t, err)
	require.Empty(t, none)

	got, err := payments.Get(context.Background(), mine[0].ID, creator.ID)
	require.NoError(t, err)
	require.Equal(t, mine[0].ID, got.ID)

	_, err = payments.Get(context.Background(), mine[0].ID, outsider.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}
