package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
	"github.com/sessionforge/sessionforge/internal/store"
)

// fakeCreditStore backs only the balance/deduction calls
// CheckUserCreditBalance and ProcessStorageCreationBilling need.
type fakeCreditStore struct {
	store.Store
	credits  float64
	deducted float64
}

func (f *fakeCreditStore) GetUserCredits(ctx context.Context, userID string) (float64, error) {
	return f.credits, nil
}

func (f *fakeCreditStore) DeductCredits(ctx context.Context, userID string, amount float64, referenceID string) error {
	if f.credits < amount {
		return sferrors.InsufficientCredits("fakeCreditStore.DeductCredits", "balance too low")
	}
	f.credits -= amount
	f.deducted += amount
	return nil
}

func TestCalculateSessionCost_Scenario1(t *testing.T) {
	e := New(nil, DefaultPricing())
	// pro user, medium tier, 2 hours: 0.025 * 1.5 = 0.0375/h, * 2h = 0.0750
	cost := e.CalculateSessionCost(models.UserPro, models.TierMedium, 2.0)
	assert.InDelta(t, 0.0750, cost, 1e-4)
}

func TestCalculateSessionCost_ThirtySeconds(t *testing.T) {
	e := New(nil, DefaultPricing())
	// free user, small tier, 30 seconds: hourly rate 0.05, duration 30/3600 h
	durationHours := 30.0 / 3600.0
	cost := e.CalculateSessionCost(models.UserFree, models.TierSmall, durationHours)
	assert.InDelta(t, 0.000417, cost, 1e-4)
	assert.NotEqual(t, 0.0, cost, "a 30-second session must produce a nonzero cost")
}

func TestCalculateStorageCost(t *testing.T) {
	e := New(nil, DefaultPricing())
	// bucket storage, 100GB, 15 days: 0.02 * 100 * (15/30) = 1.0
	cost := e.CalculateStorageCost(models.StorageBucket, 100, 15)
	assert.InDelta(t, 1.0, cost, 1e-4)
}

func TestCheckUserCreditBalance_ReportsSufficiency(t *testing.T) {
	e := New(&fakeCreditStore{credits: 5}, DefaultPricing())

	ok, err := e.CheckUserCreditBalance(context.Background(), "user-1", 4)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.CheckUserCreditBalance(context.Background(), "user-1", 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessStorageCreationBilling_DeductsComputedCost(t *testing.T) {
	fs := &fakeCreditStore{credits: 10}
	e := New(fs, DefaultPricing())

	// bucket, 100GB, 15 days: 0.02 * 100 * (15/30) = 1.0
	cost, err := e.ProcessStorageCreationBilling(context.Background(), "user-1", "sess-1", models.StorageBucket, 100, 15)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cost, 1e-4)
	assert.InDelta(t, 9.0, fs.credits, 1e-4)
}

func TestProcessStorageCreationBilling_InsufficientCreditsLeavesBalanceUntouched(t *testing.T) {
	fs := &fakeCreditStore{credits: 0.5}
	e := New(fs, DefaultPricing())

	_, err := e.ProcessStorageCreationBilling(context.Background(), "user-1", "sess-1", models.StorageBucket, 100, 15)
	require.Error(t, err)
	assert.Equal(t, sferrors.InsufficientCreditsKind, sferrors.KindOf(err))
	assert.Equal(t, 0.5, fs.credits)
}

func TestPricingDefaults(t *testing.T) {
	p := DefaultPricing()
	assert.Equal(t, 0.05, p.HourlyRate(models.UserFree))
	assert.Equal(t, 0.025, p.HourlyRate(models.UserPro))
	assert.Equal(t, 0.01, p.HourlyRate(models.UserEnterprise))
	assert.Equal(t, 0.0, p.HourlyRate(models.UserAdmin))
	assert.Equal(t, 5.0, p.Multiplier(models.TierGPU))
}
