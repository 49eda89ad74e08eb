package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
)

func TestSettingsRepository_NotFound(t *testing.T) {
	repo := NewSettingsRepository()

	record, err := repo.GetByUserID(context.Background(), "user-1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.Nil(t, record)
}

func TestSettingsRepository_UpsertAndGet(t *testing.T) {
	repo := NewSettingsRepository()
	ctx := context.Background()

	settings := models.DefaultPolicySettings()
	settings.MaxSinglePayment = decimal.NewFromInt(50)
	require.NoError(t, repo.Upsert(ctx, "user-1", models.NewPolicySettingsRecord(settings)))

	record, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, settings, record.Settings())
}

func TestSettingsRepository_ReturnsDetachedCopies(t *testing.T) {
	repo := NewSettingsRepository()
	ctx := context.Background()

	record := models.NewPolicySettingsRecord(models.DefaultPolicySettings())
	require.NoError(t, repo.Upsert(ctx, "user-1", record))

	disabled := false
	*record.Enabled = disabled

	got, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, *got.Enabled)

	*got.NightHourStart = 3
	again, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 22, *again.NightHourStart)
}

func TestSettingsRepository_PartialRecord(t *testing.T) {
	repo := NewSettingsRepository()
	ctx := context.Background()

	enabled := true
	require.NoError(t, repo.Upsert(ctx, "user-1", &models.PolicySettingsRecord{Enabled: &enabled}))

	got, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, got.Enabled)
	assert.Nil(t, got.MaxDailyLimit)
}
