package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
	"github.com/upb/paylynx-policy/services"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// MockSettingsRepository is a mock implementation of SettingsRepository
type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) GetByUserID(ctx context.Context, userID string) (*models.PolicySettingsRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PolicySettingsRecord), args.Error(1)
}

func (m *MockSettingsRepository) Upsert(ctx context.Context, userID string, record *models.PolicySettingsRecord) error {
	args := m.Called(ctx, userID, record)
	return args.Error(0)
}

func defaultsRecord() *models.PolicySettingsRecord {
	return models.NewPolicySettingsRecord(models.DefaultPolicySettings())
}

func customSettings() models.PolicySettings {
	s := models.DefaultPolicySettings()
	s.MaxSinglePayment = decimal.NewFromInt(50)
	s.MaxDailyLimit = decimal.NewFromInt(200)
	s.NightHourStart = 23
	return s
}

func TestNewProvider_RejectsInvalidDefaults(t *testing.T) {
	bad := defaultsRecord()
	bad.NightHourEnd = nil

	_, err := NewProvider(nil, bad, zaptest.NewLogger(t))
	assert.True(t, services.IsValidationError(err))

	_, err = NewProvider(nil, nil, zaptest.NewLogger(t))
	assert.True(t, services.IsValidationError(err))
}

func TestProvider_Resolve(t *testing.T) {
	ctx := context.Background()

	incomplete := models.NewPolicySettingsRecord(customSettings())
	incomplete.MaxDailyLimit = nil

	negative := customSettings()
	negative.MaxSinglePayment = decimal.NewFromInt(-5)

	badHour := customSettings()
	badHour.NightHourStart = 30

	tests := []struct {
		name   string
		record *models.PolicySettingsRecord
		err    error
		want   models.PolicySettings
	}{
		{"stored record", models.NewPolicySettingsRecord(customSettings()), nil, customSettings()},
		{"not found", nil, repositories.ErrNotFound, models.DefaultPolicySettings()},
		{"nil record without error", nil, nil, models.DefaultPolicySettings()},
		{"store failure", nil, errors.New("connection refused"), models.DefaultPolicySettings()},
		{"missing field", incomplete, nil, models.DefaultPolicySettings()},
		{"negative cap", models.NewPolicySettingsRecord(negative), nil, models.DefaultPolicySettings()},
		{"hour out of range", models.NewPolicySettingsRecord(badHour), nil, models.DefaultPolicySettings()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockSettingsRepository)
			repo.On("GetByUserID", ctx, "user-1").Return(tt.record, tt.err)

			p, err := NewProvider(repo, defaultsRecord(), zaptest.NewLogger(t))
			require.NoError(t, err)

			got := p.Resolve(ctx, "user-1")
			assert.Equal(t, tt.want, got)
			repo.AssertExpectations(t)
		})
	}
}

func TestProvider_Resolve_ReadsStoreEveryTime(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSettingsRepository)
	repo.On("GetByUserID", ctx, "user-1").Return(nil, repositories.ErrNotFound).Once()
	repo.On("GetByUserID", ctx, "user-1").Return(models.NewPolicySettingsRecord(customSettings()), nil).Once()

	p, err := NewProvider(repo, defaultsRecord(), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, models.DefaultPolicySettings(), p.Resolve(ctx, "user-1"))
	assert.Equal(t, customSettings(), p.Resolve(ctx, "user-1"))
	repo.AssertNumberOfCalls(t, "GetByUserID", 2)
}

func TestProvider_Resolve_LogsStoreFailure(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)

	repo := new(MockSettingsRepository)
	repo.On("GetByUserID", ctx, "user-1").Return(nil, errors.New("timeout"))

	p, err := NewProvider(repo, defaultsRecord(), zap.New(core))
	require.NoError(t, err)

	p.Resolve(ctx, "user-1")
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "settings store unavailable, using default policy", entry.Message)
	assert.Equal(t, "user-1", entry.ContextMap()["user_id"])
}

func TestProvider_Resolve_CustomDefaults(t *testing.T) {
	custom := models.NewPolicySettingsRecord(customSettings())
	p, err := NewProvider(nil, custom, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, customSettings(), p.Resolve(context.Background(), "anyone"))
	assert.Equal(t, customSettings(), p.Defaults())
}

func TestProvider_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("stores valid settings", func(t *testing.T) {
		record := models.NewPolicySettingsRecord(customSettings())
		repo := new(MockSettingsRepository)
		repo.On("Upsert", ctx, "user-1", record).Return(nil)

		p, err := NewProvider(repo, defaultsRecord(), zaptest.NewLogger(t))
		require.NoError(t, err)

		got, err := p.Update(ctx, "user-1", record)
		require.NoError(t, err)
		assert.Equal(t, customSettings(), got)
		repo.AssertExpectations(t)
	})

	t.Run("rejects invalid settings without writing", func(t *testing.T) {
		record := models.NewPolicySettingsRecord(customSettings())
		record.NightMaxPayment = nil
		repo := new(MockSettingsRepository)

		p, err := NewProvider(repo, defaultsRecord(), zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = p.Update(ctx, "user-1", record)
		require.Error(t, err)
		assert.True(t, services.IsValidationError(err))
		assert.Contains(t, services.GetErrorDetails(err), "night_max_payment")
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects a negative cap below float64 precision", func(t *testing.T) {
		record := models.NewPolicySettingsRecord(customSettings())
		tiny := decimal.RequireFromString("-1e-400")
		record.MaxSinglePayment = &tiny
		repo := new(MockSettingsRepository)

		p, err := NewProvider(repo, defaultsRecord(), zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = p.Update(ctx, "user-1", record)
		require.Error(t, err)
		assert.True(t, services.IsValidationError(err))
		assert.Contains(t, services.GetErrorDetails(err), "max_single_payment")
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("requires user id", func(t *testing.T) {
		p, err := NewProvider(new(MockSettingsRepository), defaultsRecord(), zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = p.Update(ctx, "", models.NewPolicySettingsRecord(customSettings()))
		assert.True(t, services.IsValidationError(err))
	})

	t.Run("store failure is internal", func(t *testing.T) {
		record := models.NewPolicySettingsRecord(customSettings())
		repo := new(MockSettingsRepository)
		repo.On("Upsert", ctx, "user-1", record).Return(errors.New("disk full"))

		p, err := NewProvider(repo, defaultsRecord(), zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = p.Update(ctx, "user-1", record)
		assert.True(t, services.IsInternalError(err))
	})

	t.Run("no store configured", func(t *testing.T) {
		p, err := NewProvider(nil, defaultsRecord(), zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = p.Update(ctx, "user-1", models.NewPolicySettingsRecord(customSettings()))
		assert.True(t, services.IsExternalError(err))
	})
}
