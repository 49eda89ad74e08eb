// Package settings resolves the effective TIP-403 policy settings for a user.
package settings

import (
	"context"
	"errors"

	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
	"github.com/upb/paylynx-policy/services"
	"github.com/upb/paylynx-policy/utils"
	"go.uber.org/zap"
)

// Provider returns a user's stored settings or the global default.
// It holds no cache: every call reads the store.
type Provider struct {
	repo     repositories.SettingsRepository
	defaults models.PolicySettings
	logger   *zap.Logger
}

// NewProvider creates a Provider. defaults must be a complete, valid record;
// it stays fixed for the lifetime of the provider.
func NewProvider(repo repositories.SettingsRepository, defaults *models.PolicySettingsRecord, logger *zap.Logger) (*Provider, error) {
	if err := ValidateRecord(defaults); err != nil {
		return nil, err
	}
	return &Provider{
		repo:     repo,
		defaults: defaults.Settings(),
		logger:   logger,
	}, nil
}

// Defaults returns the global default settings
func (p *Provider) Defaults() models.PolicySettings {
	return p.defaults
}

// Resolve returns the effective settings for userID. It never fails:
// a missing, unreadable or invalid record yields the global default.
func (p *Provider) Resolve(ctx context.Context, userID string) models.PolicySettings {
	if p.repo == nil {
		return p.defaults
	}

	record, err := p.repo.GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return p.defaults
	case err != nil:
		p.logger.Warn("settings store unavailable, using default policy",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return p.defaults
	case record == nil:
		return p.defaults
	}

	if err := ValidateRecord(record); err != nil {
		p.logger.Warn("stored policy settings are invalid, using default policy",
			zap.String("user_id", userID),
			zap.Any("fields", services.GetErrorDetails(err)),
		)
		return p.defaults
	}

	return record.Settings()
}

// Update validates record and stores it as userID's settings
func (p *Provider) Update(ctx context.Context, userID string, record *models.PolicySettingsRecord) (models.PolicySettings, error) {
	if err := utils.ValidateRequired(userID, "user_id"); err != nil {
		return models.PolicySettings{}, services.ErrMissingUserID
	}
	if err := ValidateRecord(record); err != nil {
		return models.PolicySettings{}, err
	}
	if p.repo == nil {
		return models.PolicySettings{}, services.ErrStoreUnavailable
	}

	if err := p.repo.Upsert(ctx, userID, record); err != nil {
		return models.PolicySettings{}, services.WrapInternal("failed to store policy settings", err)
	}

	p.logger.Info("policy settings updated", zap.String("user_id", userID))
	return record.Settings(), nil
}

// ValidateRecord checks that every field is present and in range.
// It returns a validation DomainError whose details name the bad fields.
func ValidateRecord(record *models.PolicySettingsRecord) error {
	if record == nil {
		return services.NewValidationError("policy settings are required", nil)
	}
	if err := utils.ValidateStruct(record); err != nil {
		return services.NewValidationError(services.ErrInvalidSettings.Message, utils.GetValidationFields(err))
	}
	return nil
}
