package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
	"go.uber.org/zap"
)

// SettingsRepository stores each user's policy settings as a JSONB document
type SettingsRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB, logger *zap.Logger) repositories.SettingsRepository {
	return &SettingsRepository{
		db:     db,
		logger: logger,
	}
}

// GetByUserID returns the stored record as written. Missing keys decode to
// nil fields and are left for the caller to reject.
func (r *SettingsRepository) GetByUserID(ctx context.Context, userID string) (*models.PolicySettingsRecord, error) {
	query := `SELECT settings FROM user_policy_settings WHERE user_id = $1`

	var raw []byte
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, query, userID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get policy settings: %w", err)
	}

	record := &models.PolicySettingsRecord{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, fmt.Errorf("failed to decode policy settings: %w", err)
	}
	return record, nil
}

// Upsert replaces the user's settings document
func (r *SettingsRepository) Upsert(ctx context.Context, userID string, record *models.PolicySettingsRecord) error {
	query := `
		INSERT INTO user_policy_settings (user_id, settings, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE
		SET settings = EXCLUDED.settings, updated_at = EXCLUDED.updated_at
	`

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode policy settings: %w", err)
	}

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, userID, raw); err != nil {
		return fmt.Errorf("failed to upsert policy settings: %w", err)
	}

	r.logger.Debug("policy settings stored", zap.String("user_id", userID))
	return nil
}
