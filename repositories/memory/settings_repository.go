package memory

import (
	"context"
	"sync"

	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
)

// SettingsRepository keeps per-user policy settings in process memory.
// Intended for development and tests.
type SettingsRepository struct {
	mu      sync.RWMutex
	records map[string]*models.PolicySettingsRecord
}

// NewSettingsRepository creates an empty in-memory settings store
func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{
		records: make(map[string]*models.PolicySettingsRecord),
	}
}

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)

// GetByUserID returns a copy of the stored record or repositories.ErrNotFound
func (r *SettingsRepository) GetByUserID(ctx context.Context, userID string) (*models.PolicySettingsRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return copySettings(record), nil
}

// Upsert stores a copy of record for userID
func (r *SettingsRepository) Upsert(ctx context.Context, userID string, record *models.PolicySettingsRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[userID] = copySettings(record)
	return nil
}

// copySettings detaches every pointer field from the caller's record
func copySettings(record *models.PolicySettingsRecord) *models.PolicySettingsRecord {
	if record == nil {
		return nil
	}
	cp := &models.PolicySettingsRecord{}
	if record.Enabled != nil {
		v := *record.Enabled
		cp.Enabled = &v
	}
	if record.MaxSinglePayment != nil {
		v := *record.MaxSinglePayment
		cp.MaxSinglePayment = &v
	}
	if record.MaxDailyLimit != nil {
		v := *record.MaxDailyLimit
		cp.MaxDailyLimit = &v
	}
	if record.NightTimeEnabled != nil {
		v := *record.NightTimeEnabled
		cp.NightTimeEnabled = &v
	}
	if record.NightMaxPayment != nil {
		v := *record.NightMaxPayment
		cp.NightMaxPayment = &v
	}
	if record.NightHourStart != nil {
		v := *record.NightHourStart
		cp.NightHourStart = &v
	}
	if record.NightHourEnd != nil {
		v := *record.NightHourEnd
		cp.NightHourEnd = &v
	}
	return cp
}
