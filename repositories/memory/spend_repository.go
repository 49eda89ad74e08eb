package memory

import (
	"context"
	"sync"

	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
)

// spendSlot holds one user's accumulator behind its own lock
type spendSlot struct {
	mu     sync.Mutex
	record *models.DailySpendRecord
}

// SpendRepository is a process-local SpendRepository.
// The outer lock only guards the slot map and is held briefly; each
// user's read-modify-write runs under that user's slot lock.
type SpendRepository struct {
	mu    sync.RWMutex
	slots map[string]*spendSlot
}

// NewSpendRepository creates an empty in-memory spend store
func NewSpendRepository() *SpendRepository {
	return &SpendRepository{
		slots: make(map[string]*spendSlot),
	}
}

var _ repositories.SpendRepository = (*SpendRepository)(nil)

// Get returns a copy of the user's accumulator, or nil when none exists
func (r *SpendRepository) Get(ctx context.Context, userID string) (*models.DailySpendRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	slot, ok := r.slots[userID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	return copyRecord(slot.record), nil
}

// Update runs fn under the user's slot lock and stores its result
func (r *SpendRepository) Update(ctx context.Context, userID string, fn repositories.SpendUpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slot := r.slot(userID)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	next, err := fn(copyRecord(slot.record))
	if err != nil {
		return err
	}
	if next != nil {
		slot.record = copyRecord(next)
	}
	return nil
}

// slot returns the user's slot, creating it on first use
func (r *SpendRepository) slot(userID string) *spendSlot {
	r.mu.RLock()
	slot, ok := r.slots[userID]
	r.mu.RUnlock()
	if ok {
		return slot
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok = r.slots[userID]; ok {
		return slot
	}
	slot = &spendSlot{}
	r.slots[userID] = slot
	return slot
}

func copyRecord(record *models.DailySpendRecord) *models.DailySpendRecord {
	if record == nil {
		return nil
	}
	cp := *record
	return &cp
}
