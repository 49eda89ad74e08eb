package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
)

// DecisionLogRepository is an append-only in-memory decision log
type DecisionLogRepository struct {
	mu   sync.RWMutex
	logs []*models.DecisionLog
}

// NewDecisionLogRepository creates an empty in-memory decision log
func NewDecisionLogRepository() *DecisionLogRepository {
	return &DecisionLogRepository{}
}

var _ repositories.DecisionLogRepository = (*DecisionLogRepository)(nil)

// Insert appends a copy of log
func (r *DecisionLogRepository) Insert(ctx context.Context, log *models.DecisionLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cp := *log
	r.mu.Lock()
	r.logs = append(r.logs, &cp)
	r.mu.Unlock()
	return nil
}

// GetByUserID returns the user's logs, newest first
func (r *DecisionLogRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.DecisionLog, error) {
	return r.query(ctx, func(l *models.DecisionLog) bool {
		return l.UserID == userID
	}, limit, offset)
}

// GetByDateRange returns logs with start <= timestamp < end, newest first
func (r *DecisionLogRepository) GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.DecisionLog, error) {
	return r.query(ctx, func(l *models.DecisionLog) bool {
		return !l.Timestamp.Before(start) && l.Timestamp.Before(end)
	}, limit, offset)
}

func (r *DecisionLogRepository) query(ctx context.Context, match func(*models.DecisionLog) bool, limit, offset int) ([]*models.DecisionLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	matched := make([]*models.DecisionLog, 0)
	for _, l := range r.logs {
		if match(l) {
			cp := *l
			matched = append(matched, &cp)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if offset >= len(matched) {
		return []*models.DecisionLog{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}
