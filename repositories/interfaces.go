package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/upb/paylynx-policy/models"
)

// ErrNotFound is returned by stores when the requested record does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// SettingsRepository is the external store of per-user policy settings
type SettingsRepository interface {
	// GetByUserID returns the stored record, or ErrNotFound.
	// Records may be partial; callers validate them.
	GetByUserID(ctx context.Context, userID string) (*models.PolicySettingsRecord, error)

	// Upsert replaces the user's settings record
	Upsert(ctx context.Context, userID string, record *models.PolicySettingsRecord) error
}

// SpendUpdateFunc receives the user's current accumulator (nil when none
// exists) and returns the record to store. Returning a nil record leaves
// the store untouched. Returning an error aborts the update.
type SpendUpdateFunc func(current *models.DailySpendRecord) (*models.DailySpendRecord, error)

// SpendRepository holds the per-user daily spend accumulators
type SpendRepository interface {
	// Get returns the user's accumulator without modifying it, or nil when none exists
	Get(ctx context.Context, userID string) (*models.DailySpendRecord, error)

	// Update runs fn as one atomic read-modify-write for userID.
	// Concurrent updates for the same user are serialized; different users
	// do not block each other.
	Update(ctx context.Context, userID string, fn SpendUpdateFunc) error
}

// DecisionLogRepository persists the policy decision audit trail
type DecisionLogRepository interface {
	// Insert inserts a new decision log entry
	Insert(ctx context.Context, log *models.DecisionLog) error

	// GetByUserID retrieves decision logs for a user, newest first, with pagination
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.DecisionLog, error)

	// GetByDateRange retrieves decision logs within a time range
	GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.DecisionLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Settings  SettingsRepository
	Spend     SpendRepository
	Decisions DecisionLogRepository
}
