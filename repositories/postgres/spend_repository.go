package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
	"go.uber.org/zap"
)

// SpendRepository implements repositories.SpendRepository on the daily_spend table.
// Updates for one user are serialized by a transaction-scoped advisory lock,
// which also covers the first write when no row exists yet.
type SpendRepository struct {
	db     *DB
	tm     repositories.TransactionManager
	logger *zap.Logger
}

// NewSpendRepository creates a new spend repository
func NewSpendRepository(db *DB, tm repositories.TransactionManager, logger *zap.Logger) repositories.SpendRepository {
	return &SpendRepository{
		db:     db,
		tm:     tm,
		logger: logger,
	}
}

const (
	spendLockQuery   = `SELECT pg_advisory_xact_lock(hashtext($1))`
	spendSelectQuery = `SELECT spend_date, amount_spent FROM daily_spend WHERE user_id = $1`
	spendUpsertQuery = `
		INSERT INTO daily_spend (user_id, spend_date, amount_spent, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE
		SET spend_date = EXCLUDED.spend_date,
		    amount_spent = EXCLUDED.amount_spent,
		    updated_at = EXCLUDED.updated_at
	`
)

// Get returns the user's accumulator, or nil when none exists
func (r *SpendRepository) Get(ctx context.Context, userID string) (*models.DailySpendRecord, error) {
	return r.get(ctx, GetExecutor(ctx, r.db), userID)
}

// Update locks the user's accumulator, applies fn and stores the result in one transaction
func (r *SpendRepository) Update(ctx context.Context, userID string, fn repositories.SpendUpdateFunc) error {
	return r.tm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		if _, err := executor.ExecContext(ctx, spendLockQuery, userID); err != nil {
			return fmt.Errorf("failed to lock daily spend: %w", err)
		}

		current, err := r.get(ctx, executor, userID)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		if _, err := executor.ExecContext(ctx, spendUpsertQuery, userID, next.Date, next.AmountSpent); err != nil {
			return fmt.Errorf("failed to store daily spend: %w", err)
		}

		r.logger.Debug("daily spend updated",
			zap.String("user_id", userID),
			zap.String("date", next.Date),
			zap.String("amount_spent", next.AmountSpent.String()))
		return nil
	})
}

func (r *SpendRepository) get(ctx context.Context, executor Executor, userID string) (*models.DailySpendRecord, error) {
	record := &models.DailySpendRecord{}
	err := executor.QueryRowContext(ctx, spendSelectQuery, userID).Scan(&record.Date, &record.AmountSpent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get daily spend: %w", err)
	}
	return record, nil
}
