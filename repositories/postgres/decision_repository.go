package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
	"go.uber.org/zap"
)

// DecisionRepository implements repositories.DecisionLogRepository
type DecisionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision log repository
func NewDecisionRepository(db *DB, logger *zap.Logger) repositories.DecisionLogRepository {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

const decisionColumns = `id, user_id, action, amount, recipient, context, policy_name,
		       blocked_by, reason, daily_spent, request_id, timestamp`

// Insert inserts a new decision log entry
func (r *DecisionRepository) Insert(ctx context.Context, log *models.DecisionLog) error {
	query := `
		INSERT INTO policy_decisions (` + decisionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.Amount,
		log.Recipient,
		log.Context,
		log.PolicyName,
		log.BlockedBy,
		log.Reason,
		log.DailySpent,
		log.RequestID,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision log: %w", err)
	}

	r.logger.Debug("decision log inserted",
		zap.String("id", log.ID.String()),
		zap.String("action", string(log.Action)))
	return nil
}

// GetByUserID retrieves decision logs for a user, newest first
func (r *DecisionRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.DecisionLog, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM policy_decisions
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryDecisionLogs(ctx, query, userID, limit, offset)
}

// GetByDateRange retrieves decision logs with start <= timestamp < end, newest first
func (r *DecisionRepository) GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.DecisionLog, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM policy_decisions
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp DESC
		LIMIT $3 OFFSET $4
	`
	return r.queryDecisionLogs(ctx, query, start, end, limit, offset)
}

func (r *DecisionRepository) queryDecisionLogs(ctx context.Context, query string, args ...interface{}) ([]*models.DecisionLog, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.DecisionLog
	for rows.Next() {
		log := &models.DecisionLog{}
		var blockedBy sql.NullString
		if err := rows.Scan(
			&log.ID,
			&log.UserID,
			&log.Action,
			&log.Amount,
			&log.Recipient,
			&log.Context,
			&log.PolicyName,
			&blockedBy,
			&log.Reason,
			&log.DailySpent,
			&log.RequestID,
			&log.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decision log: %w", err)
		}
		if blockedBy.Valid {
			log.BlockedBy = &blockedBy.String
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision logs: %w", err)
	}

	return logs, nil
}
