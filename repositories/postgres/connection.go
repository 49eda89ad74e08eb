package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/paylynx-policy/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return WrapDB(db, logger), nil
}

// WrapDB wraps an already opened pool
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// schema holds the policy tables. Spend dates are the engine's local
// calendar day as YYYY-MM-DD text, not a server-side DATE. Money columns
// are unscaled NUMERIC so stored totals keep every digit the engine adds;
// the ALTERs widen tables created with a scaled NUMERIC column.
const schema = `
	CREATE TABLE IF NOT EXISTS daily_spend (
		user_id VARCHAR(255) PRIMARY KEY,
		spend_date VARCHAR(10) NOT NULL,
		amount_spent NUMERIC NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_policy_settings (
		user_id VARCHAR(255) PRIMARY KEY,
		settings JSONB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS policy_decisions (
		id UUID PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		action VARCHAR(50) NOT NULL,
		amount NUMERIC NOT NULL DEFAULT 0,
		recipient TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		policy_name VARCHAR(100) NOT NULL DEFAULT '',
		blocked_by VARCHAR(50),
		reason TEXT NOT NULL DEFAULT '',
		daily_spent NUMERIC NOT NULL DEFAULT 0,
		request_id VARCHAR(255) NOT NULL DEFAULT '',
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	ALTER TABLE daily_spend ALTER COLUMN amount_spent TYPE NUMERIC;
	ALTER TABLE policy_decisions ALTER COLUMN amount TYPE NUMERIC;
	ALTER TABLE policy_decisions ALTER COLUMN daily_spent TYPE NUMERIC;

	CREATE INDEX IF NOT EXISTS idx_policy_decisions_user_id ON policy_decisions(user_id);
	CREATE INDEX IF NOT EXISTS idx_policy_decisions_action ON policy_decisions(action);
	CREATE INDEX IF NOT EXISTS idx_policy_decisions_timestamp ON policy_decisions(timestamp);
`

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
