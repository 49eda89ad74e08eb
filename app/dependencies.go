package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/paylynx-policy/auth"
	"github.com/upb/paylynx-policy/config"
	"github.com/upb/paylynx-policy/middleware"
	"github.com/upb/paylynx-policy/repositories"
	"github.com/upb/paylynx-policy/repositories/memory"
	"github.com/upb/paylynx-policy/repositories/postgres"
	"github.com/upb/paylynx-policy/services/audit"
	"github.com/upb/paylynx-policy/services/policy"
	"github.com/upb/paylynx-policy/services/settings"
	"go.uber.org/zap"
)

// defaultStopTimeout bounds the audit drain when ctx carries no deadline
const defaultStopTimeout = 5 * time.Second

// Dependencies is the central wiring point for the gateway
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when every store is in memory
	Logger *zap.Logger

	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Settings  repositories.SettingsRepository
	Spend     repositories.SpendRepository
	Decisions repositories.DecisionLogRepository // nil when the audit trail is disabled
	TxManager repositories.TransactionManager

	// Services
	SettingsProvider *settings.Provider
	Engine           *policy.Engine
	Audit            *audit.AuditService // nil when the audit trail is disabled

	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.UsesDatabase() {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	deps.initRepositories(cfg)

	if err := deps.initServices(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("spend_store", cfg.Policy.SpendStore),
		zap.String("settings_store", cfg.Policy.SettingsStore),
		zap.Bool("audit_enabled", deps.Audit != nil))
	return deps, nil
}

func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.TxManager = factory.GetTransactionManager()

	if cfg.Database.InitSchema {
		if err := d.DB.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return err
		}
	}
	return nil
}

// initRepositories picks the backend of each store independently
func (d *Dependencies) initRepositories(cfg *config.Config) {
	var pg *repositories.Repositories
	if d.RepoFactory != nil {
		pg = d.RepoFactory.NewRepositories()
	}

	if cfg.Policy.SpendStore == config.StorePostgres {
		d.Spend = pg.Spend
	} else {
		d.Spend = memory.NewSpendRepository()
	}

	if cfg.Policy.SettingsStore == config.StorePostgres {
		d.Settings = pg.Settings
	} else {
		d.Settings = memory.NewSettingsRepository()
	}

	if cfg.Audit.Enabled {
		if cfg.Audit.Store == config.StorePostgres {
			d.Decisions = pg.Decisions
		} else {
			d.Decisions = memory.NewDecisionLogRepository()
		}
	}

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	defaults, err := config.LoadPolicyDefaults(cfg.Policy.DefaultsFile)
	if err != nil {
		return err
	}

	provider, err := settings.NewProvider(d.Settings, defaults, d.Logger)
	if err != nil {
		return err
	}
	d.SettingsProvider = provider

	loc, err := cfg.Policy.Location()
	if err != nil {
		return err
	}

	opts := []policy.Option{policy.WithLocation(loc)}

	if d.Decisions != nil {
		d.Audit = audit.NewAuditService(d.Decisions, d.Logger, audit.Config{
			BufferSize:  cfg.Audit.BufferSize,
			WorkerCount: cfg.Audit.WorkerCount,
		})
		if err := d.Audit.Start(); err != nil {
			return err
		}
		opts = append(opts, policy.WithRecorder(d.Audit))
	}

	d.Engine = policy.NewEngine(provider, d.Spend, d.Logger, opts...)
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	validator, err := auth.NewJWTValidator(auth.Config{
		Secret:          cfg.Auth.JWTSecret,
		Issuer:          cfg.Auth.JWTIssuer,
		AllowUnverified: cfg.Auth.AllowUnverified,
	})
	if err != nil {
		return err
	}
	if validator.Unverified() {
		d.Logger.Warn("bearer token signatures are not verified; do not expose this instance")
	}

	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	return nil
}

// Close drains the audit queue and releases the database
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Audit != nil && d.Audit.GetStats().Started {
		timeout := defaultStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
