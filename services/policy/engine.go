// Package policy evaluates payments against the TIP-403 spending rules and
// owns the per-user daily spend accumulators.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
	"github.com/upb/paylynx-policy/services"
	"go.uber.org/zap"
)

const (
	reasonDisabled = "TIP-403 policy is disabled for this user"
	reasonApproved = "Payment approved - all TIP-403 policy checks passed"
)

// SettingsResolver yields the effective settings for a user and never fails
type SettingsResolver interface {
	Resolve(ctx context.Context, userID string) models.PolicySettings
}

// DecisionRecorder receives every verdict the engine produces.
// Implementations must not block.
type DecisionRecorder interface {
	Record(log *models.DecisionLog)
}

// PaymentRequest is a payment to be checked before the transfer is built
type PaymentRequest struct {
	UserID    string
	Amount    decimal.Decimal
	Recipient string
	Context   string
	RequestID string
}

// Engine runs the rule pipeline and commits approved spend
type Engine struct {
	settings SettingsResolver
	spend    repositories.SpendRepository
	recorder DecisionRecorder
	now      func() time.Time
	location *time.Location
	logger   *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the timezone of the local clock used for dates and night hours
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.location = loc }
}

// WithRecorder attaches a decision audit recorder
func WithRecorder(r DecisionRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates a new Engine instance
func NewEngine(settings SettingsResolver, spend repositories.SpendRepository, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		settings: settings,
		spend:    spend,
		now:      time.Now,
		location: time.Local,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks a payment against the user's policy. Denials are verdicts,
// not errors; an error means the input was invalid or the spend store failed.
func (e *Engine) Evaluate(ctx context.Context, req PaymentRequest) (*models.PolicyVerdict, error) {
	if err := validatePayment(req); err != nil {
		return nil, err
	}

	// Resolved once, outside the per-user critical section, and used for the whole decision
	settings := e.settings.Resolve(ctx, req.UserID)

	verdict, err := e.evaluate(ctx, req, settings)
	if err != nil {
		e.logger.Error("policy evaluation failed",
			zap.String("user_id", req.UserID),
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
		return nil, err
	}

	if verdict.Allowed {
		e.logger.Debug("payment approved",
			zap.String("user_id", req.UserID),
			zap.String("request_id", req.RequestID),
			zap.String("policy", verdict.PolicyName),
			zap.String("daily_spent", verdict.DailySpent.String()),
		)
	} else {
		e.logger.Info("payment blocked",
			zap.String("user_id", req.UserID),
			zap.String("request_id", req.RequestID),
			zap.String("blocked_by", verdict.BlockedByString()),
			zap.String("amount", req.Amount.String()),
		)
	}

	if e.recorder != nil {
		e.recorder.Record(models.NewDecisionLogFromVerdict(req.UserID, req.Amount, verdict).
			WithPayment(req.Recipient, req.Context).
			WithRequest(req.RequestID))
	}

	return verdict, nil
}

func (e *Engine) evaluate(ctx context.Context, req PaymentRequest, settings models.PolicySettings) (*models.PolicyVerdict, error) {
	amount := req.Amount

	if !settings.Enabled {
		return &models.PolicyVerdict{
			Allowed:        true,
			Reason:         reasonDisabled,
			PolicyName:     models.PolicyNameDisabled,
			DailySpent:     decimal.Zero,
			DailyRemaining: decimal.Zero,
		}, nil
	}

	if amount.GreaterThan(settings.MaxSinglePayment) {
		return denial(models.BlockedByMaxSinglePayment, models.PolicyNameSinglePay,
			fmt.Sprintf("Amount $%s exceeds single payment limit of $%s",
				money(amount), money(settings.MaxSinglePayment)),
			decimal.Zero, decimal.Zero), nil
	}

	var verdict *models.PolicyVerdict
	err := e.spend.Update(ctx, req.UserID, func(current *models.DailySpendRecord) (*models.DailySpendRecord, error) {
		now := e.clock()
		today := models.SpendDate(now)
		spent := current.SpentOn(today)
		remaining := settings.MaxDailyLimit.Sub(spent)

		// The daily cap only compares against an accumulator dated today
		if current != nil && current.Date == today && spent.Add(amount).GreaterThan(settings.MaxDailyLimit) {
			verdict = denial(models.BlockedByMaxDailyLimit, models.PolicyNameDailyLimit,
				fmt.Sprintf("Daily limit exceeded. Spent: $%s, This payment: $%s, Limit: $%s",
					money(spent), money(amount), money(settings.MaxDailyLimit)),
				spent, remaining)
			return nil, nil
		}

		hour := now.Hour()
		if settings.IsNightHour(hour) && amount.GreaterThan(settings.NightMaxPayment) {
			verdict = denial(models.BlockedByNightTimeLimit, models.PolicyNameTimeBased,
				fmt.Sprintf("Night time payments limited to $%s. Current amount: $%s (time: %d:00)",
					money(settings.NightMaxPayment), money(amount), hour),
				spent, remaining)
			verdict.Time = fmt.Sprintf("%02d:00", hour)
			return nil, nil
		}

		total := spent.Add(amount)
		verdict = &models.PolicyVerdict{
			Allowed:        true,
			Reason:         reasonApproved,
			PolicyName:     models.PolicyNameCompliant,
			DailySpent:     total,
			DailyRemaining: settings.MaxDailyLimit.Sub(total),
		}
		return &models.DailySpendRecord{Date: today, AmountSpent: total}, nil
	})
	if err != nil {
		return nil, services.WrapInternal("failed to update daily spend", err)
	}
	return verdict, nil
}

// GetStatus reports the user's limits and live usage. A stale accumulator
// is reported as zero spend; the store is never written.
func (e *Engine) GetStatus(ctx context.Context, userID string) (*models.StatusReport, error) {
	if userID == "" {
		return nil, services.ErrMissingUserID
	}

	settings := e.settings.Resolve(ctx, userID)

	record, err := e.spend.Get(ctx, userID)
	if err != nil {
		return nil, services.WrapInternal("failed to read daily spend", err)
	}

	now := e.clock()
	spent := record.SpentOn(models.SpendDate(now))
	isNight := settings.IsNightHour(now.Hour())

	currentMax := settings.MaxSinglePayment
	if isNight {
		currentMax = settings.NightMaxPayment
	}

	return &models.StatusReport{
		PolicyFramework: models.PolicyFramework,
		RegistryAddress: models.RegistryAddress,
		Enabled:         settings.Enabled,
		Limits: models.PolicyLimits{
			MaxSinglePayment: settings.MaxSinglePayment,
			MaxDailyLimit:    settings.MaxDailyLimit,
			NightMaxPayment:  settings.NightMaxPayment,
			NightHours:       settings.NightHours(),
		},
		UserStatus: models.UserStatus{
			DailySpent:        spent,
			DailyRemaining:    settings.MaxDailyLimit.Sub(spent),
			IsNightTime:       isNight,
			CurrentMaxPayment: currentMax,
		},
	}, nil
}

// FrameworkInfo describes the TIP-403 framework this engine enforces
func FrameworkInfo() models.FrameworkInfo {
	return models.FrameworkInfo{
		Framework:       models.PolicyFramework,
		Description:     "Tempo's policy registry for compliance and access control",
		RegistryAddress: models.RegistryAddress,
		Features: []string{
			"Programmable compliance rules",
			"Token governance hooks",
			"Access control policies",
			"Rate limiting",
			"Time-based restrictions",
		},
		Implementation: "Client-side policy enforcement with TIP-403 awareness",
		Documentation:  "https://docs.tempo.io/tip-403",
		Enabled:        true,
	}
}

func (e *Engine) clock() time.Time {
	return e.now().In(e.location)
}

func validatePayment(req PaymentRequest) error {
	fields := make(map[string]string)
	if req.UserID == "" {
		fields["user_id"] = "user_id is required"
	}
	if req.Amount.IsNegative() {
		fields["amount"] = services.ErrInvalidAmount.Message
	}

	switch {
	case len(fields) == 0:
		return nil
	case len(fields) == 1 && fields["amount"] != "":
		return services.NewValidationError(services.ErrInvalidAmount.Message, fields)
	default:
		return services.NewValidationError(services.ErrInvalidInput.Message, fields)
	}
}

func denial(blockedBy models.BlockedBy, policyName, reason string, spent, remaining decimal.Decimal) *models.PolicyVerdict {
	return &models.PolicyVerdict{
		Allowed:        false,
		Reason:         reason,
		PolicyName:     policyName,
		BlockedBy:      &blockedBy,
		DailySpent:     spent,
		DailyRemaining: remaining,
	}
}

// money formats an amount with two decimals, as in "$1000.00"
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
