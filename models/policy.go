package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PolicyFramework is the compliance standard the engine enforces client-side
const PolicyFramework = "TIP-403"

// RegistryAddress is the TIP-403 policy registry on Tempo
const RegistryAddress = "0x403c000000000000000000000000000000000000"

// Policy names reported in verdicts
const (
	PolicyNameCompliant  = "TIP-403 Compliant"
	PolicyNameDisabled   = "TIP-403 Disabled"
	PolicyNameSinglePay  = "TIP-403 Single Payment Limit"
	PolicyNameDailyLimit = "TIP-403 Daily Spending Limit"
	PolicyNameTimeBased  = "TIP-403 Time-Based Restriction"
)

// BlockedBy identifies the rule that denied a payment
type BlockedBy string

const (
	BlockedByMaxSinglePayment BlockedBy = "max_single_payment"
	BlockedByMaxDailyLimit    BlockedBy = "max_daily_limit"
	BlockedByNightTimeLimit   BlockedBy = "night_time_limit"
)

// PolicySettings is the effective policy configuration for a single user.
// All fields are mandatory; defaults are applied by the settings provider,
// never inside rule logic.
type PolicySettings struct {
	Enabled          bool            `json:"enabled"`
	MaxSinglePayment decimal.Decimal `json:"max_single_payment"`
	MaxDailyLimit    decimal.Decimal `json:"max_daily_limit"`
	NightTimeEnabled bool            `json:"night_time_enabled"`
	NightMaxPayment  decimal.Decimal `json:"night_max_payment"`
	NightHourStart   int             `json:"night_hour_start"`
	NightHourEnd     int             `json:"night_hour_end"`
}

// DefaultPolicySettings returns the global default applied when a user has no
// valid settings of their own
func DefaultPolicySettings() PolicySettings {
	return PolicySettings{
		Enabled:          true,
		MaxSinglePayment: decimal.NewFromInt(1000),
		MaxDailyLimit:    decimal.NewFromInt(5000),
		NightTimeEnabled: true,
		NightMaxPayment:  decimal.NewFromInt(100),
		NightHourStart:   22,
		NightHourEnd:     6,
	}
}

// IsNightHour reports whether the night cap applies at the given hour.
// The window wraps past midnight: it is active when hour >= start OR hour < end.
func (s PolicySettings) IsNightHour(hour int) bool {
	return s.NightTimeEnabled && (hour >= s.NightHourStart || hour < s.NightHourEnd)
}

// NightHours renders the night window for status reports, e.g. "22:00 - 6:00"
func (s PolicySettings) NightHours() string {
	return fmt.Sprintf("%d:00 - %d:00", s.NightHourStart, s.NightHourEnd)
}

// PolicySettingsRecord is a settings record as persisted by a settings store.
// Every field is nullable so that incomplete records can be detected and
// rejected at the boundary.
type PolicySettingsRecord struct {
	Enabled          *bool            `json:"enabled" validate:"required"`
	MaxSinglePayment *decimal.Decimal `json:"max_single_payment" validate:"required,decimal_gte0"`
	MaxDailyLimit    *decimal.Decimal `json:"max_daily_limit" validate:"required,decimal_gte0"`
	NightTimeEnabled *bool            `json:"night_time_enabled" validate:"required"`
	NightMaxPayment  *decimal.Decimal `json:"night_max_payment" validate:"required,decimal_gte0"`
	NightHourStart   *int             `json:"night_hour_start" validate:"required,min=0,max=23"`
	NightHourEnd     *int             `json:"night_hour_end" validate:"required,min=0,max=23"`
}

// Settings converts a validated record into PolicySettings.
// Callers must validate the record first; nil fields panic.
func (r *PolicySettingsRecord) Settings() PolicySettings {
	return PolicySettings{
		Enabled:          *r.Enabled,
		MaxSinglePayment: *r.MaxSinglePayment,
		MaxDailyLimit:    *r.MaxDailyLimit,
		NightTimeEnabled: *r.NightTimeEnabled,
		NightMaxPayment:  *r.NightMaxPayment,
		NightHourStart:   *r.NightHourStart,
		NightHourEnd:     *r.NightHourEnd,
	}
}

// NewPolicySettingsRecord builds a fully populated record from settings
func NewPolicySettingsRecord(s PolicySettings) *PolicySettingsRecord {
	return &PolicySettingsRecord{
		Enabled:          &s.Enabled,
		MaxSinglePayment: &s.MaxSinglePayment,
		MaxDailyLimit:    &s.MaxDailyLimit,
		NightTimeEnabled: &s.NightTimeEnabled,
		NightMaxPayment:  &s.NightMaxPayment,
		NightHourStart:   &s.NightHourStart,
		NightHourEnd:     &s.NightHourEnd,
	}
}

// DailySpendRecord is the rolling, date-scoped total of approved spend for one user
type DailySpendRecord struct {
	Date        string          `json:"date" db:"spend_date"` // YYYY-MM-DD, local to the engine clock
	AmountSpent decimal.Decimal `json:"amount_spent" db:"amount_spent"`
}

// SpendDate returns the accumulator date key for t
func SpendDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// SpentOn returns the amount spent on date, treating a missing or stale record as zero
func (r *DailySpendRecord) SpentOn(date string) decimal.Decimal {
	if r == nil || r.Date != date {
		return decimal.Zero
	}
	return r.AmountSpent
}

// PolicyVerdict is the outcome of evaluating a payment against a user's policy
type PolicyVerdict struct {
	Allowed        bool            `json:"allowed"`
	Reason         string          `json:"reason"`
	PolicyName     string          `json:"policy"`
	BlockedBy      *BlockedBy      `json:"blocked_by,omitempty"`
	DailySpent     decimal.Decimal `json:"daily_spent"`
	DailyRemaining decimal.Decimal `json:"daily_remaining"`
	Time           string          `json:"time,omitempty"`
}

// BlockedByString returns the blocking rule or an empty string when allowed
func (v *PolicyVerdict) BlockedByString() string {
	if v.BlockedBy == nil {
		return ""
	}
	return string(*v.BlockedBy)
}

// PolicyLimits are the configured caps reported by a status query
type PolicyLimits struct {
	MaxSinglePayment decimal.Decimal `json:"max_single_payment"`
	MaxDailyLimit    decimal.Decimal `json:"max_daily_limit"`
	NightMaxPayment  decimal.Decimal `json:"night_max_payment"`
	NightHours       string          `json:"night_hours"`
}

// UserStatus is the live usage reported by a status query
type UserStatus struct {
	DailySpent        decimal.Decimal `json:"daily_spent"`
	DailyRemaining    decimal.Decimal `json:"daily_remaining"`
	IsNightTime       bool            `json:"is_night_time"`
	CurrentMaxPayment decimal.Decimal `json:"current_max_payment"`
}

// StatusReport combines a user's limits and current usage
type StatusReport struct {
	PolicyFramework string       `json:"policy_framework"`
	RegistryAddress string       `json:"registry_address"`
	Enabled         bool         `json:"enabled"`
	Limits          PolicyLimits `json:"limits"`
	UserStatus      UserStatus   `json:"user_status"`
}

// FrameworkInfo describes the TIP-403 framework; it carries no state
type FrameworkInfo struct {
	Framework       string   `json:"framework"`
	Description     string   `json:"description"`
	RegistryAddress string   `json:"registry_address"`
	Features        []string `json:"features"`
	Implementation  string   `json:"implementation"`
	Documentation   string   `json:"documentation"`
	Enabled         bool     `json:"enabled"`
}
