package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/upb/paylynx-policy/models"
	"gopkg.in/yaml.v3"
)

// policyDefaultsFile is the on-disk shape of POLICY_DEFAULTS_FILE.
// Omitted keys keep the built-in default. Amounts are read as strings so
// that "99.99" is parsed exactly.
type policyDefaultsFile struct {
	Enabled          *bool   `yaml:"enabled"`
	MaxSinglePayment *string `yaml:"max_single_payment"`
	MaxDailyLimit    *string `yaml:"max_daily_limit"`
	NightTimeEnabled *bool   `yaml:"night_time_enabled"`
	NightMaxPayment  *string `yaml:"night_max_payment"`
	NightHourStart   *int    `yaml:"night_hour_start"`
	NightHourEnd     *int    `yaml:"night_hour_end"`
}

// LoadPolicyDefaults returns the global default settings record. With an
// empty path it is the built-in default; otherwise the YAML file at path is
// overlaid on top of it. The result is not validated here.
func LoadPolicyDefaults(path string) (*models.PolicySettingsRecord, error) {
	record := models.NewPolicySettingsRecord(models.DefaultPolicySettings())
	if path == "" {
		return record, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy defaults: %w", err)
	}

	var file policyDefaultsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy defaults: %w", err)
	}

	if file.Enabled != nil {
		record.Enabled = file.Enabled
	}
	if file.NightTimeEnabled != nil {
		record.NightTimeEnabled = file.NightTimeEnabled
	}
	if file.NightHourStart != nil {
		record.NightHourStart = file.NightHourStart
	}
	if file.NightHourEnd != nil {
		record.NightHourEnd = file.NightHourEnd
	}

	amounts := []struct {
		key   string
		value *string
		dst   **decimal.Decimal
	}{
		{"max_single_payment", file.MaxSinglePayment, &record.MaxSinglePayment},
		{"max_daily_limit", file.MaxDailyLimit, &record.MaxDailyLimit},
		{"night_max_payment", file.NightMaxPayment, &record.NightMaxPayment},
	}
	for _, a := range amounts {
		if a.value == nil {
			continue
		}
		d, err := decimal.NewFromString(*a.value)
		if err != nil {
			return nil, fmt.Errorf("parse policy defaults: %s: %w", a.key, err)
		}
		*a.dst = &d
	}

	return record, nil
}
