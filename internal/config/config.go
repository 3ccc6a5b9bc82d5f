package config

import (
	"time"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/log"
	jsonreport "github.com/noqdev/iambic-sub001/internal/reporting/json"
	"github.com/noqdev/iambic-sub001/internal/reporting/text"
)

type Config struct {
	Settings     SettingsConfig     `yaml:"settings" mapstructure:"settings"`
	Organization OrganizationConfig `yaml:"organization" mapstructure:"organization" validate:"required"`
	Templates    TemplatesConfig    `yaml:"templates" mapstructure:"templates" validate:"required"`
	Approval     ApprovalConfig     `yaml:"approval" mapstructure:"approval"`
	Apply        ApplyConfig        `yaml:"apply" mapstructure:"apply"`
	Providers    ProvidersConfig    `yaml:"providers" mapstructure:"providers"`
}

type SettingsConfig struct {
	LogLevel     log.Level       `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat    log.Format      `yaml:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=text json"`
	ReporterType string          `yaml:"reporter" mapstructure:"reporter" validate:"omitempty,oneof=text json"`
	Reporter     ReporterConfigs `yaml:"reporter_config" mapstructure:"reporter_config"`
}

// OrganizationConfig points at the organization document. Accounts and
// account rules are data, not settings; they live in their own YAML file
// so the webhook layer can reload them without touching process config.
type OrganizationConfig struct {
	File string `yaml:"file" mapstructure:"file" validate:"required"`
}

type TemplatesConfig struct {
	// Root is the directory the template repository walks.
	Root string `yaml:"root" mapstructure:"root" validate:"required"`
}

type ApprovalConfig struct {
	Approvers []domain.BotApprover `yaml:"approvers" mapstructure:"approvers" validate:"dive"`
	// FreshnessWindow bounds how far a signed approval timestamp may drift
	// from the verifier's clock.
	FreshnessWindow time.Duration `yaml:"freshness_window" mapstructure:"freshness_window"`
}

// PartialFailurePolicy decides what the automation layer does with a change
// request whose apply run ended in PartialFailure.
type PartialFailurePolicy string

const (
	PartialFailureHold             PartialFailurePolicy = "hold"
	PartialFailureMergeWithComment PartialFailurePolicy = "merge_with_comment"
)

type ApplyConfig struct {
	Concurrency      int                  `yaml:"concurrency" mapstructure:"concurrency" validate:"omitempty,gte=1,lte=64"`
	MaxAttempts      int                  `yaml:"max_attempts" mapstructure:"max_attempts" validate:"omitempty,gte=1,lte=10"`
	ProviderRPS      map[string]int       `yaml:"provider_rps" mapstructure:"provider_rps" validate:"omitempty,dive,gte=1,lte=100"`
	OnPartialFailure PartialFailurePolicy `yaml:"on_partial_failure" mapstructure:"on_partial_failure" validate:"omitempty,oneof=hold merge_with_comment"`
}

type ProvidersConfig struct {
	AWS *AWSProviderConfig `yaml:"aws,omitempty" mapstructure:"aws"`
}

type AWSProviderConfig struct {
	Region  string `yaml:"region,omitempty" mapstructure:"region"`
	Profile string `yaml:"profile,omitempty" mapstructure:"profile"`
}

type ReporterConfigs struct {
	Text *text.Config       `yaml:"text,omitempty" mapstructure:"text"`
	JSON *jsonreport.Config `yaml:"json,omitempty" mapstructure:"json"`
}

func DefaultConfig() *Config {
	return &Config{
		Settings: SettingsConfig{
			LogLevel:     log.LevelInfo,
			LogFormat:    log.FormatText,
			ReporterType: text.ReporterTypeText,
			Reporter: ReporterConfigs{
				Text: &text.Config{NoColor: false},
			},
		},
		Templates: TemplatesConfig{Root: "templates"},
		Approval: ApprovalConfig{
			FreshnessWindow: 5 * time.Minute,
		},
		Apply: ApplyConfig{
			Concurrency:      10,
			MaxAttempts:      5,
			OnPartialFailure: PartialFailureHold,
		},
	}
}
