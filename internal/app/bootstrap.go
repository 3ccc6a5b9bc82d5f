// Package app wires configuration, adapters and engines into a runnable
// application. Everything here is composition; the behavior lives in the
// engine packages.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/noqdev/iambic-sub001/internal/adapters/provider/awsiam"
	"github.com/noqdev/iambic-sub001/internal/apply"
	"github.com/noqdev/iambic-sub001/internal/approval"
	"github.com/noqdev/iambic-sub001/internal/config"
	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/core/ports"
	"github.com/noqdev/iambic-sub001/internal/core/service"
	"github.com/noqdev/iambic-sub001/internal/errors"
	"github.com/noqdev/iambic-sub001/internal/importer"
	"github.com/noqdev/iambic-sub001/internal/log"
	jsonreport "github.com/noqdev/iambic-sub001/internal/reporting/json"
	"github.com/noqdev/iambic-sub001/internal/reporting/text"
	"github.com/noqdev/iambic-sub001/internal/store"
)

func BuildApplicationFromViper(ctx context.Context, v *viper.Viper) (*Application, error) {
	cfg := config.DefaultConfig()
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigParseError, "failed to unmarshal configuration")
	}

	logCfg := log.Config{Level: cfg.Settings.LogLevel, Format: cfg.Settings.LogFormat}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logger: %v\n", err)
		return nil, errors.Wrap(err, errors.CodeInternal, "logger initialization failed")
	}
	if v.ConfigFileUsed() != "" {
		logger.Debugf(ctx, "Using configuration file: %s", v.ConfigFileUsed())
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructCtx(ctx, cfg); err != nil {
		var details strings.Builder
		details.WriteString("Configuration validation failed:")
		for _, fe := range err.(validator.ValidationErrors) {
			details.WriteString(fmt.Sprintf("\n - Field '%s': failed '%s' validation (value: '%v')", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		wrapped := errors.NewUserFacing(errors.CodeConfigValidation, details.String(), "Check your configuration file or flags.")
		logger.Errorf(ctx, wrapped, "Configuration validation failed")
		return nil, wrapped
	}

	org, err := config.LoadOrganization(cfg.Organization.File)
	if err != nil {
		return nil, err
	}
	logger.Infof(ctx, "Organization '%s' loaded: %d accounts", org.Name, len(org.Accounts))

	registry := service.NewProviderRegistry()
	if cfg.Providers.AWS != nil {
		if err := registerAWS(ctx, *cfg.Providers.AWS, registry, logger); err != nil {
			return nil, err
		}
	}
	if len(registry.Kinds()) == 0 {
		return nil, errors.NewUserFacing(errors.CodeConfigValidation,
			"no provider is configured", "Configure at least one provider under 'providers'.")
	}

	repo := store.NewFileRepository(cfg.Templates.Root, logger.WithFields(map[string]any{"component": "store"}))
	snapshots := store.NewSnapshotStore(cfg.Templates.Root)

	importEngine, err := importer.NewEngine(registry, repo,
		logger.WithFields(map[string]any{"component": "importer"}), cfg.Apply.Concurrency)
	if err != nil {
		return nil, err
	}

	applyCfg := apply.DefaultConfig()
	if cfg.Apply.Concurrency > 0 {
		applyCfg.Concurrency = cfg.Apply.Concurrency
	}
	if cfg.Apply.MaxAttempts > 0 {
		applyCfg.MaxAttempts = cfg.Apply.MaxAttempts
	}
	if len(cfg.Apply.ProviderRPS) > 0 {
		applyCfg.ProviderRPS = make(map[domain.ProviderKind]int, len(cfg.Apply.ProviderRPS))
		for kind, rps := range cfg.Apply.ProviderRPS {
			applyCfg.ProviderRPS[domain.ProviderKind(kind)] = rps
		}
	}
	applyEngine, err := apply.NewEngine(registry, org,
		logger.WithFields(map[string]any{"component": "apply"}), applyCfg)
	if err != nil {
		return nil, err
	}

	gate, err := approval.NewGate(cfg.Approval.Approvers, cfg.Approval.FreshnessWindow)
	if err != nil {
		return nil, err
	}

	reporter, err := buildReporter(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Debugf(ctx, "Application bootstrap complete")
	return &Application{
		Config:    cfg,
		Org:       org,
		Logger:    logger,
		Registry:  registry,
		Repo:      repo,
		Snapshots: snapshots,
		Importer:  importEngine,
		Applier:   applyEngine,
		Gate:      gate,
		Reporter:  reporter,
	}, nil
}

func registerAWS(ctx context.Context, awsCfg config.AWSProviderConfig, registry *service.ProviderRegistry, logger ports.Logger) error {
	var opts []func(*awsconfig.LoadOptions) error
	if awsCfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(awsCfg.Region))
	}
	if awsCfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(awsCfg.Profile))
	}
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return errors.Wrap(err, errors.CodeConfigValidation, "failed to load AWS SDK configuration")
	}
	adapter, err := awsiam.NewAdapter(awsiam.DefaultClientFactory(sdkCfg),
		logger.WithFields(map[string]any{"provider": domain.ProviderAWS}))
	if err != nil {
		return err
	}
	if err := registry.RegisterAdapter(adapter, domain.TypeAWSRole); err != nil {
		return err
	}
	logger.Infof(ctx, "Registered AWS IAM provider (region: %s)", sdkCfg.Region)
	return nil
}

func buildReporter(cfg *config.Config, logger ports.Logger) (ports.Reporter, error) {
	switch cfg.Settings.ReporterType {
	case jsonreport.ReporterTypeJSON:
		jsonCfg := jsonreport.Config{}
		if cfg.Settings.Reporter.JSON != nil {
			jsonCfg = *cfg.Settings.Reporter.JSON
		}
		return jsonreport.NewReporter(jsonCfg, logger.WithFields(map[string]any{"component": "reporter"}))
	case text.ReporterTypeText, "":
		textCfg := text.Config{}
		if cfg.Settings.Reporter.Text != nil {
			textCfg = *cfg.Settings.Reporter.Text
		}
		return text.NewReporter(textCfg, logger.WithFields(map[string]any{"component": "reporter"}))
	default:
		return nil, errors.NewUserFacing(errors.CodeConfigValidation,
			fmt.Sprintf("unsupported reporter type: %s", cfg.Settings.ReporterType), "Supported: text, json")
	}
}
