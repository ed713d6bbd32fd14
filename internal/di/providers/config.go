// Package providers contains dependency injection providers for mediawatch.
package providers

import (
	"log/slog"

	"github.com/samber/do/v2"
	"github.com/spf13/pflag"

	"github.com/listenupapp/mediawatch/internal/config"
	"github.com/listenupapp/mediawatch/internal/logger"
)

// Flags carries the command line into the container. A nil FlagSet means
// environment and defaults only.
type Flags struct {
	*pflag.FlagSet
}

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	flags, err := do.Invoke[*Flags](i)
	if err != nil || flags == nil {
		return config.LoadConfig(nil)
	}
	return config.LoadConfig(flags.FlagSet)
}

// ProvideLogger provides the structured logger. The caller closes it after
// the container shut down, so the last shutdown messages still reach the file.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	logCfg := logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	}
	if cfg.Logger.File != "" {
		logCfg.File = &logger.FileConfig{
			Path:       cfg.Logger.File,
			MaxSizeMB:  cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAgeDays: cfg.Logger.MaxAgeDays,
		}
	}
	log := logger.New(logCfg)

	log.Info("Starting mediawatch",
		slog.String("environment", cfg.App.Environment),
		slog.String("log_level", cfg.Logger.Level),
		slog.String("watch_dir", cfg.Watch.Root),
		slog.Bool("is_smb", cfg.Watch.IsSMB),
		slog.Int("threads", cfg.Pipeline.Threads),
	)

	return log, nil
}
