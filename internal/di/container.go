// Package di provides dependency injection configuration for mediawatch.
package di

import (
	"github.com/samber/do/v2"
	"github.com/spf13/pflag"

	"github.com/listenupapp/mediawatch/internal/config"
	"github.com/listenupapp/mediawatch/internal/di/providers"
	"github.com/listenupapp/mediawatch/internal/logger"
	"github.com/listenupapp/mediawatch/internal/pipeline"
	"github.com/listenupapp/mediawatch/internal/watcher"
)

// NewContainer creates and configures the DI container with all providers.
// flags may be nil.
func NewContainer(flags *pflag.FlagSet) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, &providers.Flags{FlagSet: flags})
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Pipeline
	do.Provide(injector, providers.ProvideLedger)
	do.Provide(injector, providers.ProvideScanner)
	do.Provide(injector, providers.ProvideRunner)
	do.Provide(injector, providers.ProvideProber)
	do.Provide(injector, providers.ProvideExecutor)
	do.Provide(injector, providers.ProvideScheduler)
	do.Provide(injector, providers.ProvideStats)
	do.Provide(injector, providers.ProvidePipeline)

	// Workers
	do.Provide(injector, providers.ProvideReporter)
	do.Provide(injector, providers.ProvideBackend)
	do.Provide(injector, providers.ProvideEventSource)

	return injector
}

// Core invokes configuration and logging, the two services every command
// needs, and reports configuration errors instead of panicking.
func Core(injector do.Injector) (*config.Config, *logger.Logger, error) {
	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return nil, nil, err
	}
	log, err := do.Invoke[*logger.Logger](injector)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// Bootstrap initializes everything the long-running watch command needs and
// returns the selected event source. Startup failures, such as an unwatchable
// root, are returned here.
func Bootstrap(injector do.Injector) (watcher.Source, error) {
	if _, _, err := Core(injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*pipeline.Pipeline](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*providers.ReporterHandle](injector); err != nil {
		return nil, err
	}
	return do.Invoke[watcher.Source](injector)
}
