package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/mediawatch/internal/config"
	"github.com/listenupapp/mediawatch/internal/ledger"
	"github.com/listenupapp/mediawatch/internal/logger"
	"github.com/listenupapp/mediawatch/internal/pipeline"
	"github.com/listenupapp/mediawatch/internal/watcher"
)

// ReporterHandle wraps the stats reporter with shutdown capability.
type ReporterHandle struct {
	*pipeline.Reporter
}

// Shutdown implements do.Shutdownable and logs the final totals.
func (h *ReporterHandle) Shutdown() error {
	h.Reporter.Stop()
	h.Reporter.Report()
	return nil
}

// ProvideReporter provides and starts the periodic stats reporter.
func ProvideReporter(i do.Injector) (*ReporterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	stats := do.MustInvoke[*pipeline.Stats](i)
	l := do.MustInvoke[*ledger.Ledger](i)

	r := pipeline.NewReporter(stats, l, cfg.Pipeline.StatsInterval, log.Logger)
	if err := r.Start(); err != nil {
		return nil, err
	}
	return &ReporterHandle{Reporter: r}, nil
}

// BackendHandle wraps the notification backend with shutdown capability.
type BackendHandle struct {
	watcher.Backend
}

// Shutdown implements do.Shutdownable.
func (h *BackendHandle) Shutdown() error {
	return h.Backend.Stop()
}

// ProvideBackend provides the notification backend selected by watch.backend.
func ProvideBackend(i do.Injector) (*BackendHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	b, err := watcher.NewBackend(cfg.Watch.Backend, log.Logger, watcher.Options{
		SettleDelay: cfg.Watch.SettleDelay,
	})
	if err != nil {
		return nil, err
	}
	return &BackendHandle{Backend: b}, nil
}

// ProvideEventSource provides Poll-Fallback when the root is a network mount
// and Reactive otherwise.
func ProvideEventSource(i do.Injector) (watcher.Source, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	p := do.MustInvoke[*pipeline.Pipeline](i)

	if cfg.Watch.IsSMB {
		log.Info("using poll fallback", "interval", cfg.Watch.PollInterval)
		return watcher.NewPoller(cfg.Watch.Root, cfg.Watch.PollInterval, p.Trigger, log.Logger), nil
	}

	backend, err := do.Invoke[*BackendHandle](i)
	if err != nil {
		return nil, err
	}
	exts := []string{cfg.Pipeline.ContainerExt, cfg.Pipeline.SubtitleExt}
	return watcher.NewReactive(cfg.Watch.Root, backend, exts, p.Trigger, log.Logger), nil
}
