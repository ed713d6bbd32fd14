package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/mediawatch/internal/capability"
	"github.com/listenupapp/mediawatch/internal/config"
	"github.com/listenupapp/mediawatch/internal/ffmpeg"
	"github.com/listenupapp/mediawatch/internal/ledger"
	"github.com/listenupapp/mediawatch/internal/logger"
	"github.com/listenupapp/mediawatch/internal/pipeline"
	"github.com/listenupapp/mediawatch/internal/scanner"
	"github.com/listenupapp/mediawatch/internal/transcode"
)

// ProvideLedger provides the append-only ledger.
func ProvideLedger(i do.Injector) (*ledger.Ledger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return ledger.New(cfg.Pipeline.LedgerPath, log.Logger), nil
}

// ProvideScanner provides discovery and pairing.
func ProvideScanner(i do.Injector) (*scanner.Scanner, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return scanner.NewScanner(scanner.Options{
		ContainerExt: cfg.Pipeline.ContainerExt,
		SubtitleExt:  cfg.Pipeline.SubtitleExt,
	}, log.Logger), nil
}

// ProvideRunner provides the ffmpeg process runner. A missing binary is not
// fatal: every spawn then fails and the item is retried next pass.
func ProvideRunner(i do.Injector) (*ffmpeg.ExecRunner, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	path := ffmpeg.ResolveBinary(cfg.Transcode.FFmpegPath, log.Logger)
	return ffmpeg.NewExecRunner(path, log.Logger), nil
}

// ProvideProber provides the capability prober.
func ProvideProber(i do.Injector) (*capability.Prober, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	runner := do.MustInvoke[*ffmpeg.ExecRunner](i)

	return capability.NewProber(runner, capability.Options{
		ForceCPU:    cfg.Transcode.ForceCPU,
		Policy:      cfg.Transcode.ProbePolicy,
		Preference:  cfg.Transcode.DevicePreference,
		VAAPIDevice: cfg.Transcode.VAAPIDevice,
		Timeout:     cfg.Transcode.ProbeTimeout,
	}, log.Logger), nil
}

// ProvideExecutor provides the per-item job executor.
func ProvideExecutor(i do.Injector) (*transcode.Executor, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	runner := do.MustInvoke[*ffmpeg.ExecRunner](i)
	l := do.MustInvoke[*ledger.Ledger](i)

	return transcode.NewExecutor(runner, l, transcode.Options{
		ScratchDir:   cfg.Pipeline.ScratchDir,
		OutputExt:    cfg.Pipeline.OutputExt,
		VAAPIDevice:  cfg.Transcode.VAAPIDevice,
		Language:     cfg.Transcode.SubtitleLanguage,
		AudioBitrate: cfg.Transcode.AudioBitrate,
		JobTimeout:   cfg.Transcode.JobTimeout,
	}, log.Logger), nil
}

// ProvideScheduler provides the process-wide worker pool.
func ProvideScheduler(i do.Injector) (*pipeline.Scheduler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	exec := do.MustInvoke[*transcode.Executor](i)

	return pipeline.NewScheduler(exec, cfg.Pipeline.Threads, cfg.Pipeline.ClaimTable, log.Logger), nil
}

// ProvideStats provides the lifetime counters.
func ProvideStats(i do.Injector) (*pipeline.Stats, error) {
	return pipeline.NewStats(), nil
}

// ProvidePipeline provides the pass runner.
func ProvidePipeline(i do.Injector) (*pipeline.Pipeline, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return pipeline.New(
		pipeline.Config{Root: cfg.Watch.Root, ScratchDir: cfg.Pipeline.ScratchDir},
		do.MustInvoke[*scanner.Scanner](i),
		do.MustInvoke[*ledger.Ledger](i),
		do.MustInvoke[*capability.Prober](i),
		do.MustInvoke[*pipeline.Scheduler](i),
		do.MustInvoke[*pipeline.Stats](i),
		log.Logger,
	), nil
}
