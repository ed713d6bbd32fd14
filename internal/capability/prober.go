package capability

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Probe policies.
const (
	PolicyInvoke  = "invoke"
	PolicyDevices = "devices"
)

// Device classes for the devices policy.
const (
	PreferPrimary   = "primary"
	PreferSecondary = "secondary"
)

// Default device node patterns for the devices policy.
const (
	DefaultPrimaryGlob   = "/dev/nvidia[0-9]*"
	DefaultSecondaryGlob = "/dev/dri/renderD*"
)

// Invoker runs ffmpeg with the given arguments and returns its stderr.
// A non-nil error means the process could not start or exited non-zero.
type Invoker interface {
	Invoke(ctx context.Context, args []string) (stderr string, err error)
}

// Options configures a Prober.
type Options struct {
	// ForceCPU short-circuits the chain to TokenSoftware.
	ForceCPU bool
	// Policy is PolicyInvoke or PolicyDevices. Empty means PolicyInvoke.
	Policy string
	// Preference picks which device class the devices policy checks first.
	Preference string
	// VAAPIDevice is the render node handed to the VAAPI test encode.
	VAAPIDevice string
	// Timeout bounds each test encode.
	Timeout time.Duration
	// PrimaryGlob and SecondaryGlob override the device node patterns.
	PrimaryGlob   string
	SecondaryGlob string
}

// Prober selects a Token through the override, then one policy, then software.
type Prober struct {
	invoker Invoker
	logger  *slog.Logger
	opts    Options
}

// NewProber creates a prober. invoker may be nil when the devices policy is used.
func NewProber(invoker Invoker, opts Options, logger *slog.Logger) *Prober {
	if opts.Policy == "" {
		opts.Policy = PolicyInvoke
	}
	if opts.Preference == "" {
		opts.Preference = PreferSecondary
	}
	if opts.PrimaryGlob == "" {
		opts.PrimaryGlob = DefaultPrimaryGlob
	}
	if opts.SecondaryGlob == "" {
		opts.SecondaryGlob = DefaultSecondaryGlob
	}
	if opts.VAAPIDevice == "" {
		opts.VAAPIDevice = "/dev/dri/renderD128"
	}
	return &Prober{invoker: invoker, logger: logger, opts: opts}
}

// Probe returns exactly one token. It never fails: anything that cannot be
// probed counts as no match.
func (p *Prober) Probe(ctx context.Context) Token {
	if p.opts.ForceCPU {
		p.logger.Info("hardware probing skipped, software encode forced")
		return TokenSoftware
	}

	var token Token
	switch p.opts.Policy {
	case PolicyDevices:
		token = p.probeDevices()
	default:
		token = p.probeInvoke(ctx)
	}

	p.logger.Info("capability selected",
		slog.String("token", token.String()),
		slog.String("policy", p.opts.Policy),
	)
	return token
}

// NVENCProbeArgs is a one-frame CUDA encode of a black lavfi source.
func NVENCProbeArgs() []string {
	return []string{
		"-hide_banner", "-loglevel", "verbose",
		"-init_hw_device", "cuda=cu",
		"-f", "lavfi", "-i", "color=black:s=256x256:d=0.04",
		"-frames:v", "1",
		"-c:v", "h264_nvenc",
		"-f", "null", "-",
	}
}

// VAAPIProbeArgs is the same encode uploaded to the given render node.
func VAAPIProbeArgs(device string) []string {
	return []string{
		"-hide_banner", "-loglevel", "verbose",
		"-init_hw_device", "vaapi=va:" + device,
		"-filter_hw_device", "va",
		"-f", "lavfi", "-i", "color=black:s=256x256:d=0.04",
		"-frames:v", "1",
		"-vf", "format=nv12,hwupload",
		"-c:v", "h264_vaapi",
		"-f", "null", "-",
	}
}

var (
	nvencMarkers = []string{"nvenc initialized", "loaded nvenc version", "nvenc"}
	vaapiMarkers = []string{"/dev/dri/", "vaapi"}
)

func (p *Prober) probeInvoke(ctx context.Context) Token {
	if p.invoker == nil {
		return TokenSoftware
	}
	if p.tryEncode(ctx, TokenNVENC, NVENCProbeArgs(), nvencMarkers) {
		return TokenNVENC
	}
	if p.tryEncode(ctx, TokenVAAPI, VAAPIProbeArgs(p.opts.VAAPIDevice), vaapiMarkers) {
		return TokenVAAPI
	}
	return TokenSoftware
}

// tryEncode requires a clean exit and one of the markers in stderr, so a build
// that silently falls back to another encoder does not count.
func (p *Prober) tryEncode(ctx context.Context, token Token, args []string, markers []string) bool {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	stderr, err := p.invoker.Invoke(ctx, args)
	if err != nil {
		p.logger.Debug("test encode failed",
			slog.String("token", token.String()),
			slog.String("error", err.Error()),
		)
		return false
	}

	lower := strings.ToLower(stderr)
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	p.logger.Debug("test encode exited cleanly without a device marker", slog.String("token", token.String()))
	return false
}

func (p *Prober) probeDevices() Token {
	order := []struct {
		token Token
		glob  string
	}{
		{TokenVAAPI, p.opts.SecondaryGlob},
		{TokenNVENC, p.opts.PrimaryGlob},
	}
	if p.opts.Preference == PreferPrimary {
		order[0], order[1] = order[1], order[0]
	}

	for _, o := range order {
		matches, err := filepath.Glob(o.glob)
		if err != nil || len(matches) == 0 {
			continue
		}
		p.logger.Debug("device node found",
			slog.String("token", o.token.String()),
			slog.String("path", matches[0]),
		)
		return o.token
	}
	return TokenSoftware
}
