package pacer

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for pacing.
var (
	pacerDelaySeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pullpush_pacer_delay_seconds",
		Help: "Current inter-request delay",
	})

	pacerPoolRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pullpush_pacer_pool_remaining",
		Help: "Locally tracked requests remaining before the rate limit",
	})

	pacerThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pullpush_pacer_throttles_total",
		Help: "Times a stream was put to sleep waiting for the pool to refill",
	})
)

// Config holds pacer configuration.
type Config struct {
	// Mode is the pacing strategy.
	Mode Mode

	// Delay is the base inter-request delay (sleep_sec).
	Delay time.Duration

	// RefillWindow is the server-side pool refill period.
	RefillWindow time.Duration

	// SafetyMargin is subtracted from server-signaled remaining quota
	// before it is trusted.
	SafetyMargin int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Mode:         ModeAutoHard,
		Delay:        1 * time.Second,
		RefillWindow: DefaultRefillWindow,
		SafetyMargin: 1,
	}
}

// Pacer gates requests across all concurrent streams of one orchestrator.
// Acquire never fails on its own; at worst it over-throttles. The only way
// out early is context cancellation.
type Pacer struct {
	cfg    Config
	logger zerolog.Logger

	mu    chan struct{} // buffered-1 channel used as a ctx-aware mutex
	state State

	// spacing lives for the pacer's lifetime and is only retuned via
	// SetLimit, which synchronizes internally; streams may Wait on it
	// outside the mutex.
	spacing *rate.Limiter
}

// New creates a pacer. The pool starts full and the refill window starts now.
func New(cfg Config, logger zerolog.Logger) (*Pacer, error) {
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultConfig().Delay
	}
	if cfg.RefillWindow <= 0 {
		cfg.RefillWindow = DefaultRefillWindow
	}
	if cfg.SafetyMargin < 0 {
		return nil, fmt.Errorf("safety margin must be >= 0 (got %d)", cfg.SafetyMargin)
	}

	p := &Pacer{
		cfg:    cfg,
		logger: logger,
		mu:     make(chan struct{}, 1),
		state: State{
			Delay:      cfg.Delay,
			Pool:       poolSize(mode),
			LastRefill: time.Now(),
		},
		// Permissive until the first adaptation; the per-request delay
		// already provides the base spacing.
		spacing: rate.NewLimiter(rate.Inf, 1),
	}
	p.mu <- struct{}{}
	return p, nil
}

func poolSize(mode Mode) int {
	switch mode {
	case ModeAutoSoft:
		return SoftPoolSize
	case ModeAutoHard:
		return HardPoolSize
	default:
		return 0
	}
}

func (p *Pacer) lock(ctx context.Context) error {
	select {
	case <-p.mu:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pacer) unlock() { p.mu <- struct{}{} }

// Acquire blocks until it is safe to issue the next request and commits to
// having issued it. In the auto modes this spends one token from the locally
// tracked pool, throttling all streams until the window refills when the
// pool is exhausted.
func (p *Pacer) Acquire(ctx context.Context) error {
	if p.cfg.Mode == ModeManual {
		return sleep(ctx, p.cfg.Delay)
	}

	for {
		if err := p.lock(ctx); err != nil {
			return err
		}

		now := time.Now()
		if p.state.windowElapsed(now, p.cfg.RefillWindow) {
			p.state.Pool = poolSize(p.cfg.Mode)
			p.state.LastRefill = now
			p.logger.Info().Int("pool", p.state.Pool).Msg("Request pool refilled")
		}

		if p.state.Pool > 0 {
			p.state.Pool--
			delay := p.state.Delay
			pacerPoolRemaining.Set(float64(p.state.Pool))
			p.unlock()

			if err := sleep(ctx, delay); err != nil {
				return err
			}
			return p.spacing.Wait(ctx)
		}

		// Pool spent: throttle until the next refill.
		wait := p.state.untilRefill(now, p.cfg.RefillWindow)
		p.unlock()

		pacerThrottlesTotal.Inc()
		p.logger.Warn().
			Dur("wait", wait).
			Str("mode", string(p.cfg.Mode)).
			Msg("Rate limit pool exhausted - throttling")

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Observe feeds a response's rate-limit signal back into the shared state.
//
// auto-hard adapts the delay toward reset/remaining spacing when the server
// signals quota, and falls back to the configured delay when it stops.
// auto-soft deliberately ignores quota signals and instead raises its delay
// toward twice the configured base while the server stays silent, holding a
// conservative floor against the soft limit. manual never adapts.
func (p *Pacer) Observe(ctx context.Context, sig Signal) error {
	if p.cfg.Mode == ModeManual {
		return nil
	}
	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.unlock()

	switch p.cfg.Mode {
	case ModeAutoHard:
		if sig.Present {
			p.adaptToSignal(sig)
		} else if p.state.Signaled {
			// Signal disappeared; return to the configured default.
			p.state.Signaled = false
			p.setDelay(p.cfg.Delay)
			p.spacing.SetLimit(rate.Inf)
		}
	case ModeAutoSoft:
		if !sig.Present && p.state.Delay < 2*p.cfg.Delay {
			p.setDelay(p.state.Delay + p.cfg.Delay/4)
		}
	}
	return nil
}

// adaptToSignal recomputes spacing as reset / usable-remaining, clamped to
// [cfg.Delay/4, RefillWindow]. Caller holds the lock.
func (p *Pacer) adaptToSignal(sig Signal) {
	p.state.Signaled = true
	p.state.Remaining = sig.Remaining
	p.state.ResetAt = time.Now().Add(sig.Reset)

	usable := sig.Remaining - p.cfg.SafetyMargin
	var spacing time.Duration
	if usable <= 0 {
		spacing = sig.Reset
		if spacing <= 0 {
			spacing = p.cfg.RefillWindow
		}
	} else {
		spacing = sig.Reset / time.Duration(usable)
	}

	floor := p.cfg.Delay / 4
	if spacing < floor {
		spacing = floor
	}
	if spacing > p.cfg.RefillWindow {
		spacing = p.cfg.RefillWindow
	}

	p.setDelay(spacing)
	p.spacing.SetLimit(rate.Every(spacing))

	p.logger.Debug().
		Int("remaining", sig.Remaining).
		Dur("reset", sig.Reset).
		Dur("delay", spacing).
		Msg("Adapted pacing to rate limit signal")
}

func (p *Pacer) setDelay(d time.Duration) {
	p.state.Delay = d
	pacerDelaySeconds.Set(d.Seconds())
}

// Delay returns the current inter-request delay.
func (p *Pacer) Delay() time.Duration {
	<-p.mu
	defer p.unlock()
	return p.state.Delay
}

// Snapshot returns a copy of the shared state, for logging and tests.
func (p *Pacer) Snapshot() State {
	<-p.mu
	defer p.unlock()
	return p.state
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
