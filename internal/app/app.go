// Package app wires all audiosync subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the host
// audio device, the synchronisation pipeline, the emulated source and the
// observability HTTP server; Run drives them until the context is cancelled;
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithDevice,
// WithPipelineOptions, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/audiosync/internal/config"
	"github.com/MrWong99/audiosync/internal/health"
	"github.com/MrWong99/audiosync/internal/observe"
	"github.com/MrWong99/audiosync/internal/pipeline"
	"github.com/MrWong99/audiosync/internal/resilience"
	"github.com/MrWong99/audiosync/internal/source"
	"github.com/MrWong99/audiosync/pkg/audio"
)

// readHeaderTimeout bounds slow clients on the observability server.
const readHeaderTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	log     *slog.Logger
	level   *slog.LevelVar
	metrics *observe.Metrics

	device   audio.Device
	pipeline *pipeline.Pipeline
	source   *source.Tone
	system   audio.SystemType

	pipelineOpts   []pipeline.Option
	metricsHandler http.Handler

	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener
	watcher  *config.Watcher

	mu  sync.Mutex
	cfg *config.Config

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDevice injects a host audio device instead of creating one through the
// registry.
func WithDevice(d audio.Device) Option {
	return func(a *App) { a.device = d }
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar hands the app the level variable behind its log handler so
// that server.log_level can be changed at runtime.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics sets the metrics instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener makes the HTTP server use l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithPipelineOptions appends options passed to [pipeline.New].
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(a *App) { a.pipelineOpts = append(a.pipelineOpts, opts...) }
}

// New creates an App from cfg. reg resolves audio.backend unless a device
// is injected with [WithDevice]. cfg must have defaults applied.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Host audio device ─────────────────────────────────────────────
	if a.device == nil {
		if reg == nil {
			return nil, errors.New("app: no device and no backend registry")
		}
		dev, err := a.createDevice(cfg.Audio, reg)
		if err != nil {
			return nil, err
		}
		a.device = dev
	}

	// ── 2. Emulated source ───────────────────────────────────────────────
	system, err := audio.ParseSystem(cfg.Source.System)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.system = system
	a.source = source.New(source.Config{
		System:      system,
		Dacrate:     cfg.Source.Dacrate,
		ToneHz:      cfg.Source.ToneHz,
		ChunkFrames: cfg.Source.ChunkFrames,
		Limiter:     cfg.Source.LimiterOn(),
	}, a.log.With("component", "source"))

	// ── 3. Pipeline ──────────────────────────────────────────────────────
	settings := cfg.Audio.Settings()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("app: audio settings: %w", err)
	}
	popts := append([]pipeline.Option{
		pipeline.WithLogger(a.log.With("component", "pipeline")),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLimiter(a.source.Limiter),
	}, a.pipelineOpts...)
	a.pipeline = pipeline.New(a.device, settings, popts...)
	a.closers = append(a.closers, a.pipeline.Close)

	// ── 4. HTTP server ───────────────────────────────────────────────────
	a.mux = http.NewServeMux()
	health.New(health.PipelineChecker("audio", a.pipeline)).
		WithStatus(func() any { return a.pipeline.Stats() }).
		Register(a.mux)
	if a.metricsHandler != nil {
		a.mux.Handle("GET /metrics", a.metricsHandler)
	}
	if cfg.Server.ListenAddr != "" || a.listener != nil {
		a.server = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           observe.Middleware(a.metrics, a.log)(a.mux),
			ReadHeaderTimeout: readHeaderTimeout,
		}
	}

	a.log.InfoContext(ctx, "app initialised",
		slog.String("backend", cfg.Audio.Backend),
		slog.String("system", system.String()),
		slog.Int("source_frequency", a.source.Frequency()),
		slog.Bool("time_stretch", settings.TimeStretch),
	)
	return a, nil
}

// createDevice builds the configured backend. With fallbacks configured the
// backends are wrapped in a [resilience.FailoverDevice].
func (a *App) createDevice(cfg config.AudioConfig, reg *config.Registry) (audio.Device, error) {
	primary, err := reg.CreateDevice(cfg, a.log)
	if err != nil {
		return nil, fmt.Errorf("app: create audio backend: %w", err)
	}
	if len(cfg.FallbackBackends) == 0 {
		return primary, nil
	}

	group := resilience.NewFallbackGroup(cfg.Backend, primary, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Logger: a.log},
	})
	for _, name := range cfg.FallbackBackends {
		fcfg := cfg
		fcfg.Backend = name
		dev, err := reg.CreateDevice(fcfg, a.log)
		if err != nil {
			return nil, fmt.Errorf("app: create fallback backend: %w", err)
		}
		group.AddFallback(name, dev)
	}
	a.log.Info("audio backend failover enabled", slog.Any("order", group.Names()))
	return resilience.NewFailoverDevice(group), nil
}

// Pipeline returns the audio pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Source returns the emulated source.
func (a *App) Source() *source.Tone { return a.source }

// Handler returns the HTTP handler tree without middleware.
func (a *App) Handler() http.Handler { return a.mux }

// Config returns the currently applied configuration.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Watch reloads path periodically and applies changes with [App.ApplyConfig]
// while Run is active. Call before Run.
func (a *App) Watch(path string, opts ...config.WatcherOption) error {
	opts = append([]config.WatcherOption{config.WithLogger(a.log)}, opts...)
	w, err := config.NewWatcher(path, a.ApplyConfig, opts...)
	if err != nil {
		return fmt.Errorf("app: watch config: %w", err)
	}
	a.watcher = w
	return nil
}

// Run opens the pipeline, then drives the source, the HTTP server and the
// config watcher until ctx is cancelled. An audio initialisation failure is
// not fatal: emulation continues without sound and /readyz reports it.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if a.server != nil && ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
		}
	}

	if err := a.pipeline.Open(ctx, 0); err != nil {
		a.log.WarnContext(ctx, "audio pipeline unavailable", slog.Any("err", err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.source.Run(gctx, a.pipeline) })

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	if a.server != nil {
		a.log.InfoContext(ctx, "http server listening", slog.String("addr", ln.Addr().String()))
		g.Go(func() error {
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), readHeaderTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	a.log.InfoContext(ctx, "app running")
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ApplyConfig applies the difference between old and new. Log level, speed
// factor, busy-wait mode, limiter and tone take effect immediately; other
// audio changes rebuild the pipeline stream. Fields that need a restart are
// logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	ctx := context.Background()

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", slog.String("level", string(d.NewLogLevel)))
	}
	if d.LimiterChanged {
		a.source.SetLimiter(d.NewLimiter)
		a.log.Info("speed limiter changed", slog.Bool("enabled", d.NewLimiter))
	}
	if d.ToneChanged {
		a.source.SetTone(new.Source.ToneHz)
	}

	switch {
	case d.AudioChanged:
		if err := a.pipeline.Reconfigure(ctx, new.Audio.Settings()); err != nil {
			a.log.Error("audio reconfiguration failed", slog.Any("err", err))
		}
	default:
		if d.SpeedFactorChanged && !a.pipeline.SetSpeedFactor(d.NewSpeedFactor) {
			a.log.Warn("speed factor rejected", slog.Int("speed_factor", d.NewSpeedFactor))
		}
		if d.BusyWaitChanged {
			a.pipeline.SetBusyWait(new.Audio.BusyWait)
		}
	}

	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes require a restart", slog.Any("fields", d.RestartRequired))
	}

	a.mu.Lock()
	a.cfg = new
	a.mu.Unlock()
}

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		st := a.pipeline.Stats()
		a.log.Info("shutdown complete",
			slog.Uint64("processed", st.Processed),
			slog.Uint64("dropped", st.Dropped),
		)
	})
	return shutdownErr
}
