// Command audiosync plays an emulated machine's audio through the host audio
// device, keeping pitch and speed correct while the emulation rate drifts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/audiosync/internal/app"
	"github.com/MrWong99/audiosync/internal/config"
	"github.com/MrWong99/audiosync/internal/observe"
	"github.com/MrWong99/audiosync/pkg/audio"
	"github.com/MrWong99/audiosync/pkg/audio/filesink"
	"github.com/MrWong99/audiosync/pkg/audio/oto"
)

// version is overridden at build time with -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "audiosync.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "audiosync: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "audiosync: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("audiosync starting",
		"version", version,
		"config", *configPath,
		"backend", cfg.Audio.Backend,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Backend registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	application, err := app.New(ctx, cfg, reg,
		app.WithLogger(logger),
		app.WithLevelVar(level),
		app.WithMetrics(tel.Metrics),
		app.WithMetricsHandler(tel.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	if *watch {
		if err := application.Watch(*configPath); err != nil {
			slog.Error("failed to watch config", "err", err)
			return 1
		}
	}

	slog.Info("running, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// registerBuiltinBackends wires the host audio backends that ship with
// audiosync into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterDevice(config.BackendOto, func(_ config.AudioConfig, log *slog.Logger) (audio.Device, error) {
		return oto.New(log.With("backend", config.BackendOto)), nil
	})
	reg.RegisterDevice(config.BackendWAV, func(cfg config.AudioConfig, _ *slog.Logger) (audio.Device, error) {
		return filesink.New(cfg.WAVPath), nil
	})
	reg.RegisterDevice(config.BackendNull, func(config.AudioConfig, *slog.Logger) (audio.Device, error) {
		return filesink.New(""), nil
	})
}
