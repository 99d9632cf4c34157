package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/MrWong99/audiosync/internal/pipeline"
	"github.com/MrWong99/audiosync/pkg/audio"
	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists the built-in audio backends. Used by [Validate] to
// warn about unrecognised backend names.
var ValidBackendNames = []string{BackendOto, BackendWAV, BackendNull}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the stock configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	a := cfg.Audio
	validateBackendName(a.Backend)
	seen := map[string]bool{a.Backend: true}
	for i, name := range a.FallbackBackends {
		if seen[name] {
			errs = append(errs, fmt.Errorf("audio.fallback_backends[%d] %q is listed twice", i, name))
		}
		seen[name] = true
		validateBackendName(name)
	}
	if seen[BackendWAV] && a.WAVPath == "" {
		errs = append(errs, errors.New("audio.wav_path is required when backend is wav"))
	}
	if a.DefaultFrequency < 4000 {
		errs = append(errs, fmt.Errorf("audio.default_frequency %d is below 4000", a.DefaultFrequency))
	}
	if a.PrimaryBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.primary_buffer_size %d must be positive", a.PrimaryBufferSize))
	}
	if a.SecondaryBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.secondary_buffer_size %d must be positive", a.SecondaryBufferSize))
	}
	if a.TargetSecondaryBuffers <= 0 {
		errs = append(errs, fmt.Errorf("audio.target_secondary_buffers %d must be positive", a.TargetSecondaryBuffers))
	}
	if a.SecondaryBufferCount <= a.TargetSecondaryBuffers {
		errs = append(errs, fmt.Errorf("audio.secondary_buffer_count %d must exceed target_secondary_buffers %d", a.SecondaryBufferCount, a.TargetSecondaryBuffers))
	}
	if a.SamplingRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sampling_rate %d must not be negative", a.SamplingRate))
	}
	if a.SpeedFactor < pipeline.MinSpeedFactor || a.SpeedFactor > pipeline.MaxSpeedFactor {
		errs = append(errs, fmt.Errorf("audio.speed_factor %d is out of range [%d, %d]", a.SpeedFactor, pipeline.MinSpeedFactor, pipeline.MaxSpeedFactor))
	}
	if a.BusyWait != "" && !a.BusyWait.Valid() {
		errs = append(errs, fmt.Errorf("audio.busy_wait %q is invalid; valid values: auto, off, always", a.BusyWait))
	}

	s := cfg.Source
	if _, err := audio.ParseSystem(s.System); err != nil {
		errs = append(errs, fmt.Errorf("source.system: %w", err))
	}
	if s.ChunkFrames <= 0 {
		errs = append(errs, fmt.Errorf("source.chunk_frames %d must be positive", s.ChunkFrames))
	} else if s.ChunkFrames > a.PrimaryBufferSize && a.PrimaryBufferSize > 0 {
		slog.Warn("source.chunk_frames exceeds audio.primary_buffer_size; every chunk will be dropped",
			"chunk_frames", s.ChunkFrames,
			"primary_buffer_size", a.PrimaryBufferSize,
		)
	}
	if s.ToneHz < 0 {
		errs = append(errs, fmt.Errorf("source.tone_hz %.1f must not be negative", s.ToneHz))
	}

	return errors.Join(errs...)
}

// validateBackendName logs a warning if name is not a built-in backend.
// Third-party backends may still be registered under other names.
func validateBackendName(name string) {
	if name == "" || slices.Contains(ValidBackendNames, name) {
		return
	}
	slog.Warn("unknown audio backend name, may be a typo or third-party backend",
		"name", name,
		"known", ValidBackendNames,
	)
}
