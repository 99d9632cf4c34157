// Package config provides the configuration schema, loader, hot-reload
// watcher, and audio backend registry for audiosync.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/audiosync/internal/pipeline"
	"github.com/MrWong99/audiosync/pkg/audio"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unknown values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Built-in backend names.
const (
	BackendOto  = "oto"
	BackendWAV  = "wav"
	BackendNull = "null"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Audio  AudioConfig  `yaml:"audio"`
	Source SourceConfig `yaml:"source"`
}

// ServerConfig holds the observability HTTP server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics.
	// Empty disables the server.
	ListenAddr string   `yaml:"listen_addr"`
	LogLevel   LogLevel `yaml:"log_level"`
}

// AudioConfig selects the host backend and tunes the pipeline. Sizes are in
// frames.
type AudioConfig struct {
	// Backend names a factory in the [Registry].
	Backend string `yaml:"backend"`
	// FallbackBackends are tried in order when Backend fails to open.
	FallbackBackends []string `yaml:"fallback_backends"`
	// WAVPath is the capture file for the wav backend.
	WAVPath string `yaml:"wav_path"`

	DefaultFrequency       int  `yaml:"default_frequency"`
	SwapChannels           bool `yaml:"swap_channels"`
	PrimaryBufferSize      int  `yaml:"primary_buffer_size"`
	SecondaryBufferSize    int  `yaml:"secondary_buffer_size"`
	SecondaryBufferCount   int  `yaml:"secondary_buffer_count"`
	TargetSecondaryBuffers int  `yaml:"target_secondary_buffers"`

	// SamplingRate overrides output rate selection; 0 picks a standard rate
	// close to the source.
	SamplingRate int `yaml:"sampling_rate"`

	// TimeStretch is a pointer so that an explicit false survives defaulting.
	TimeStretch *bool `yaml:"time_stretch"`

	// Device is the host device index; nil or -1 selects the default device.
	Device *int `yaml:"device"`

	SpeedFactor int                   `yaml:"speed_factor"`
	BusyWait    pipeline.BusyWaitMode `yaml:"busy_wait"`
}

// SourceConfig describes the emulated machine driving the pipeline.
type SourceConfig struct {
	System  string  `yaml:"system"`
	Dacrate uint32  `yaml:"dacrate"`
	ToneHz  float64 `yaml:"tone_hz"`
	// ChunkFrames is the size of one audio interrupt's worth of samples.
	ChunkFrames int `yaml:"chunk_frames"`
	// Limiter on: the source keeps real time itself. Off: the pipeline paces
	// it. A pointer so that an explicit false survives defaulting.
	Limiter *bool `yaml:"limiter"`
}

// ApplyDefaults fills every zero-valued field of cfg with its stock value.
func ApplyDefaults(cfg *Config) {
	def := pipeline.DefaultSettings()

	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Audio
	if a.Backend == "" {
		a.Backend = BackendOto
	}
	if a.DefaultFrequency == 0 {
		a.DefaultFrequency = def.DefaultFrequency
	}
	if a.PrimaryBufferSize == 0 {
		a.PrimaryBufferSize = def.PrimaryBufferSize
	}
	if a.SecondaryBufferSize == 0 {
		a.SecondaryBufferSize = def.SecondaryBufferSize
	}
	if a.SecondaryBufferCount == 0 {
		a.SecondaryBufferCount = def.SecondaryBufferCount
	}
	if a.TargetSecondaryBuffers == 0 {
		a.TargetSecondaryBuffers = def.TargetSecondaryBuffers
	}
	if a.TimeStretch == nil {
		a.TimeStretch = ptr(def.TimeStretch)
	}
	if a.Device == nil {
		a.Device = ptr(def.DeviceIndex)
	}
	if a.SpeedFactor == 0 {
		a.SpeedFactor = def.SpeedFactor
	}
	if a.BusyWait == "" {
		a.BusyWait = def.BusyWait
	}

	s := &cfg.Source
	if s.System == "" {
		s.System = audio.SystemNTSC.String()
	}
	if s.Dacrate == 0 {
		s.Dacrate = 1447
	}
	if s.ToneHz == 0 {
		s.ToneHz = 440
	}
	if s.ChunkFrames == 0 {
		s.ChunkFrames = 512
	}
	if s.Limiter == nil {
		s.Limiter = ptr(true)
	}
}

// Settings maps the audio section onto pipeline settings. Call
// [ApplyDefaults] first.
func (a AudioConfig) Settings() pipeline.Settings {
	s := pipeline.DefaultSettings()
	s.DefaultFrequency = a.DefaultFrequency
	s.SwapChannels = a.SwapChannels
	s.PrimaryBufferSize = a.PrimaryBufferSize
	s.SecondaryBufferSize = a.SecondaryBufferSize
	s.SecondaryBufferCount = a.SecondaryBufferCount
	s.TargetSecondaryBuffers = a.TargetSecondaryBuffers
	s.SamplingRate = a.SamplingRate
	if a.TimeStretch != nil {
		s.TimeStretch = *a.TimeStretch
	}
	if a.Device != nil {
		s.DeviceIndex = *a.Device
	}
	s.SpeedFactor = a.SpeedFactor
	s.BusyWait = a.BusyWait
	return s
}

// LimiterOn reports whether the source speed limiter is enabled.
func (s SourceConfig) LimiterOn() bool { return s.Limiter == nil || *s.Limiter }

// DefaultPollInterval is how often the [Watcher] checks the file by default.
const DefaultPollInterval = 5 * time.Second

func ptr[T any](v T) *T { return &v }
