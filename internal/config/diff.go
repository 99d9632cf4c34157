package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SpeedFactorChanged bool
	NewSpeedFactor     int

	LimiterChanged bool
	NewLimiter     bool

	BusyWaitChanged bool

	ToneChanged bool

	// AudioChanged is set when a setting that requires rebuilding the
	// pipeline stream changed.
	AudioChanged bool

	// RestartRequired lists changed fields that only take effect on restart.
	RestartRequired []string
}

// Hot reports whether any change can be applied without a restart.
func (d ConfigDiff) Hot() bool {
	return d.LogLevelChanged || d.SpeedFactorChanged || d.LimiterChanged ||
		d.BusyWaitChanged || d.ToneChanged || d.AudioChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Audio.SpeedFactor != new.Audio.SpeedFactor {
		d.SpeedFactorChanged = true
		d.NewSpeedFactor = new.Audio.SpeedFactor
	}
	if old.Audio.BusyWait != new.Audio.BusyWait {
		d.BusyWaitChanged = true
	}
	if old.Source.LimiterOn() != new.Source.LimiterOn() {
		d.LimiterChanged = true
		d.NewLimiter = new.Source.LimiterOn()
	}
	if old.Source.ToneHz != new.Source.ToneHz {
		d.ToneChanged = true
	}

	oa, na := old.Audio.Settings(), new.Audio.Settings()
	// Speed and busy-wait are applied live; ignore them for the rebuild check.
	oa.SpeedFactor, na.SpeedFactor = 0, 0
	oa.BusyWait, na.BusyWait = "", ""
	if oa != na {
		d.AudioChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Audio.Backend != new.Audio.Backend {
		d.RestartRequired = append(d.RestartRequired, "audio.backend")
	}
	if !slices.Equal(old.Audio.FallbackBackends, new.Audio.FallbackBackends) {
		d.RestartRequired = append(d.RestartRequired, "audio.fallback_backends")
	}
	if old.Audio.WAVPath != new.Audio.WAVPath {
		d.RestartRequired = append(d.RestartRequired, "audio.wav_path")
	}
	if old.Source.System != new.Source.System {
		d.RestartRequired = append(d.RestartRequired, "source.system")
	}
	if old.Source.Dacrate != new.Source.Dacrate {
		d.RestartRequired = append(d.RestartRequired, "source.dacrate")
	}
	if old.Source.ChunkFrames != new.Source.ChunkFrames {
		d.RestartRequired = append(d.RestartRequired, "source.chunk_frames")
	}

	return d
}
