package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Speed factor limits, in percent.
const (
	MinSpeedFactor = 10
	MaxSpeedFactor = 300
)

// minFrequency is the lowest source rate accepted by Open and DacrateChanged.
const minFrequency = 4000

// Settings is the pipeline's view of the audio configuration.
type Settings struct {
	DefaultFrequency int
	SwapChannels     bool
	// PrimaryBufferSize is the largest accepted chunk, in frames.
	PrimaryBufferSize int
	// SecondaryBufferSize is the size of one output slot, in frames.
	SecondaryBufferSize  int
	SecondaryBufferCount int
	// TargetSecondaryBuffers is the device queue depth the drift controller
	// aims for, in slots at the reference rate.
	TargetSecondaryBuffers int
	// SamplingRate overrides output rate selection when non-zero.
	SamplingRate int
	// TimeStretch selects the adaptive consumer; false selects passthrough.
	TimeStretch bool
	DeviceIndex int
	SpeedFactor int
	BusyWait    BusyWaitMode
	// PollTimeout bounds how long the consumer waits for a chunk before
	// re-checking for shutdown.
	PollTimeout time.Duration
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		DefaultFrequency:       33600,
		PrimaryBufferSize:      16384,
		SecondaryBufferSize:    256,
		SecondaryBufferCount:   100,
		TargetSecondaryBuffers: 20,
		TimeStretch:            true,
		DeviceIndex:            -1,
		SpeedFactor:            100,
		BusyWait:               BusyWaitAuto,
		PollTimeout:            time.Second,
	}
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.DefaultFrequency < minFrequency {
		errs = append(errs, fmt.Errorf("default frequency %d below %d", s.DefaultFrequency, minFrequency))
	}
	if s.PrimaryBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("primary buffer size %d must be positive", s.PrimaryBufferSize))
	}
	if s.SecondaryBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("secondary buffer size %d must be positive", s.SecondaryBufferSize))
	}
	if s.SecondaryBufferCount <= s.TargetSecondaryBuffers || s.SecondaryBufferCount < 2 {
		errs = append(errs, fmt.Errorf("secondary buffer count %d must exceed target %d", s.SecondaryBufferCount, s.TargetSecondaryBuffers))
	}
	if s.TargetSecondaryBuffers <= 0 {
		errs = append(errs, fmt.Errorf("target secondary buffers %d must be positive", s.TargetSecondaryBuffers))
	}
	if s.SamplingRate < 0 {
		errs = append(errs, fmt.Errorf("sampling rate %d must not be negative", s.SamplingRate))
	}
	if s.SpeedFactor < MinSpeedFactor || s.SpeedFactor > MaxSpeedFactor {
		errs = append(errs, fmt.Errorf("speed factor %d outside %d..%d", s.SpeedFactor, MinSpeedFactor, MaxSpeedFactor))
	}
	if !s.BusyWait.Valid() {
		errs = append(errs, fmt.Errorf("unknown busy-wait mode %q", s.BusyWait))
	}
	if s.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("poll timeout %s must be positive", s.PollTimeout))
	}
	return errors.Join(errs...)
}
