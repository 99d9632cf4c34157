//go:build headless

package oto

import (
	"log/slog"

	"github.com/MrWong99/audiosync/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

// Device is the headless stand-in. Open always fails with [ErrUnavailable],
// which puts the pipeline into critical failure while emulation continues.
type Device struct{}

// New returns a Device.
func New(*slog.Logger) *Device { return &Device{} }

// Open implements [audio.Device].
func (*Device) Open(audio.DeviceSpec) (audio.DeviceSpec, error) {
	return audio.DeviceSpec{}, ErrUnavailable
}

// Submit implements [audio.Device].
func (*Device) Submit([]byte) error { return ErrUnavailable }

// QueuedBytes implements [audio.Device].
func (*Device) QueuedBytes() int { return 0 }

// Pause implements [audio.Device].
func (*Device) Pause() {}

// Resume implements [audio.Device].
func (*Device) Resume() {}

// Close implements [audio.Device].
func (*Device) Close() error { return nil }
