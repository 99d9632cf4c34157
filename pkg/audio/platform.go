// Package audio defines the types and collaborator interfaces shared by the
// emulator audio pipeline.
//
// The two primary abstractions are:
//
//   - [Device]: a host audio output device that accepts queued PCM buffers
//     and reports how much audio it still has to play.
//   - [Engine]: a streaming resampling engine that converts the emulated
//     source's sample rate to the device rate and applies a tempo multiplier.
//
// Implementations of these interfaces live in adapter packages (audio/oto,
// audio/filesink, audio/resample). The interfaces are intentionally narrow so
// that the pipeline stays decoupled from any particular backend.
//
// This package lives under pkg/ because external code (third-party device
// backends or resamplers) is expected to implement [Device] and [Engine].
package audio

import "fmt"

// SampleFormat is the on-the-wire sample encoding of a [Device].
type SampleFormat int

const (
	// FormatFloat32 is 32-bit little-endian IEEE float in [-1, 1].
	FormatFloat32 SampleFormat = iota

	// FormatS16 is signed 16-bit little-endian integer.
	FormatS16
)

// String returns the human-readable name of the sample format.
func (f SampleFormat) String() string {
	switch f {
	case FormatFloat32:
		return "f32le"
	case FormatS16:
		return "s16le"
	default:
		return "unknown"
	}
}

// SampleBytes returns the size of one sample of format f.
func (f SampleFormat) SampleBytes() int {
	if f == FormatS16 {
		return 2
	}
	return 4
}

// DeviceSpec describes the parameters of a host output device. It is used both
// for the request passed to [Device.Open] and for the parameters the device
// actually obtained.
type DeviceSpec struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels (2 for stereo).
	Channels int

	// Format is the sample encoding expected by [Device.Submit].
	Format SampleFormat

	// BufferFrames is the device's own internal buffer size in frames.
	BufferFrames int

	// DeviceIndex selects the output device; -1 selects the default device.
	DeviceIndex int
}

// FrameBytes returns the byte size of one interleaved frame.
func (s DeviceSpec) FrameBytes() int {
	return s.Channels * s.Format.SampleBytes()
}

// String returns a compact description such as "44100Hz 2ch f32le".
func (s DeviceSpec) String() string {
	return fmt.Sprintf("%dHz %dch %s", s.SampleRate, s.Channels, s.Format)
}

// Device is a host audio output device.
//
// The pipeline opens a device once per configuration, submits output buffers
// in order, and polls [Device.QueuedBytes] to steer its tempo. A device must
// copy or fully consume each submitted buffer before Submit returns; the
// caller reuses the buffer memory later.
//
// Implementations must be safe for concurrent use: Open and Close are called
// from the control path, Submit and QueuedBytes from the consumer goroutine.
type Device interface {
	// Open prepares the device for playback with the requested parameters and
	// returns the parameters actually obtained. The device starts paused.
	Open(want DeviceSpec) (DeviceSpec, error)

	// Submit enqueues p for playback.
	Submit(p []byte) error

	// QueuedBytes reports how many bytes are queued but not yet played.
	QueuedBytes() int

	// Pause stops consuming queued audio.
	Pause()

	// Resume starts or continues consuming queued audio.
	Resume()

	// Close discards queued audio and releases the device. It is safe to call
	// Close on a device that was never opened.
	Close() error
}
