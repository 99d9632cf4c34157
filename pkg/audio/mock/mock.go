// Package mock provides in-memory mock implementations of the [audio.Device]
// and [audio.Engine] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	dev := &mock.Device{OpenResult: audio.DeviceSpec{SampleRate: 44100, Channels: 2}}
//	spec, err := dev.Open(audio.DeviceSpec{SampleRate: 32000, Channels: 2})
//	// spec.SampleRate == 44100
package mock

import (
	"sync"

	"github.com/MrWong99/audiosync/pkg/audio"
)

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device].
// Set the exported Result fields before use; inspect the Call* fields after.
type Device struct {
	mu sync.Mutex

	// OpenResult is returned by [Device.Open]. Zero-valued fields are filled
	// from the requested spec, so a zero OpenResult grants every request.
	OpenResult audio.DeviceSpec

	// OpenError is returned by [Device.Open].
	OpenError error

	// SubmitError is returned by [Device.Submit].
	SubmitError error

	// QueuedBytesResult is returned by [Device.QueuedBytes] unless
	// QueuedBytesFunc is set.
	QueuedBytesResult int

	// QueuedBytesFunc, when non-nil, computes the QueuedBytes result.
	QueuedBytesFunc func() int

	// OnSubmit, when non-nil, is invoked with each submitted buffer before it
	// is recorded. It runs outside the mock's lock.
	OnSubmit func(p []byte)

	// OpenCalls records the spec passed to every Open invocation.
	OpenCalls []audio.DeviceSpec

	// Submitted holds a copy of every submitted buffer in order.
	Submitted [][]byte

	// SubmittedBytes is the total number of bytes submitted.
	SubmittedBytes int

	CallCountPause  int
	CallCountResume int
	CallCountClose  int
}

// Open implements [audio.Device].
func (d *Device) Open(want audio.DeviceSpec) (audio.DeviceSpec, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, want)
	if d.OpenError != nil {
		return audio.DeviceSpec{}, d.OpenError
	}
	got := d.OpenResult
	if got.SampleRate == 0 {
		got.SampleRate = want.SampleRate
	}
	if got.Channels == 0 {
		got.Channels = want.Channels
	}
	if got.BufferFrames == 0 {
		got.BufferFrames = want.BufferFrames
	}
	if got.DeviceIndex == 0 {
		got.DeviceIndex = want.DeviceIndex
	}
	// FormatFloat32 is the zero value, so an unset OpenResult keeps the request.
	if got.Format == audio.FormatFloat32 {
		got.Format = want.Format
	}
	return got, nil
}

// Submit implements [audio.Device]. A copy of p is recorded.
func (d *Device) Submit(p []byte) error {
	d.mu.Lock()
	hook := d.OnSubmit
	d.mu.Unlock()
	if hook != nil {
		hook(p)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SubmitError != nil {
		return d.SubmitError
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	d.Submitted = append(d.Submitted, cp)
	d.SubmittedBytes += len(p)
	return nil
}

// QueuedBytes implements [audio.Device].
func (d *Device) QueuedBytes() int {
	d.mu.Lock()
	fn := d.QueuedBytesFunc
	res := d.QueuedBytesResult
	d.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return res
}

// SetQueuedBytes sets QueuedBytesResult under the mock's lock.
func (d *Device) SetQueuedBytes(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.QueuedBytesResult = n
}

// Pause implements [audio.Device].
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountPause++
}

// Resume implements [audio.Device].
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountResume++
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	return nil
}

// Bytes returns the total number of submitted bytes.
func (d *Device) Bytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.SubmittedBytes
}

// SubmitCount returns the number of Submit calls that were recorded.
func (d *Device) SubmitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Submitted)
}

// ─── Engine ───────────────────────────────────────────────────────────────────

// Engine is a mock implementation of [audio.Engine]. Every frame passed to
// Put becomes one silent output frame, so the mock behaves like a unity-rate
// engine regardless of the configured rate and tempo.
type Engine struct {
	mu sync.Mutex

	// Channels is the channel count set by the most recent Configure call.
	Channels int

	// SampleRate is the sample rate set by the most recent Configure call.
	SampleRate int

	// Options are the options passed to the most recent Configure call.
	Options audio.EngineOptions

	// Rates records every SetRate argument in order.
	Rates []float64

	// Tempos records every SetTempo argument in order.
	Tempos []float64

	// PutFrames is the total number of frames passed to Put.
	PutFrames int

	pending int

	CallCountConfigure int
	CallCountClear     int
}

// Configure implements [audio.Engine].
func (e *Engine) Configure(sampleRate, channels int, opts audio.EngineOptions) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountConfigure++
	e.SampleRate = sampleRate
	e.Channels = channels
	e.Options = opts
	e.pending = 0
}

// SetRate implements [audio.Engine].
func (e *Engine) SetRate(ratio float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Rates = append(e.Rates, ratio)
}

// SetTempo implements [audio.Engine].
func (e *Engine) SetTempo(tempo float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Tempos = append(e.Tempos, tempo)
}

// Put implements [audio.Engine].
func (e *Engine) Put(_ []float32, frames int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PutFrames += frames
	e.pending += frames
}

// Receive implements [audio.Engine]. Output frames are silent.
func (e *Engine) Receive(out []float32, maxFrames int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := max(e.Channels, 1)
	n := min(e.pending, maxFrames, len(out)/ch)
	clear(out[:n*ch])
	e.pending -= n
	return n
}

// Clear implements [audio.Engine].
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountClear++
	e.pending = 0
}

// LastTempo returns the most recent SetTempo argument, or 0 if none.
func (e *Engine) LastTempo() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Tempos) == 0 {
		return 0
	}
	return e.Tempos[len(e.Tempos)-1]
}

// TempoCount returns the number of SetTempo calls.
func (e *Engine) TempoCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Tempos)
}
