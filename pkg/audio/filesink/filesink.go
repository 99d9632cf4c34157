// Package filesink provides a clocked [audio.Device] that consumes queued
// audio at its sample rate without touching sound hardware. With a path it
// records everything submitted to a 16-bit WAV file.
//
// The device grants every request. Its queue drains against the wall clock
// while playing, so the pipeline's drift controller sees the same feedback
// it would from a real device.
package filesink

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/audiosync/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

const wavBitDepth = 16

// Option configures a [Device].
type Option func(*Device)

// WithClock replaces the wall clock used to drain the queue.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// Device is a null or WAV-recording sink.
type Device struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	spec    audio.DeviceSpec
	open    bool
	playing bool
	queued  int
	credit  float64 // fractional frames played but not yet removed
	last    time.Time

	opens   int
	current string
	file    *os.File
	enc   *wav.Encoder
	ibuf  *goaudio.IntBuffer
}

// New returns a Device. An empty path discards audio.
func New(path string, opts ...Option) *Device {
	d := &Device{path: path, now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Open implements [audio.Device]. Each Open with a path starts a new WAV
// file: the first uses path as given, later ones append -2, -3, ... before
// the extension, since a WAV file carries a single sample rate.
func (d *Device) Open(want audio.DeviceSpec) (audio.DeviceSpec, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		_ = d.closeLocked()
	}
	if want.SampleRate <= 0 || want.Channels <= 0 {
		return audio.DeviceSpec{}, fmt.Errorf("filesink: invalid spec %s", want)
	}

	if d.path != "" {
		name := d.nextPath()
		f, err := os.Create(name)
		if err != nil {
			return audio.DeviceSpec{}, fmt.Errorf("filesink: create %s: %w", name, err)
		}
		d.file = f
		d.current = name
		d.enc = wav.NewEncoder(f, want.SampleRate, wavBitDepth, want.Channels, 1)
		d.ibuf = &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: want.Channels, SampleRate: want.SampleRate},
			SourceBitDepth: wavBitDepth,
		}
	}

	d.opens++
	d.spec = want
	d.open = true
	d.playing = false
	d.queued = 0
	d.credit = 0
	d.last = d.now()
	return want, nil
}

func (d *Device) nextPath() string {
	if d.opens == 0 {
		return d.path
	}
	ext := filepath.Ext(d.path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(d.path, ext), d.opens+1, ext)
}

// Submit implements [audio.Device].
func (d *Device) Submit(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return fmt.Errorf("filesink: submit on closed device")
	}
	d.advanceLocked()
	fb := d.spec.FrameBytes()
	p = p[:len(p)-len(p)%fb]
	d.queued += len(p)

	if d.enc == nil {
		return nil
	}
	d.ibuf.Data = decode(d.ibuf.Data[:0], d.spec.Format, p)
	if err := d.enc.Write(d.ibuf); err != nil {
		return fmt.Errorf("filesink: write wav: %w", err)
	}
	return nil
}

// decode converts device-format samples to 16-bit integers.
func decode(dst []int, f audio.SampleFormat, p []byte) []int {
	if f == audio.FormatS16 {
		for i := 0; i+1 < len(p); i += 2 {
			dst = append(dst, int(int16(binary.LittleEndian.Uint16(p[i:]))))
		}
		return dst
	}
	for i := 0; i+3 < len(p); i += 4 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(p[i:]))
		dst = append(dst, int(max(min(v, 1), -1)*math.MaxInt16))
	}
	return dst
}

// QueuedBytes implements [audio.Device].
func (d *Device) QueuedBytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advanceLocked()
	return d.queued
}

// advanceLocked removes the bytes played since the last call.
func (d *Device) advanceLocked() {
	now := d.now()
	elapsed := now.Sub(d.last)
	d.last = now
	if !d.playing || d.queued == 0 || elapsed <= 0 {
		return
	}
	d.credit += elapsed.Seconds() * float64(d.spec.SampleRate)
	whole := int(d.credit)
	d.credit -= float64(whole)
	d.queued = max(d.queued-whole*d.spec.FrameBytes(), 0)
	if d.queued == 0 {
		// Underrun: the hardware would play silence, not bank time.
		d.credit = 0
	}
}

// Pause implements [audio.Device].
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advanceLocked()
	d.playing = false
}

// Resume implements [audio.Device].
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advanceLocked()
	d.playing = true
}

// Close implements [audio.Device]. It finalises the WAV header.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *Device) closeLocked() error {
	d.open = false
	d.playing = false
	d.queued = 0
	if d.enc == nil {
		return nil
	}
	err := d.enc.Close()
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	d.enc, d.file, d.ibuf = nil, nil, nil
	if err != nil {
		return fmt.Errorf("filesink: finalise wav: %w", err)
	}
	return nil
}

// Path returns the file written by the most recent Open, or "" for a null
// sink.
func (d *Device) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}
