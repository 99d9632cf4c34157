//go:build !headless

package oto

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	ebioto "github.com/ebitengine/oto/v3"

	"github.com/MrWong99/audiosync/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

// The oto context is process-wide.
var (
	ctxMu   sync.Mutex
	otoCtx  *ebioto.Context
	ctxSpec audio.DeviceSpec
)

// Device plays through the process-wide oto context.
type Device struct {
	log *slog.Logger

	mu     sync.Mutex
	spec   audio.DeviceSpec
	player *ebioto.Player
	src    *stream
}

// New returns a Device. A nil log means [slog.Default].
func New(log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}
	return &Device{log: log}
}

// Open implements [audio.Device].
func (d *Device) Open(want audio.DeviceSpec) (audio.DeviceSpec, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.closeLocked()
	}

	ctx, got, err := sharedContext(want)
	if err != nil {
		return audio.DeviceSpec{}, err
	}
	if want.DeviceIndex >= 0 {
		d.log.Warn("oto always uses the default output device", slog.Int("requested", want.DeviceIndex))
	}

	d.spec = got
	d.src = newStream(got.FrameBytes())
	d.player = ctx.NewPlayer(d.src)
	if got.BufferFrames > 0 {
		d.player.SetBufferSize(got.BufferFrames * got.FrameBytes())
	}
	return got, nil
}

// sharedContext returns the process-wide context, creating it from want on first
// use.
func sharedContext(want audio.DeviceSpec) (*ebioto.Context, audio.DeviceSpec, error) {
	ctxMu.Lock()
	defer ctxMu.Unlock()
	if otoCtx != nil {
		if err := otoCtx.Resume(); err != nil {
			return nil, audio.DeviceSpec{}, fmt.Errorf("oto: resume context: %w", err)
		}
		got := ctxSpec
		got.BufferFrames = want.BufferFrames
		return otoCtx, got, nil
	}

	format := ebioto.FormatFloat32LE
	if want.Format == audio.FormatS16 {
		format = ebioto.FormatSignedInt16LE
	}
	opts := &ebioto.NewContextOptions{
		SampleRate:   want.SampleRate,
		ChannelCount: want.Channels,
		Format:       format,
	}
	if want.SampleRate > 0 && want.BufferFrames > 0 {
		opts.BufferSize = time.Duration(want.BufferFrames) * time.Second / time.Duration(want.SampleRate)
	}
	ctx, ready, err := ebioto.NewContext(opts)
	if err != nil {
		return nil, audio.DeviceSpec{}, fmt.Errorf("oto: new context: %w", err)
	}
	<-ready

	otoCtx = ctx
	ctxSpec = audio.DeviceSpec{
		SampleRate:   want.SampleRate,
		Channels:     want.Channels,
		Format:       want.Format,
		BufferFrames: want.BufferFrames,
		DeviceIndex:  -1,
	}
	return otoCtx, ctxSpec, nil
}

// Submit implements [audio.Device].
func (d *Device) Submit(p []byte) error {
	d.mu.Lock()
	src := d.src
	d.mu.Unlock()
	if src == nil {
		return fmt.Errorf("oto: submit on closed device")
	}
	src.write(p)
	return nil
}

// QueuedBytes implements [audio.Device]. It counts bytes waiting in the
// device queue plus those buffered inside the player.
func (d *Device) QueuedBytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return 0
	}
	return d.src.len() + d.player.BufferedSize()
}

// Pause implements [audio.Device].
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.Pause()
	}
}

// Resume implements [audio.Device].
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.Play()
	}
}

// Close implements [audio.Device]. The shared context is suspended, not
// destroyed, so a later Open can resume it.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	d.closeLocked()

	ctxMu.Lock()
	defer ctxMu.Unlock()
	if otoCtx != nil {
		if err := otoCtx.Suspend(); err != nil {
			return fmt.Errorf("oto: suspend context: %w", err)
		}
	}
	return nil
}

func (d *Device) closeLocked() {
	if err := d.player.Close(); err != nil {
		d.log.Debug("closing oto player", slog.Any("err", err))
	}
	d.src.reset()
	d.player = nil
	d.src = nil
}
