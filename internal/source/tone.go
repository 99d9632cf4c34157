// Package source provides a synthetic emulated audio source. It behaves like
// an emulator's audio interface: it announces its DAC rate, then delivers
// fixed-size chunks of 16-bit stereo in the emulator's native channel order
// from a single producer goroutine, and exposes a speed-limiter flag.
package source

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/audiosync/pkg/audio"
)

// Sink receives the source's audio. It is satisfied by *pipeline.Pipeline.
type Sink interface {
	Ingest(data []byte)
	DacrateChanged(ctx context.Context, system audio.SystemType, dacrate uint32) error
}

// Config describes the emulated machine.
type Config struct {
	System      audio.SystemType
	Dacrate     uint32
	ToneHz      float64
	ChunkFrames int
	Limiter     bool
}

// Tone generates a sine tone, identical on both channels except for a
// quarter-period phase offset on the right so that channel order is audible.
type Tone struct {
	log *slog.Logger

	mu    sync.Mutex
	cfg   Config
	freq  int
	phase float64

	limiter atomic.Bool
}

// New returns a Tone. A nil log means [slog.Default].
func New(cfg Config, log *slog.Logger) *Tone {
	if log == nil {
		log = slog.Default()
	}
	t := &Tone{log: log, cfg: cfg}
	t.freq, _ = audio.DacrateFrequency(cfg.System, cfg.Dacrate)
	t.limiter.Store(cfg.Limiter)
	return t
}

// Limiter reports whether the speed limiter is on. Safe for concurrent use.
func (t *Tone) Limiter() bool { return t.limiter.Load() }

// SetLimiter turns the speed limiter on or off. Safe for concurrent use.
func (t *Tone) SetLimiter(on bool) { t.limiter.Store(on) }

// SetTone changes the tone frequency from the next chunk on.
func (t *Tone) SetTone(hz float64) {
	t.mu.Lock()
	t.cfg.ToneHz = hz
	t.mu.Unlock()
}

// Frequency returns the source sample rate derived from the DAC rate.
func (t *Tone) Frequency() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.freq
}

// Fill writes the next chunk into dst, which must hold ChunkFrames frames,
// and returns the filled slice. The left sample of each frame is stored in
// bytes 2..3 and the right sample in bytes 0..1.
func (t *Tone) Fill(dst []byte) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	frames := min(t.cfg.ChunkFrames, len(dst)/audio.FrameBytes)
	step := 2 * math.Pi * t.cfg.ToneHz / float64(max(t.freq, 1))
	for i := range frames {
		l := int16(math.Sin(t.phase) * 0.25 * math.MaxInt16)
		r := int16(math.Cos(t.phase) * 0.25 * math.MaxInt16)
		binary.LittleEndian.PutUint16(dst[i*4:], uint16(r))
		binary.LittleEndian.PutUint16(dst[i*4+2:], uint16(l))
		t.phase = math.Mod(t.phase+step, 2*math.Pi)
	}
	return dst[:frames*audio.FrameBytes]
}

// Run announces the DAC rate to sink and then feeds it chunks until ctx is
// done. It is the producer goroutine. With the limiter on it keeps real time
// itself, one chunk per chunk duration; with the limiter off it produces as
// fast as sink accepts, leaving the pacing to sink. Run returns nil on
// cancellation.
func (t *Tone) Run(ctx context.Context, sink Sink) error {
	t.mu.Lock()
	system, dacrate, frames := t.cfg.System, t.cfg.Dacrate, t.cfg.ChunkFrames
	freq := t.freq
	t.mu.Unlock()

	if err := sink.DacrateChanged(ctx, system, dacrate); err != nil {
		// Emulation carries on without sound.
		t.log.Warn("audio unavailable", slog.Any("err", err))
	}
	t.log.Info("source running",
		slog.String("system", system.String()),
		slog.Int("frequency", freq),
		slog.Int("chunk_frames", frames),
	)

	buf := make([]byte, frames*audio.FrameBytes)
	chunkDur := time.Duration(frames) * time.Second / time.Duration(max(freq, 1))
	ticker := time.NewTicker(chunkDur)
	defer ticker.Stop()
	for ctx.Err() == nil {
		sink.Ingest(t.Fill(buf))
		if t.Limiter() {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
	}
	return nil
}
