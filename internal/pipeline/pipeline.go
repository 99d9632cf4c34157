// Package pipeline synchronises emulator audio with a host output device.
//
// The emulator thread calls [Pipeline.Ingest] with raw chunks. Ingest
// converts each chunk to interleaved L/R order, hands it to a [Queue] and,
// while the emulator's speed limiter is off, paces the caller against
// wall-clock time. A single consumer goroutine
// pops chunks, runs them through a resampling [audio.Engine] and submits
// fixed-size output buffers from a [Pool] to the [audio.Device]. With time
// stretch enabled the consumer steers the engine tempo from the device
// queue depth so that playback neither starves nor builds latency.
//
// Control operations (Open, DacrateChanged, Reconfigure, Close) tear down
// and rebuild the queue, pool, engine and consumer as a unit; no two
// consumers ever run at once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/audiosync/internal/observe"
	"github.com/MrWong99/audiosync/pkg/audio"
	"github.com/MrWong99/audiosync/pkg/audio/resample"
)

// ErrCriticalFailure is returned when the pipeline could not be initialised.
// Until the next [Pipeline.Open] every audio operation is a no-op.
var ErrCriticalFailure = errors.New("pipeline: critical failure")

// stream is everything built by one initialisation.
type stream struct {
	settings   Settings
	sourceRate int
	spec       audio.DeviceSpec
	device     audio.Device

	queue  *Queue
	pool   *Pool
	engine audio.Engine
	conv   *audio.FrameConverter

	primaryBytes int
	low, high    int
	strategy     string
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithEngine sets the factory for the resampling engine built on every
// initialisation. Default: [resample.New].
func WithEngine(newEngine func() audio.Engine) Option {
	return func(p *Pipeline) { p.newEngine = newEngine }
}

// WithLimiter sets the function reporting whether the emulator's own speed
// limiter is on. While it is on the emulator runs in real time and Ingest
// never sleeps; while it is off Ingest paces the producer. It is called on
// the producer thread once per chunk. Default: always on.
func WithLimiter(limiter func() bool) Option {
	return func(p *Pipeline) { p.limiter = limiter }
}

// WithClock replaces the wall clock and sleep used for pacing.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(p *Pipeline) {
		p.now = now
		p.sleep = sleep
	}
}

// Pipeline is the audio sync context. Ingest must only be called from a
// single producer goroutine; every other method is safe for concurrent use.
type Pipeline struct {
	device    audio.Device
	newEngine func() audio.Engine
	limiter   func() bool
	now       func() time.Time
	sleep     func(time.Duration)
	log       *slog.Logger
	metrics   *observe.Metrics

	// Control path.
	mu       sync.Mutex
	settings Settings
	freq     int
	worker   Worker

	// Published to the producer and consumer.
	stream       atomic.Pointer[stream]
	failed       atomic.Bool
	speedFactor  atomic.Int32
	resetPending atomic.Bool
	pendingMode  atomic.Pointer[BusyWaitMode]

	// Producer only.
	pacer *Pacer

	// warmup counts chunks processed since the last pacing reset.
	warmup atomic.Uint64

	// Stats.
	processed atomic.Uint64
	dropped   atomic.Uint64
	tempo     atomic.Uint64 // float64 bits
	depth     atomic.Int64
	draining  atomic.Bool
	busy      atomic.Bool
}

// New returns a closed pipeline driving dev. Call [Pipeline.Open] to start.
func New(dev audio.Device, s Settings, opts ...Option) *Pipeline {
	p := &Pipeline{
		device:    dev,
		newEngine: func() audio.Engine { return resample.New() },
		limiter:   func() bool { return true },
		now:       time.Now,
		sleep:     time.Sleep,
		log:       slog.Default(),
		settings:  s,
		freq:      s.DefaultFrequency,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.speedFactor.Store(int32(s.SpeedFactor))
	p.tempo.Store(math.Float64bits(1))

	cfg := DefaultPacerConfig()
	cfg.Mode = s.BusyWait
	p.pacer = NewPacer(cfg, p.onPacingReset)
	p.pacer.now = p.now
	p.pacer.sleep = p.sleep
	return p
}

// onPacingReset runs on the producer when pacing restarts. The consumer's
// warm-up restarts with it.
func (p *Pipeline) onPacingReset() {
	p.warmup.Store(0)
	p.metrics.PacingResets.Add(context.Background(), 1)
}

// Open clears any critical failure and initialises the pipeline at freq,
// or at the configured default frequency when freq is zero.
func (p *Pipeline) Open(ctx context.Context, freq int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failed.Store(false)
	if freq == 0 {
		freq = p.settings.DefaultFrequency
	}
	ctx, span := observe.StartControlSpan(ctx, "open", attribute.Int("frequency", freq))
	err := p.initLocked(ctx, freq)
	observe.EndSpan(span, err)
	return err
}

// DacrateChanged reinitialises the pipeline at the source rate derived from
// the emulator's DAC rate register. An unknown system keeps the current
// rate. It is a no-op in critical failure or when the rate is unchanged.
func (p *Pipeline) DacrateChanged(ctx context.Context, system audio.SystemType, dacrate uint32) error {
	if p.failed.Load() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	freq, ok := audio.DacrateFrequency(system, dacrate)
	if !ok {
		p.log.Warn("unknown system type, keeping source rate",
			slog.String("system", system.String()), slog.Int("frequency", p.freq))
		freq = p.freq
	}
	if freq == p.freq && p.stream.Load() != nil {
		return nil
	}

	ctx, span := observe.StartControlSpan(ctx, "dacrate_changed",
		attribute.String("system", system.String()),
		attribute.Int("dacrate", int(dacrate)),
		attribute.Int("frequency", freq),
	)
	err := p.initLocked(ctx, freq)
	observe.EndSpan(span, err)
	return err
}

// Reconfigure applies s. A running pipeline is rebuilt at its current
// source rate; otherwise s takes effect on the next Open.
func (p *Pipeline) Reconfigure(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("pipeline: reconfigure: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settings = s
	p.speedFactor.Store(int32(s.SpeedFactor))
	p.SetBusyWait(s.BusyWait)
	if p.stream.Load() == nil || p.failed.Load() {
		return nil
	}

	ctx, span := observe.StartControlSpan(ctx, "reconfigure")
	err := p.initLocked(ctx, p.freq)
	observe.EndSpan(span, err)
	return err
}

// Close stops the consumer, discards queued audio and closes the device.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

// SetSpeedFactor sets the emulation speed in percent. Values outside
// [MinSpeedFactor, MaxSpeedFactor] are ignored and false is returned.
func (p *Pipeline) SetSpeedFactor(pct int) bool {
	if pct < MinSpeedFactor || pct > MaxSpeedFactor {
		return false
	}
	p.speedFactor.Store(int32(pct))
	return true
}

// SpeedFactor returns the current speed factor in percent.
func (p *Pipeline) SpeedFactor() int { return int(p.speedFactor.Load()) }

// SetBusyWait changes the pacing busy-wait mode. The producer picks it up
// on its next Ingest. Unknown modes are ignored.
func (p *Pipeline) SetBusyWait(m BusyWaitMode) {
	if m.Valid() {
		p.pendingMode.Store(&m)
	}
}

// Failed reports whether the pipeline is in critical failure.
func (p *Pipeline) Failed() bool { return p.failed.Load() }

// Ingest accepts one raw chunk from the emulator thread. data is in the
// emulator's native channel order and is copied; the caller may reuse it.
// Ingest never returns an error: audio faults must not stop emulation.
// When the speed limiter is off it blocks until real time catches up with
// the audio produced so far.
func (p *Pipeline) Ingest(data []byte) {
	if p.failed.Load() {
		return
	}
	st := p.stream.Load()
	if st == nil {
		return
	}
	if p.resetPending.Swap(false) {
		p.pacer.Reset()
	}
	if m := p.pendingMode.Swap(nil); m != nil {
		p.pacer.SetMode(*m)
	}

	ctx := context.Background()
	limiter := p.limiter()
	speed := int(p.speedFactor.Load())
	now := p.now()
	ts := p.pacer.Mark(now, speed, limiter)

	dst := make([]byte, min(len(data), st.primaryBytes))
	n, err := st.conv.Convert(dst, data)
	switch {
	case err != nil:
		p.dropped.Add(1)
		p.metrics.RecordDrop(ctx, observe.DropOverflow, 1)
	case n > 0:
		st.queue.Push(audio.Chunk{Data: dst[:n], Timestamp: ts})
		p.metrics.ChunksIngested.Add(ctx, 1)
	}

	d := p.pacer.Advance(now, len(data)/audio.FrameBytes, st.sourceRate, speed, limiter)
	if d.Toggled {
		p.metrics.RecordBusyWait(ctx, p.pacer.BusyWaiting())
		p.log.Debug("busy-wait pacing toggled", slog.Bool("enabled", p.pacer.BusyWaiting()))
	}
	p.busy.Store(p.pacer.BusyWaiting())
	if d.Wait {
		p.metrics.PacingSleep.Record(ctx, d.SleepNeeded.Seconds())
	}
	p.pacer.Wait(d)
}

// initLocked rebuilds the stream at freq. Callers hold p.mu.
func (p *Pipeline) initLocked(ctx context.Context, freq int) error {
	log := observe.Logger(ctx, p.log)
	if freq < minFrequency {
		log.Debug("ignoring source rate below minimum", slog.Int("frequency", freq))
		return nil
	}
	if p.failed.Load() {
		return ErrCriticalFailure
	}
	if err := p.closeLocked(); err != nil {
		log.Warn("closing previous device", slog.Any("err", err))
	}

	p.freq = freq
	s := p.settings
	want := audio.DeviceSpec{
		SampleRate:   audio.SelectOutputRate(freq, s.SamplingRate),
		Channels:     2,
		Format:       audio.FormatFloat32,
		BufferFrames: s.SecondaryBufferSize,
		DeviceIndex:  s.DeviceIndex,
	}
	got, err := p.device.Open(want)
	if err != nil {
		return p.failLocked(ctx, fmt.Errorf("pipeline: open device: %w", err))
	}
	if got.Channels != want.Channels {
		_ = p.device.Close()
		return p.failLocked(ctx, fmt.Errorf("pipeline: device granted %d channels, need %d", got.Channels, want.Channels))
	}
	if got.Format != want.Format {
		log.Warn("device granted a different sample format",
			slog.String("want", want.Format.String()), slog.String("got", got.Format.String()))
	}

	pool, err := NewPool(s.SecondaryBufferCount, s.SecondaryBufferSize*got.FrameBytes())
	if err != nil {
		_ = p.device.Close()
		return p.failLocked(ctx, fmt.Errorf("pipeline: allocate output pool: %w", err))
	}

	speed := float64(p.speedFactor.Load()) / 100
	engine := p.newEngine()
	engine.Configure(freq, want.Channels, audio.EngineOptions{QuickSeek: true, AntiAlias: true})
	engine.SetRate(float64(freq) / float64(got.SampleRate))
	engine.SetTempo(speed)

	low, high := watermarks(s, got.SampleRate)
	st := &stream{
		settings:     s,
		sourceRate:   freq,
		spec:         got,
		device:       p.device,
		queue:        NewQueue(),
		pool:         pool,
		engine:       engine,
		conv:         &audio.FrameConverter{Swap: s.SwapChannels, Log: p.log},
		primaryBytes: s.PrimaryBufferSize * audio.FrameBytes,
		low:          low,
		high:         high,
	}
	p.tempo.Store(math.Float64bits(speed))
	p.depth.Store(0)
	p.draining.Store(false)

	c := newConsumer(p, st)
	st.strategy = c.strategy
	if err := p.worker.Start(c.run, st.queue.Wake); err != nil {
		_ = p.device.Close()
		return p.failLocked(ctx, fmt.Errorf("pipeline: start consumer: %w", err))
	}
	p.device.Resume()
	p.resetPending.Store(true)
	p.stream.Store(st)

	p.metrics.PipelineReinits.Add(ctx, 1)
	log.Info("audio pipeline initialised",
		slog.Int("source_rate", freq),
		slog.String("device", got.String()),
		slog.String("strategy", c.strategy),
		slog.Int("low_watermark", low),
		slog.Int("high_watermark", high),
	)
	return nil
}

// closeLocked tears down the current stream, if any. Callers hold p.mu.
func (p *Pipeline) closeLocked() error {
	st := p.stream.Swap(nil)
	if st == nil {
		return nil
	}
	p.worker.Stop()
	st.engine.Clear()
	p.device.Pause()
	return p.device.Close()
}

// failLocked enters critical failure. Callers hold p.mu.
func (p *Pipeline) failLocked(ctx context.Context, err error) error {
	p.failed.Store(true)
	p.metrics.PipelineFailures.Add(ctx, 1)
	observe.Logger(ctx, p.log).Error("audio pipeline failed, continuing without sound", slog.Any("err", err))
	return fmt.Errorf("%w: %w", ErrCriticalFailure, err)
}

// Stats is a point-in-time snapshot of the pipeline.
type Stats struct {
	Running    bool             `json:"running"`
	Failed     bool             `json:"failed"`
	Strategy   string           `json:"strategy,omitempty"`
	SourceRate int              `json:"source_rate"`
	Device     audio.DeviceSpec `json:"device"`
	Tempo      float64          `json:"tempo"`
	// QueueDepth is the last sampled device queue depth in output slots.
	QueueDepth int  `json:"queue_depth"`
	Draining   bool `json:"draining"`
	BusyWait   bool `json:"busy_wait"`
	// Queued is the number of chunks waiting for the consumer.
	Queued int `json:"queued"`
	// Processed counts chunks converted since the pipeline was created.
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Low       int    `json:"low_watermark"`
	High      int    `json:"high_watermark"`
}

// Stats returns a snapshot of the pipeline state.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Failed:     p.failed.Load(),
		Tempo:      math.Float64frombits(p.tempo.Load()),
		QueueDepth: int(p.depth.Load()),
		Draining:   p.draining.Load(),
		BusyWait:   p.busy.Load(),
		Processed:  p.processed.Load(),
		Dropped:    p.dropped.Load(),
	}
	if st := p.stream.Load(); st != nil {
		s.Running = true
		s.Strategy = st.strategy
		s.SourceRate = st.sourceRate
		s.Device = st.spec
		s.Queued = st.queue.Len()
		s.Low, s.High = st.low, st.high
	}
	return s
}
