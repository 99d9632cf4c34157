package pipeline

import (
	"context"
	"log/slog"
	"math"

	"github.com/MrWong99/audiosync/internal/observe"
	"github.com/MrWong99/audiosync/pkg/audio"
)

// Consumer strategies.
const (
	// StrategyStretch steers tempo from the device queue depth so that
	// playback tracks the emulator clock.
	StrategyStretch = "stretch"
	// StrategyPassthrough only follows the user speed factor and leaves
	// clock drift uncorrected.
	StrategyPassthrough = "passthrough"
)

// consumer drains one stream's queue through its engine into the device.
// All of its state is confined to the worker goroutine.
type consumer struct {
	p   *Pipeline
	st  *stream
	log *slog.Logger
	ctx context.Context

	strategy string
	in       []float32
	out      []float32

	// stretch
	stats *feedStats
	ctl   *tempoController

	// passthrough
	lastSpeed int32
}

func newConsumer(p *Pipeline, st *stream) *consumer {
	c := &consumer{
		p:        p,
		st:       st,
		ctx:      context.Background(),
		strategy: StrategyPassthrough,
		out:      make([]float32, st.settings.SecondaryBufferSize*st.spec.Channels),
	}
	if st.settings.TimeStretch {
		c.strategy = StrategyStretch
		c.stats = newFeedStats()
		c.ctl = newTempoController(st.low, st.high, st.settings.SecondaryBufferCount)
	}
	c.log = p.log.With(slog.String("strategy", c.strategy))
	return c
}

// run is the worker loop. Chunks still queued when shutdown is observed are
// discarded and counted; a chunk already popped is always finished.
func (c *consumer) run(w *Worker) {
	c.log.Debug("consumer started", slog.String("device", c.st.spec.String()))
	for !w.Stopping() {
		chunk, ok := c.st.queue.TryPop(c.st.settings.PollTimeout)
		if !ok {
			continue
		}
		c.process(chunk)
	}
	if n := c.st.queue.Discard(); n > 0 {
		c.p.dropped.Add(uint64(n))
		c.p.metrics.RecordDrop(c.ctx, observe.DropShutdown, int64(n))
		c.log.Debug("discarded queued chunks on shutdown", slog.Int("chunks", n))
	}
	c.log.Debug("consumer stopped")
}

func (c *consumer) process(chunk audio.Chunk) {
	if c.ctl != nil {
		c.adjustTempo()
	} else {
		c.followSpeed()
	}

	c.feed(chunk)

	c.p.warmup.Add(1)
	c.p.processed.Add(1)
	c.p.metrics.RecordProcessed(c.ctx, c.strategy)
	if c.stats != nil {
		c.stats.observe(chunk.Timestamp, chunk.Frames(), c.st.sourceRate)
	}
}

// depth returns the device queue depth in output slots.
func (c *consumer) depth() int {
	return c.st.device.QueuedBytes() / c.st.pool.SlotBytes()
}

func (c *consumer) adjustTempo() {
	depth := c.depth()
	c.p.depth.Store(int64(depth))
	c.p.metrics.QueueDepth.Record(c.ctx, int64(depth))
	if depth < c.ctl.low {
		c.p.metrics.Underruns.Add(c.ctx, 1)
	}

	// Until the device queue has been filled once there is no meaningful
	// depth to steer by; play at the user speed.
	if c.p.warmup.Load() < uint64(c.st.settings.SecondaryBufferCount) {
		c.setTempo(float64(c.p.speedFactor.Load()) / 100)
		return
	}

	tempo, apply, entered := c.ctl.update(depth, c.stats.nominal())
	c.p.draining.Store(c.ctl.drain)
	if entered {
		c.p.metrics.DrainEntered.Add(c.ctx, 1)
		c.log.Debug("device queue above high watermark, draining",
			slog.Int("depth", depth), slog.Int("high", c.ctl.high))
	}
	if apply {
		c.setTempo(tempo)
	}
}

func (c *consumer) followSpeed() {
	speed := c.p.speedFactor.Load()
	if speed == c.lastSpeed {
		return
	}
	c.lastSpeed = speed
	c.setTempo(float64(speed) / 100)
}

func (c *consumer) setTempo(t float64) {
	c.st.engine.SetTempo(t)
	c.p.tempo.Store(math.Float64bits(t))
	c.p.metrics.Tempo.Record(c.ctx, t)
}

// feed pushes chunk through the engine and submits every produced slot.
func (c *consumer) feed(chunk audio.Chunk) {
	samples := len(chunk.Data) / 2
	if cap(c.in) < samples {
		c.in = make([]float32, samples)
	}
	n := audio.S16ToFloat32(c.in[:samples], chunk.Data)
	c.st.engine.Put(c.in[:n], n/2)

	ch := c.st.spec.Channels
	for {
		frames := c.st.engine.Receive(c.out, c.st.settings.SecondaryBufferSize)
		if frames == 0 {
			return
		}
		slot := c.st.pool.AcquireNext()
		nb := audio.Encode(c.st.spec.Format, slot, c.out[:frames*ch])
		if err := c.st.device.Submit(slot[:nb]); err != nil {
			c.p.metrics.RecordDrop(c.ctx, observe.DropSubmit, 1)
			c.log.Debug("device submit failed", slog.Any("err", err))
			continue
		}
		c.p.metrics.OutputFrames.Add(c.ctx, int64(frames))
	}
}
