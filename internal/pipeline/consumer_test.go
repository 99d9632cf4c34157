package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/audiosync/pkg/audio"
	"github.com/MrWong99/audiosync/pkg/audio/mock"
)

const slotBytes = 256 * 8 // default slot, float32 stereo

// newTestConsumer builds a consumer over a 32000 Hz stream without starting
// a worker, so tests can drive process directly.
func newTestConsumer(t *testing.T, s Settings, format audio.SampleFormat) (*consumer, *Pipeline, *mock.Device, *mock.Engine) {
	t.Helper()
	dev := &mock.Device{}
	eng := &mock.Engine{}
	eng.Configure(32000, 2, audio.EngineOptions{})
	p := newTestPipeline(t, dev, s)

	spec := audio.DeviceSpec{SampleRate: 32000, Channels: 2, Format: format}
	pool, err := NewPool(s.SecondaryBufferCount, s.SecondaryBufferSize*spec.FrameBytes())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	low, high := watermarks(s, spec.SampleRate)
	st := &stream{
		settings:   s,
		sourceRate: 32000,
		spec:       spec,
		device:     dev,
		queue:      NewQueue(),
		pool:       pool,
		engine:     eng,
		conv:       &audio.FrameConverter{},
		low:        low,
		high:       high,
	}
	return newConsumer(p, st), p, dev, eng
}

// feedSteady processes n 512-frame chunks arriving exactly at game rate.
func feedSteady(c *consumer, n int) {
	for k := 1; k <= n; k++ {
		c.process(audio.Chunk{Data: rawChunk(512), Timestamp: time.Duration(k) * 16 * time.Millisecond})
	}
}

func TestConsumer_WarmUpPlaysAtSpeedFactor(t *testing.T) {
	t.Parallel()
	c, p, dev, eng := newTestConsumer(t, testSettings(), audio.FormatFloat32)
	p.SetSpeedFactor(150)
	dev.SetQueuedBytes(0) // dry, but warm-up ignores depth

	feedSteady(c, 10)
	if got := eng.LastTempo(); got != 1.5 {
		t.Errorf("tempo during warm-up = %v, want 1.5", got)
	}
	if p.Stats().Draining {
		t.Error("draining during warm-up")
	}
}

func TestConsumer_BetweenWatermarksConvergesToNominal(t *testing.T) {
	t.Parallel()
	c, p, dev, eng := newTestConsumer(t, testSettings(), audio.FormatFloat32)
	p.warmup.Store(1000)
	dev.SetQueuedBytes((c.ctl.low + c.ctl.high) / 2 * slotBytes)

	feedSteady(c, 60)
	if got := eng.LastTempo(); got != 1 {
		t.Errorf("tempo = %v, want 1", got)
	}
	if got := p.Stats().QueueDepth; got != (c.ctl.low+c.ctl.high)/2 {
		t.Errorf("QueueDepth = %d, want %d", got, (c.ctl.low+c.ctl.high)/2)
	}
}

func TestConsumer_AboveHighWatermarkSpeedsUp(t *testing.T) {
	t.Parallel()
	c, p, dev, eng := newTestConsumer(t, testSettings(), audio.FormatFloat32)
	p.warmup.Store(1000)
	dev.SetQueuedBytes((c.ctl.high + 10) * slotBytes)

	feedSteady(c, 5)
	if eng.TempoCount() != 5 {
		t.Fatalf("tempo applied %d times, want 5", eng.TempoCount())
	}
	for i, got := range eng.Tempos {
		if got <= 1 || got > 1+maxSpeedUp {
			t.Errorf("cycle %d: tempo = %v, want in (1, 1.5]", i, got)
		}
	}
	if !p.Stats().Draining {
		t.Error("Stats().Draining = false above high watermark")
	}
}

func TestConsumer_DryQueueSlowsDown(t *testing.T) {
	t.Parallel()
	c, p, dev, eng := newTestConsumer(t, testSettings(), audio.FormatFloat32)
	p.warmup.Store(1000)
	dev.SetQueuedBytes(0)

	feedSteady(c, 5)
	if p.Stats().Draining {
		t.Error("draining while dry")
	}
	got := eng.LastTempo()
	if got >= 1 {
		t.Errorf("tempo = %v, want below nominal", got)
	}
	if math.Abs(got-0.96) > 1e-9 {
		t.Errorf("tempo = %v, want 0.96", got)
	}
}

func TestConsumer_PassthroughFollowsSpeedOnly(t *testing.T) {
	t.Parallel()
	s := testSettings()
	s.TimeStretch = false
	c, p, dev, eng := newTestConsumer(t, s, audio.FormatFloat32)
	if c.strategy != StrategyPassthrough {
		t.Fatalf("strategy = %q", c.strategy)
	}
	p.warmup.Store(1000)
	dev.SetQueuedBytes(0)

	feedSteady(c, 3)
	if eng.TempoCount() != 1 || eng.LastTempo() != 1 {
		t.Fatalf("tempos = %v, want one call with 1", eng.Tempos)
	}
	p.SetSpeedFactor(200)
	feedSteady(c, 3)
	if eng.TempoCount() != 2 || eng.LastTempo() != 2 {
		t.Errorf("tempos = %v, want [1 2]", eng.Tempos)
	}
}

func TestConsumer_SubmitsWholeSlots(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		format audio.SampleFormat
		bytes  int
	}{
		{"float32", audio.FormatFloat32, 256 * 8},
		{"s16", audio.FormatS16, 256 * 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, p, dev, eng := newTestConsumer(t, testSettings(), tc.format)
			feedSteady(c, 1)

			if eng.PutFrames != 512 {
				t.Errorf("PutFrames = %d, want 512", eng.PutFrames)
			}
			if dev.SubmitCount() != 2 {
				t.Fatalf("submits = %d, want 2", dev.SubmitCount())
			}
			for i, b := range dev.Submitted {
				if len(b) != tc.bytes {
					t.Errorf("submit %d: %d bytes, want %d", i, len(b), tc.bytes)
				}
			}
			if p.Stats().Processed != 1 {
				t.Errorf("Processed = %d, want 1", p.Stats().Processed)
			}
		})
	}
}
