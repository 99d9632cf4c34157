package pipeline

import (
	"encoding/binary"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/audiosync/internal/observe"
	"github.com/MrWong99/audiosync/pkg/audio"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testSettings() Settings {
	s := DefaultSettings()
	s.PollTimeout = 50 * time.Millisecond
	return s
}

// newTestPipeline returns a pipeline with the emulator's speed limiter on so
// Ingest never sleeps. It is closed when the test ends.
func newTestPipeline(t *testing.T, dev audio.Device, s Settings, opts ...Option) *Pipeline {
	t.Helper()
	base := []Option{
		WithMetrics(testMetrics(t)),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithLimiter(func() bool { return true }),
	}
	p := New(dev, s, append(base, opts...)...)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// rawChunk returns frames of emulator-order PCM with distinct samples.
func rawChunk(frames int) []byte {
	b := make([]byte, frames*audio.FrameBytes)
	for i := range frames * 2 {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(int16(i%2000-1000)))
	}
	return b
}

// frozenClock returns a clock that only moves when slept on, and the list of
// sleeps it recorded.
func frozenClock() (now func() time.Time, sleep func(time.Duration), slept *[]time.Duration) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var s []time.Duration
	return func() time.Time { return clock },
		func(d time.Duration) {
			s = append(s, d)
			clock = clock.Add(d)
		},
		&s
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
