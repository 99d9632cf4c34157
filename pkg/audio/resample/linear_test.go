package resample

import (
	"math"
	"testing"

	"github.com/MrWong99/audiosync/pkg/audio"
)

func drain(l *Linear, block int) []float32 {
	var all []float32
	buf := make([]float32, block*l.channels)
	for {
		n := l.Receive(buf, block)
		if n == 0 {
			return all
		}
		all = append(all, buf[:n*l.channels]...)
	}
}

func TestLinear_UnityPassesThrough(t *testing.T) {
	t.Parallel()
	l := New()
	l.Configure(32000, 1, audio.EngineOptions{})

	l.Put([]float32{0, 1, 2, 3}, 4)
	got := drain(l, 16)
	want := []float32{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: got %f, want %f", i, got[i], want[i])
		}
	}

	// The held-back frame is emitted once the next chunk arrives.
	l.Put([]float32{4, 5}, 2)
	got = drain(l, 16)
	want = []float32{3, 4}
	if len(got) != len(want) {
		t.Fatalf("second put: got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("second put frame %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestLinear_HalfRateDoublesOutput(t *testing.T) {
	t.Parallel()
	l := New()
	l.Configure(16000, 1, audio.EngineOptions{})
	l.SetRate(0.5)

	l.Put([]float32{0, 1, 2}, 3)
	got := drain(l, 16)
	want := []float32{0, 0.5, 1, 1.5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("frame %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestLinear_TempoShortensOutput(t *testing.T) {
	t.Parallel()
	l := New()
	l.Configure(32000, 2, audio.EngineOptions{})
	l.SetTempo(2)

	in := make([]float32, 2*101)
	l.Put(in, 101)
	got := drain(l, 8)
	if frames := len(got) / 2; frames != 50 {
		t.Errorf("got %d frames, want 50", frames)
	}
}

func TestLinear_ReceiveRespectsMaxFrames(t *testing.T) {
	t.Parallel()
	l := New()
	l.Configure(32000, 2, audio.EngineOptions{})
	l.Put(make([]float32, 2*64), 64)

	buf := make([]float32, 2*16)
	if n := l.Receive(buf, 16); n != 16 {
		t.Fatalf("n = %d, want 16", n)
	}
	if b := l.Buffered(); b != 48 {
		t.Errorf("Buffered = %d, want 48", b)
	}
}

func TestLinear_IgnoresNonPositiveSettings(t *testing.T) {
	t.Parallel()
	l := New()
	l.SetRate(0)
	l.SetTempo(-1)
	if l.Rate() != 1 || l.Tempo() != 1 {
		t.Errorf("rate=%f tempo=%f, want 1, 1", l.Rate(), l.Tempo())
	}
}

func TestLinear_ClearDropsInput(t *testing.T) {
	t.Parallel()
	l := New()
	l.Configure(32000, 2, audio.EngineOptions{})
	l.Put(make([]float32, 2*10), 10)
	l.Clear()
	if n := l.Receive(make([]float32, 20), 10); n != 0 {
		t.Errorf("n = %d after Clear, want 0", n)
	}
}
