package source

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/audiosync/pkg/audio"
)

type recordingSink struct {
	mu      sync.Mutex
	chunks  [][]byte
	dacrate []uint32
	ingest  func()
}

func (s *recordingSink) Ingest(data []byte) {
	s.mu.Lock()
	s.chunks = append(s.chunks, append([]byte(nil), data...))
	hook := s.ingest
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (s *recordingSink) DacrateChanged(_ context.Context, _ audio.SystemType, dacrate uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dacrate = append(s.dacrate, dacrate)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func TestTone_FrequencyFromDacrate(t *testing.T) {
	t.Parallel()
	tone := New(Config{System: audio.SystemPAL, Dacrate: 1520, ChunkFrames: 16}, nil)
	if got, want := tone.Frequency(), 49656530/1521; got != want {
		t.Errorf("Frequency = %d, want %d", got, want)
	}
}

func TestTone_FillUsesEmulatorChannelOrder(t *testing.T) {
	t.Parallel()
	tone := New(Config{System: audio.SystemNTSC, Dacrate: 1520, ToneHz: 440, ChunkFrames: 64}, nil)
	buf := tone.Fill(make([]byte, 64*audio.FrameBytes))
	if len(buf) != 64*audio.FrameBytes {
		t.Fatalf("len = %d", len(buf))
	}

	// At phase zero the left (sine) sample is silent and the right (cosine)
	// sample is at its peak.
	right := int16(binary.LittleEndian.Uint16(buf[0:]))
	left := int16(binary.LittleEndian.Uint16(buf[2:]))
	if left != 0 || right < 8000 {
		t.Errorf("first frame left=%d right=%d, want 0 and near peak", left, right)
	}

	// After conversion to host order the left sample comes first.
	var conv audio.FrameConverter
	host := make([]byte, len(buf))
	if _, err := conv.Convert(host, buf); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got := int16(binary.LittleEndian.Uint16(host[0:])); got != left {
		t.Errorf("host first sample = %d, want left %d", got, left)
	}
}

func TestTone_PhaseContinuesAcrossChunks(t *testing.T) {
	t.Parallel()
	cfg := Config{System: audio.SystemNTSC, Dacrate: 1520, ToneHz: 440, ChunkFrames: 32}
	whole := New(Config{System: cfg.System, Dacrate: cfg.Dacrate, ToneHz: cfg.ToneHz, ChunkFrames: 64}, nil)
	split := New(cfg, nil)

	want := whole.Fill(make([]byte, 64*audio.FrameBytes))
	got := append(split.Fill(make([]byte, 32*audio.FrameBytes)), split.Fill(make([]byte, 32*audio.FrameBytes))...)
	for i := 0; i < len(want); i += 2 {
		a := int16(binary.LittleEndian.Uint16(want[i:]))
		b := int16(binary.LittleEndian.Uint16(got[i:]))
		if d := a - b; d > 1 || d < -1 {
			t.Fatalf("sample %d: %d vs %d", i/2, a, b)
		}
	}
}

func TestTone_RunAnnouncesRateAndStops(t *testing.T) {
	t.Parallel()
	tone := New(Config{System: audio.SystemNTSC, Dacrate: 1447, ToneHz: 440, ChunkFrames: 128, Limiter: false}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	sink.ingest = func() {
		if sink.count() >= 5 {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- tone.Run(ctx, sink) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if len(sink.dacrate) != 1 || sink.dacrate[0] != 1447 {
		t.Errorf("dacrate announcements = %v, want [1447]", sink.dacrate)
	}
	if n := sink.count(); n != 5 {
		t.Errorf("chunks = %d, want 5", n)
	}
	for i, c := range sink.chunks {
		if len(c) != 128*audio.FrameBytes {
			t.Errorf("chunk %d: %d bytes", i, len(c))
		}
	}
}

func TestTone_LimiterOnKeepsRealTime(t *testing.T) {
	t.Parallel()
	tone := New(Config{System: audio.SystemNTSC, Dacrate: 1447, ToneHz: 440, ChunkFrames: 256, Limiter: true}, nil)
	chunkDur := 256 * time.Second / time.Duration(tone.Frequency())
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	sink.ingest = func() {
		if sink.count() >= 5 {
			cancel()
		}
	}

	start := time.Now()
	if err := tone.Run(ctx, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 4*chunkDur {
		t.Errorf("5 chunks took %v, want at least %v", elapsed, 4*chunkDur)
	}
}

func TestTone_LimiterFlag(t *testing.T) {
	t.Parallel()
	tone := New(Config{Limiter: true}, nil)
	if !tone.Limiter() {
		t.Fatal("Limiter = false, want true")
	}
	tone.SetLimiter(false)
	if tone.Limiter() {
		t.Error("SetLimiter(false) ignored")
	}
}
