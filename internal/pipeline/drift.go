package pipeline

import (
	"math"
	"time"
)

// Drift controller constants.
const (
	minTempo   = 0.2
	maxTempo   = 300.0
	maxSpeedUp = 0.5
	slowDown   = 0.05
	// tempoStepPct quantises applied tempos to 4% steps.
	tempoStepPct = 4.0

	// referenceRate and referenceSlot define the queue sizes the watermarks
	// are expressed in.
	referenceRate = 33600.0
	referenceSlot = 256.0

	// highHeadroom is how many slots above target the queue may grow before
	// draining starts; the ring always keeps ringReserve slots spare.
	highHeadroom = 30
	ringReserve  = 20
)

// Rolling feed statistics constants.
const (
	defaultChunkSeconds = 0.01666
	initialWindow       = 50
	maxWindow           = 500
)

// watermarks returns the low and high device queue marks, in output slots,
// for the given settings and output rate.
func watermarks(s Settings, outputRate int) (low, high int) {
	mult := float64(outputRate) / referenceRate * (referenceSlot / float64(s.SecondaryBufferSize))
	low = int(float64(s.TargetSecondaryBuffers) * mult)
	high = int(float64(s.TargetSecondaryBuffers+highHeadroom) * mult)
	high = min(high, s.SecondaryBufferCount-ringReserve)
	high = max(high, low)
	return low, high
}

// tempoController decides the tempo applied to the engine from the device
// queue depth and the nominal tempo. Above the high mark it enters drain
// mode and speeds up in proportion to the overfill; drain mode persists
// until the queue runs dry, at which point it slows down slightly.
type tempoController struct {
	low, high int
	ring      int

	drain   bool
	current float64
	applied float64
}

func newTempoController(low, high, ring int) *tempoController {
	return &tempoController{low: low, high: high, ring: ring, current: 1, applied: 1}
}

// update returns the quantised tempo and whether it should be applied.
// enteredDrain reports a transition into drain mode.
func (t *tempoController) update(depth int, nominal float64) (tempo float64, apply, enteredDrain bool) {
	dry := depth < t.low
	switch {
	case (depth > t.high || t.drain) && !dry:
		enteredDrain = !t.drain
		t.drain = true
		over := 0.0
		if span := t.ring - t.low; span > 0 {
			over = float64(depth-t.low) / float64(span) * maxSpeedUp
		}
		t.current = nominal + min(max(over, 0), maxSpeedUp)
	case dry:
		t.drain = false
		t.current = nominal - slowDown
	case depth < t.high:
		t.current = nominal
	}

	if t.current > minTempo && t.current < maxTempo {
		t.applied = quantiseTempo(t.current)
		return t.applied, true, enteredDrain
	}
	return t.applied, false, enteredDrain
}

func quantiseTempo(v float64) float64 {
	return math.Round(v*100/tempoStepPct) * tempoStepPct / 100
}

// feedStats keeps rolling averages of the wall-clock gap between chunks and
// the game time each chunk carries. Their ratio is the nominal tempo: the
// speed at which the game is producing audio relative to real time.
type feedStats struct {
	feed, game [maxWindow]float64
	next, seen int
	window     int
	prev       time.Duration

	avgFeed, avgGame float64
}

func newFeedStats() *feedStats {
	return &feedStats{
		window:  initialWindow,
		avgFeed: defaultChunkSeconds,
		avgGame: defaultChunkSeconds,
	}
}

// observe records a chunk stamped ts carrying frames at sampleRate.
func (s *feedStats) observe(ts time.Duration, frames, sampleRate int) {
	game := float64(frames) / float64(sampleRate)
	feed := (ts - s.prev).Seconds()
	if feed < 0 {
		// Timestamps restart with every pacing epoch.
		feed = game
	}
	s.feed[s.next] = feed
	s.game[s.next] = game
	s.prev = ts
	s.next = (s.next + 1) % maxWindow
	s.seen++

	n := min(s.seen, s.window)
	var sumFeed, sumGame float64
	for i := range n {
		j := (s.next - 1 - i + maxWindow) % maxWindow
		sumFeed += s.feed[j]
		sumGame += s.game[j]
	}
	s.avgFeed = sumFeed / float64(n)
	s.avgGame = sumGame / float64(n)

	// Short chunks arrive more often; widen the window to keep the
	// averaged span near constant.
	if s.avgGame > 0 {
		s.window = min(max(int(defaultChunkSeconds/s.avgGame*initialWindow), 1), maxWindow)
	}
}

// nominal returns avgGame/avgFeed. A zero feed average yields +Inf, which
// the tempo controller rejects.
func (s *feedStats) nominal() float64 {
	if s.avgFeed <= 0 {
		return math.Inf(1)
	}
	return s.avgGame / s.avgFeed
}
