package pipeline

import (
	"runtime"
	"time"
)

// BusyWaitMode selects how the producer waits out a pacing sleep.
type BusyWaitMode string

const (
	// BusyWaitAuto switches between sleeping and spinning with hysteresis,
	// spinning only while sleeps keep overshooting.
	BusyWaitAuto BusyWaitMode = "auto"
	// BusyWaitOff always sleeps.
	BusyWaitOff BusyWaitMode = "off"
	// BusyWaitAlways always spins.
	BusyWaitAlways BusyWaitMode = "always"
)

// Valid reports whether m is a known mode.
func (m BusyWaitMode) Valid() bool {
	switch m {
	case BusyWaitAuto, BusyWaitOff, BusyWaitAlways:
		return true
	}
	return false
}

// Pacing defaults.
const (
	DefaultResetThreshold = -5 * time.Second
	DefaultCatchUpLimit   = -100 * time.Millisecond
	DefaultMaxSleep       = 500 * time.Millisecond
	DefaultBusyWaitCount  = 30
)

// PacerConfig holds the pacing thresholds.
type PacerConfig struct {
	// ResetThreshold: a sleep below this restarts the epoch on the next event.
	ResetThreshold time.Duration
	// CatchUpLimit: a sleep below this moves the epoch forward by the same
	// amount so a brief stall does not make the producer sprint.
	CatchUpLimit time.Duration
	// MaxSleep at 100% speed. Scaled by 1/speed; longer sleeps reset the epoch.
	MaxSleep time.Duration
	// BusyWaitCount consecutive same-sign events toggle auto busy-wait.
	BusyWaitCount int
	Mode          BusyWaitMode
}

// DefaultPacerConfig returns the default thresholds in auto mode.
func DefaultPacerConfig() PacerConfig {
	return PacerConfig{
		ResetThreshold: DefaultResetThreshold,
		CatchUpLimit:   DefaultCatchUpLimit,
		MaxSleep:       DefaultMaxSleep,
		BusyWaitCount:  DefaultBusyWaitCount,
		Mode:           BusyWaitAuto,
	}
}

// Decision is the outcome of one [Pacer.Advance] call.
type Decision struct {
	// SleepNeeded is game time minus real time after this event. It is zero
	// while the emulator's own speed limiter is on.
	SleepNeeded time.Duration
	// Wait is true when the producer should block until Until.
	Wait  bool
	Until time.Time
	// BusyWait selects spinning over sleeping for this wait.
	BusyWait bool
	// Toggled is true when auto busy-wait changed state on this event.
	Toggled bool
}

// Pacer throttles the emulator thread while the emulator's own speed limiter
// is off, so that emitted audio tracks wall clock time at the configured
// speed. It is owned by the producer: all methods except construction must be
// called from that one goroutine.
type Pacer struct {
	cfg     PacerConfig
	now     func() time.Time
	sleep   func(time.Duration)
	onReset func()

	primed        bool
	epoch         time.Time
	elapsedFrames uint64
	lastSpeed     int
	lastLimiter   bool

	busyWait     bool
	enableCount  int
	disableCount int
}

// NewPacer returns a Pacer. onReset, when non-nil, runs whenever a fresh
// epoch starts.
func NewPacer(cfg PacerConfig, onReset func()) *Pacer {
	return &Pacer{
		cfg:      cfg,
		now:      time.Now,
		sleep:    time.Sleep,
		onReset:  onReset,
		busyWait: cfg.Mode == BusyWaitAlways,
	}
}

// Reset forces a fresh epoch on the next [Pacer.Mark].
func (p *Pacer) Reset() { p.primed = false }

// SetMode changes the busy-wait mode. Counters restart.
func (p *Pacer) SetMode(m BusyWaitMode) {
	p.cfg.Mode = m
	p.enableCount, p.disableCount = 0, 0
	p.busyWait = m == BusyWaitAlways
}

// BusyWaiting reports whether the next wait would spin.
func (p *Pacer) BusyWaiting() bool { return p.busyWait }

// Mark starts an ingest event at now. It restarts the epoch when the pacer
// is unprimed or the speed factor or limiter changed since the previous
// event, and returns the chunk timestamp relative to the epoch.
func (p *Pacer) Mark(now time.Time, speedPct int, limiter bool) time.Duration {
	if !p.primed || speedPct != p.lastSpeed || limiter != p.lastLimiter {
		p.epoch = now
		p.elapsedFrames = 0
		p.primed = true
		if p.onReset != nil {
			p.onReset()
		}
	}
	p.lastSpeed = speedPct
	p.lastLimiter = limiter
	return now.Sub(p.epoch)
}

// Advance accounts frames at sampleRate Hz for the event marked at now and
// decides how long the producer should wait. With the limiter on the source
// already runs in real time, so nothing beyond the frame count is updated.
func (p *Pacer) Advance(now time.Time, frames, sampleRate, speedPct int, limiter bool) Decision {
	p.elapsedFrames += uint64(frames)
	if limiter || sampleRate <= 0 || speedPct <= 0 {
		return Decision{}
	}

	speed := float64(speedPct) / 100
	game := time.Duration(float64(p.elapsedFrames) / float64(sampleRate) / speed * float64(time.Second))
	sleep := game - now.Sub(p.epoch)
	maxSleep := time.Duration(float64(p.cfg.MaxSleep) / speed)

	if sleep < p.cfg.ResetThreshold || sleep > maxSleep {
		p.primed = false
	}
	if sleep < p.cfg.CatchUpLimit {
		p.epoch = p.epoch.Add(-p.cfg.CatchUpLimit)
	}

	d := Decision{SleepNeeded: sleep}
	if p.cfg.Mode == BusyWaitAuto {
		d.Toggled = p.track(sleep)
	}
	if sleep > 0 && sleep < maxSleep {
		d.Wait = true
		d.Until = now.Add(sleep)
		d.BusyWait = p.busyWait
	}
	return d
}

// track updates the auto busy-wait hysteresis and reports a state change.
func (p *Pacer) track(sleep time.Duration) bool {
	if sleep <= 0 {
		p.enableCount++
		p.disableCount = 0
	} else {
		p.enableCount = 0
		p.disableCount++
	}
	switch {
	case !p.busyWait && p.enableCount >= p.cfg.BusyWaitCount:
		p.busyWait = true
	case p.busyWait && p.disableCount >= p.cfg.BusyWaitCount:
		p.busyWait = false
	default:
		return false
	}
	p.enableCount, p.disableCount = 0, 0
	return true
}

// Wait blocks according to d.
func (p *Pacer) Wait(d Decision) {
	if !d.Wait {
		return
	}
	if d.BusyWait {
		for p.now().Before(d.Until) {
			runtime.Gosched()
		}
		return
	}
	p.sleep(d.Until.Sub(p.now()))
}

