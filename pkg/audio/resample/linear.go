// Package resample provides a pure-Go streaming resampling engine for the
// audio pipeline.
//
// [Linear] converts between sample rates by linear interpolation and applies
// the tempo multiplier as part of the same interpolation step, so a tempo
// change also shifts pitch slightly. Within the narrow tempo band the drift
// controller uses this is inaudible for emulator audio; backends that need
// pitch-preserving time stretch can supply their own [audio.Engine].
package resample

import "github.com/MrWong99/audiosync/pkg/audio"

// Compile-time interface assertion.
var _ audio.Engine = (*Linear)(nil)

// Linear is a streaming linear-interpolation [audio.Engine]. The fractional
// read position is carried across Put calls so that chunk boundaries do not
// produce discontinuities.
type Linear struct {
	sampleRate int
	channels   int
	opts       audio.EngineOptions

	rate  float64
	tempo float64

	in  []float32 // pending interleaved input
	pos float64   // read position in frames relative to in[0]
}

// New returns a stereo Linear engine with unity rate and tempo.
func New() *Linear {
	return &Linear{
		channels: 2,
		rate:     1,
		tempo:    1,
	}
}

// Configure implements [audio.Engine]. It discards buffered audio.
func (l *Linear) Configure(sampleRate, channels int, opts audio.EngineOptions) {
	l.sampleRate = sampleRate
	if channels > 0 {
		l.channels = channels
	}
	l.opts = opts
	l.Clear()
}

// SetRate implements [audio.Engine]. Non-positive ratios are ignored.
func (l *Linear) SetRate(ratio float64) {
	if ratio > 0 {
		l.rate = ratio
	}
}

// SetTempo implements [audio.Engine]. Non-positive tempos are ignored.
func (l *Linear) SetTempo(tempo float64) {
	if tempo > 0 {
		l.tempo = tempo
	}
}

// Rate returns the current rate ratio.
func (l *Linear) Rate() float64 { return l.rate }

// Tempo returns the current tempo multiplier.
func (l *Linear) Tempo() float64 { return l.tempo }

// Put implements [audio.Engine].
func (l *Linear) Put(samples []float32, frames int) {
	n := min(frames*l.channels, len(samples))
	l.in = append(l.in, samples[:n]...)
}

// Receive implements [audio.Engine]. The last input frame is held back until
// more input arrives because it is needed as the right-hand interpolation
// point.
func (l *Linear) Receive(out []float32, maxFrames int) int {
	ch := l.channels
	maxFrames = min(maxFrames, len(out)/ch)
	frames := len(l.in) / ch
	step := l.rate * l.tempo

	n := 0
	for n < maxFrames {
		i := int(l.pos)
		if i+1 >= frames {
			break
		}
		frac := float32(l.pos - float64(i))
		a := l.in[i*ch : i*ch+ch]
		b := l.in[(i+1)*ch : (i+1)*ch+ch]
		for c := range ch {
			out[n*ch+c] = a[c]*(1-frac) + b[c]*frac
		}
		n++
		l.pos += step
	}

	l.compact(frames)
	return n
}

// Buffered returns the number of input frames not yet consumed.
func (l *Linear) Buffered() int {
	return len(l.in)/l.channels - int(l.pos)
}

// Clear implements [audio.Engine].
func (l *Linear) Clear() {
	l.in = l.in[:0]
	l.pos = 0
}

// compact drops fully consumed input frames from the front of the buffer.
func (l *Linear) compact(frames int) {
	drop := min(int(l.pos), frames)
	if drop <= 0 {
		return
	}
	rest := copy(l.in, l.in[drop*l.channels:])
	l.in = l.in[:rest]
	l.pos -= float64(drop)
}
