package audio

// EngineOptions carries quality flags for an [Engine].
type EngineOptions struct {
	// QuickSeek trades stretch quality for lower CPU cost.
	QuickSeek bool

	// AntiAlias enables the anti-alias filter on rate conversion.
	AntiAlias bool
}

// Engine is a streaming resampling engine. Input and output samples are
// interleaved float32 in [-1, 1].
//
// The rate ratio is source rate / output rate. The tempo multiplier changes
// playback speed on top of that ratio; a tempo above 1 consumes input faster
// and produces fewer output frames.
//
// An Engine is owned by a single consumer goroutine and need not be safe for
// concurrent use.
type Engine interface {
	// Configure resets the engine for a stream of the given sample rate and
	// channel count.
	Configure(sampleRate, channels int, opts EngineOptions)

	// SetRate sets the source/output sample-rate ratio.
	SetRate(ratio float64)

	// SetTempo sets the tempo multiplier.
	SetTempo(tempo float64)

	// Put appends frames input frames taken from samples.
	Put(samples []float32, frames int)

	// Receive writes up to maxFrames output frames into out and returns the
	// number of frames written. It returns 0 once the engine has no complete
	// output frame available; callers drain it by calling Receive until then.
	Receive(out []float32, maxFrames int) int

	// Clear discards all buffered input and output.
	Clear()
}
