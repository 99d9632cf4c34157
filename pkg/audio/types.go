package audio

import "time"

// FrameBytes is the size of one interleaved 16-bit stereo source frame.
const FrameBytes = 4

// Chunk is one discrete unit of raw audio handed from the emulated source to
// the consumer. Chunks are the atomic unit of the ingest path: captured on an
// audio interrupt, converted to host channel order, queued, resampled, and
// released.
type Chunk struct {
	// Data holds interleaved signed 16-bit little-endian stereo samples in
	// host channel order. Its length is a multiple of [FrameBytes].
	Data []byte

	// Timestamp is the time elapsed since the start of the current playback
	// run when the chunk was captured. Timestamps never decrease across the
	// chunks of one run.
	Timestamp time.Duration
}

// Frames returns the number of stereo frames carried by the chunk.
func (c Chunk) Frames() int {
	return len(c.Data) / FrameBytes
}

// Duration returns the playback duration of the chunk at sampleRate.
func (c Chunk) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(c.Frames()) * int64(time.Second) / int64(sampleRate))
}
