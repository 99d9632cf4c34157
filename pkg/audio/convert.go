package audio

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"sync"
)

// ErrOverflow is returned by [FrameConverter.Convert] when the destination
// buffer is smaller than the source data.
var ErrOverflow = errors.New("audio: destination buffer overflow")

// FrameConverter reorders raw interleaved 16-bit stereo frames delivered by
// the emulated source into host channel order. The emulated source stores the
// right channel first; unless Swap is set, each frame's two samples are
// exchanged. With Swap set the source order is kept, which swaps the audible
// left and right channels.
//
// A FrameConverter holds no per-call state besides its warn-once guards and is
// meant for a single producer.
type FrameConverter struct {
	Swap bool
	// Log receives the converter's warnings. Nil means [slog.Default].
	Log *slog.Logger

	warnedPartial sync.Once
}

func (c *FrameConverter) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// Convert writes the reordered frames of src into dst and returns the number
// of bytes written. A trailing partial frame is ignored. If dst cannot hold
// all of src, nothing is written, a warning is logged, and [ErrOverflow] is
// returned; the caller is expected to drop the chunk.
func (c *FrameConverter) Convert(dst, src []byte) (int, error) {
	if len(src) > len(dst) {
		c.logger().Warn("audio frame converter: source exceeds buffer capacity, dropping chunk",
			"bytes", len(src),
			"capacity", len(dst),
		)
		return 0, ErrOverflow
	}

	n := len(src) - len(src)%FrameBytes
	if n != len(src) {
		c.warnedPartial.Do(func() {
			c.logger().Warn("audio frame converter: chunk length is not a whole number of frames, truncating",
				"bytes", len(src),
			)
		})
	}

	if c.Swap {
		copy(dst[:n], src[:n])
		return n, nil
	}
	for i := 0; i < n; i += FrameBytes {
		// Left channel
		dst[i] = src[i+2]
		dst[i+1] = src[i+3]
		// Right channel
		dst[i+2] = src[i]
		dst[i+3] = src[i+1]
	}
	return n, nil
}

// S16ToFloat32 converts little-endian int16 PCM in pcm to float32 samples in
// out, scaling by 1/32767. It returns the number of samples written, bounded
// by len(out).
func S16ToFloat32(out []float32, pcm []byte) int {
	n := min(len(pcm)/2, len(out))
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32767.0
	}
	return n
}

// EncodeFloat32LE writes samples into dst as little-endian IEEE float32 and
// returns the number of bytes written. dst must hold 4 bytes per sample.
func EncodeFloat32LE(dst []byte, samples []float32) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
	return len(samples) * 4
}

// EncodeS16LE writes samples into dst as little-endian int16, clamping to the
// int16 range, and returns the number of bytes written. dst must hold 2 bytes
// per sample.
func EncodeS16LE(dst []byte, samples []float32) int {
	for i, s := range samples {
		v := int32(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v)))
	}
	return len(samples) * 2
}

// Encode writes samples into dst using format f and returns the number of
// bytes written.
func Encode(f SampleFormat, dst []byte, samples []float32) int {
	if f == FormatS16 {
		return EncodeS16LE(dst, samples)
	}
	return EncodeFloat32LE(dst, samples)
}
