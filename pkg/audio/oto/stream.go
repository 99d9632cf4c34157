// Package oto provides an [audio.Device] backed by github.com/ebitengine/oto/v3.
//
// Oto allows a single context per process and fixes its sample rate and
// format at creation. The first Open creates the context with the requested
// parameters; later Opens are granted the context's parameters and the
// pipeline resamples to them. Device selection is not supported: the
// system default output is always used.
//
// Build with the headless tag to compile without the oto dependency; Open
// then fails with [ErrUnavailable].
package oto

import (
	"errors"
	"sync"
)

// ErrUnavailable is returned by Open when the binary was built without an
// audio backend.
var ErrUnavailable = errors.New("oto: audio backend not available in this build")

// stream is the io.Reader handed to the oto player. Submitted bytes are
// appended; reads take from the front and pad with silence so the player
// keeps its clock running through underruns.
type stream struct {
	mu    sync.Mutex
	data  []byte
	align int
}

func newStream(frameBytes int) *stream {
	return &stream{align: max(frameBytes, 1)}
}

// Read implements io.Reader. It never blocks and always fills p.
func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := copy(p, s.data)
	s.data = s.data[n:]
	if len(s.data) == 0 {
		s.data = s.data[:0:0]
	}
	clear(p[n:])
	return len(p), nil
}

// write appends whole frames of p.
func (s *stream) write(p []byte) {
	p = p[:len(p)-len(p)%s.align]
	s.mu.Lock()
	s.data = append(s.data, p...)
	s.mu.Unlock()
}

// len returns the number of queued bytes.
func (s *stream) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// reset drops all queued bytes.
func (s *stream) reset() {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
}
