package oto

import (
	"bytes"
	"testing"
)

func TestStream_ReadPadsWithSilence(t *testing.T) {
	t.Parallel()
	s := newStream(4)
	s.write([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	p := bytes.Repeat([]byte{0xEE}, 12)
	n, err := s.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("Read = %d, %v; want %d, nil", n, err, len(p))
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0}
	if !bytes.Equal(p, want) {
		t.Errorf("Read filled %v, want %v", p, want)
	}
	if s.len() != 0 {
		t.Errorf("len = %d after full read, want 0", s.len())
	}
}

func TestStream_PartialReadKeepsOrder(t *testing.T) {
	t.Parallel()
	s := newStream(2)
	s.write([]byte{1, 2, 3, 4})
	s.write([]byte{5, 6})

	p := make([]byte, 4)
	_, _ = s.Read(p)
	if !bytes.Equal(p, []byte{1, 2, 3, 4}) {
		t.Errorf("first read = %v", p)
	}
	if s.len() != 2 {
		t.Fatalf("len = %d, want 2", s.len())
	}
	p = make([]byte, 2)
	_, _ = s.Read(p)
	if !bytes.Equal(p, []byte{5, 6}) {
		t.Errorf("second read = %v", p)
	}
}

func TestStream_WriteDropsPartialFrame(t *testing.T) {
	t.Parallel()
	s := newStream(4)
	s.write([]byte{1, 2, 3, 4, 5, 6})
	if s.len() != 4 {
		t.Errorf("len = %d, want 4", s.len())
	}
	s.reset()
	if s.len() != 0 {
		t.Errorf("len = %d after reset", s.len())
	}
}
