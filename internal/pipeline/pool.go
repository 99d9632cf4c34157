package pipeline

import (
	"errors"
	"fmt"
)

// ErrPoolSize is returned by [NewPool] for a ring that cannot rotate.
var ErrPoolSize = errors.New("pipeline: output pool needs at least two slots of non-zero size")

// Pool is a fixed ring of equally sized output buffers. The consumer encodes
// each device submission into the next slot, so no allocation happens on
// the hot path. Slots are reused strictly in ring order.
type Pool struct {
	slots [][]byte
	next  int
}

// NewPool allocates count slots of slotBytes bytes each.
func NewPool(count, slotBytes int) (*Pool, error) {
	if count < 2 || slotBytes <= 0 {
		return nil, fmt.Errorf("%w: count=%d slot=%d", ErrPoolSize, count, slotBytes)
	}
	backing := make([]byte, count*slotBytes)
	slots := make([][]byte, count)
	for i := range slots {
		slots[i] = backing[i*slotBytes : (i+1)*slotBytes : (i+1)*slotBytes]
	}
	return &Pool{slots: slots}, nil
}

// AcquireNext returns the next slot in ring order, wrapping at the end.
func (p *Pool) AcquireNext() []byte {
	b := p.slots[p.next]
	p.next++
	if p.next == len(p.slots) {
		p.next = 0
	}
	return b
}

// Len returns the number of slots.
func (p *Pool) Len() int { return len(p.slots) }

// SlotBytes returns the size of each slot.
func (p *Pool) SlotBytes() int { return len(p.slots[0]) }
