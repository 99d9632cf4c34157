package pipeline

import (
	"sync"
	"time"

	list "github.com/bahlo/generic-list-go"

	"github.com/MrWong99/audiosync/pkg/audio"
)

// Queue is the unbounded FIFO between the emulator thread and the consumer
// worker. Push never blocks on the consumer; TryPop waits up to a timeout.
//
// Chunks are stored in a linked list so that pushes never copy existing
// entries, regardless of how far the consumer falls behind.
type Queue struct {
	mu    sync.Mutex
	items *list.List[audio.Chunk]

	// notify carries at most one pending "item available" signal.
	notify chan struct{}
	// wake carries at most one pending "stop waiting" signal.
	wake chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		items:  list.New[audio.Chunk](),
		notify: make(chan struct{}, 1),
		wake:   make(chan struct{}, 1),
	}
}

// Push appends c to the tail of the queue and signals a waiting consumer.
func (q *Queue) Push(c audio.Chunk) {
	q.mu.Lock()
	q.items.PushBack(c)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the head of the queue. When the queue is empty
// it waits up to timeout for a push. It returns false on timeout, or early
// when [Queue.Wake] is called.
func (q *Queue) TryPop(timeout time.Duration) (audio.Chunk, bool) {
	if c, ok := q.pop(); ok {
		return c, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			// A stale signal from an earlier push can arrive after the
			// item was already taken; keep waiting in that case.
			if c, ok := q.pop(); ok {
				return c, true
			}
		case <-q.wake:
			return q.pop()
		case <-timer.C:
			return q.pop()
		}
	}
}

// Wake makes a pending or the next TryPop return without waiting for the
// full timeout.
func (q *Queue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued chunks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Discard removes every queued chunk and returns how many were removed.
func (q *Queue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.items.Len()
	q.items.Init()
	return n
}

func (q *Queue) pop() (audio.Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.items.Front()
	if e == nil {
		return audio.Chunk{}, false
	}
	q.items.Remove(e)
	return e.Value, true
}
