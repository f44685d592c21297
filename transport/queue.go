package transport

import (
	"ext-bridge/protocol"
	"sync"
)

// outFrame is a frame encoded by Send and waiting for the writer.
type outFrame struct {
	header protocol.Header
	body   []byte
}

// queue is an unbounded FIFO with close semantics. Senders never wait for the writer;
// Push only takes the lock long enough to append.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []outFrame
	head   int
	closed bool
	sealed bool // no more pushes, but Pop hands out the backlog
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends f and reports false if the queue is already closed.
func (q *queue) Push(f outFrame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.sealed {
		return false
	}
	q.items = append(q.items, f)
	q.cond.Signal()
	return true
}

// Pop blocks until a frame is available. It returns false once the queue is closed, or
// once a sealed queue is empty. Frames still queued when Close runs are dropped.
func (q *queue) Pop() (outFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && !q.sealed && q.head >= len(q.items) {
		q.cond.Wait()
	}
	if q.closed || q.head >= len(q.items) {
		return outFrame{}, false
	}

	f := q.items[q.head]
	q.items[q.head] = outFrame{}
	q.head++
	q.compact()
	return f, true
}

// Seal refuses further pushes while leaving the backlog for Pop.
func (q *queue) Seal() {
	q.mu.Lock()
	q.sealed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.head = 0
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *queue) compact() {
	if q.head < 1024 && q.head*2 < len(q.items) {
		return
	}
	remaining := copy(q.items, q.items[q.head:])
	q.items = q.items[:remaining]
	q.head = 0
}
