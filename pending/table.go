// Package pending correlates responses with the requests that produced them.
//
// Every outgoing Request registers a Future under a fresh sequence number before it is
// handed to the channel, so a response can never arrive ahead of its registration.
// Removal from the table and completion of the future form one step: whoever takes the
// entry out is the only one allowed to complete it.
package pending

import (
	"ext-bridge/message"
	"sync"
	"sync/atomic"
	"time"
)

// Table tracks in-flight requests for one channel.
type Table struct {
	mu       sync.Mutex
	entries  map[uint32]*Future
	lastSeq  uint32
	closed   bool
	closeErr error

	registered atomic.Uint64
	resolved   atomic.Uint64
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[uint32]*Future)}
}

// Register allocates a correlation id and stores a future for it. It fails with the
// closure error once the table has been drained.
func (t *Table) Register() (uint32, *Future, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, nil, t.closeErr
	}

	// Seq 0 is reserved for notifications; skip ids still pending after wraparound.
	seq := t.lastSeq
	for {
		seq++
		if seq == 0 {
			continue
		}
		if _, busy := t.entries[seq]; !busy {
			break
		}
	}
	t.lastSeq = seq

	f := newFuture(seq)
	t.entries[seq] = f
	t.registered.Add(1)
	return seq, f, nil
}

// Resolve removes the entry for seq and completes it with o. Unknown ids (already
// resolved, timed out, or drained) are ignored and report false.
func (t *Table) Resolve(seq uint32, o Outcome) bool {
	f := t.take(seq)
	if f == nil {
		return false
	}
	t.resolved.Add(1)
	return f.complete(o)
}

// Drain completes every remaining entry with err and permanently closes the table.
// Only the first call does anything; it returns the number of entries it failed.
func (t *Table) Drain(err error) int {
	if err == nil {
		err = message.ErrChannelClosed
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0
	}
	t.closed = true
	t.closeErr = err
	drained := make([]*Future, 0, len(t.entries))
	for seq, f := range t.entries {
		drained = append(drained, f)
		delete(t.entries, seq)
	}
	t.mu.Unlock()

	for _, f := range drained {
		t.resolved.Add(1)
		f.complete(Outcome{Err: err})
	}
	return len(drained)
}

// WithTimeout resolves f's entry with a Timeout fault unless a response arrives within d.
// A response arriving after the deadline finds no entry and is dropped.
func (t *Table) WithTimeout(f *Future, d time.Duration) *Future {
	timer := time.AfterFunc(d, func() {
		t.Resolve(f.Seq(), Outcome{Err: message.ErrTimeout})
	})
	f.Then(func(Outcome) { timer.Stop() })
	return f
}

// Len returns the number of requests still awaiting a response.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Closed reports whether the table has been drained.
func (t *Table) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Stats returns how many entries were registered and how many were resolved so far.
func (t *Table) Stats() (registered, resolved uint64) {
	return t.registered.Load(), t.resolved.Load()
}

func (t *Table) take(seq uint32) *Future {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.entries[seq]
	if !ok {
		return nil
	}
	delete(t.entries, seq)
	return f
}
