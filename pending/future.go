package pending

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Outcome is the result of a remote call: exactly one of Value or Err is meaningful.
type Outcome struct {
	Value json.RawMessage
	Err   error
}

// Future is an exactly-once completion cell for an outcome that has not arrived yet.
// Continuations attached with Then run on whichever goroutine completes the future;
// callers that need a particular execution context must hop onto it themselves.
type Future struct {
	seq       uint32
	done      chan struct{}
	abandoned atomic.Bool

	mu        sync.Mutex
	completed bool
	outcome   Outcome
	thens     []func(Outcome)
}

func newFuture(seq uint32) *Future {
	return &Future{seq: seq, done: make(chan struct{})}
}

// Failed returns an already completed future carrying err. Used when a call fails
// before it could be registered.
func Failed(err error) *Future {
	f := newFuture(0)
	f.complete(Outcome{Err: err})
	return f
}

// Seq returns the correlation id the future is registered under, 0 if it never was.
func (f *Future) Seq() uint32 {
	return f.seq
}

// complete stores o and wakes every waiter. It reports false if the future was already
// completed, in which case o is discarded.
func (f *Future) complete(o Outcome) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.outcome = o
	thens := f.thens
	f.thens = nil
	close(f.done)
	f.mu.Unlock()

	if f.abandoned.Load() {
		return true
	}
	for _, fn := range thens {
		fn(o)
	}
	return true
}

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Outcome returns the outcome and whether it is available yet.
func (f *Future) Outcome() (Outcome, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome, f.completed
}

// Wait blocks until the outcome is available or ctx is done.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		o, _ := f.Outcome()
		return o.Value, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decode waits for the outcome and unmarshals a successful value into v.
func (f *Future) Decode(ctx context.Context, v any) error {
	raw, err := f.Wait(ctx)
	if err != nil {
		return err
	}
	if v == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Then registers fn to run with the outcome. If the outcome is already available fn runs
// immediately on the calling goroutine.
func (f *Future) Then(fn func(Outcome)) {
	f.mu.Lock()
	if !f.completed {
		f.thens = append(f.thens, fn)
		f.mu.Unlock()
		return
	}
	o := f.outcome
	f.mu.Unlock()

	if !f.abandoned.Load() {
		fn(o)
	}
}

// Abandon drops the caller's interest. The entry stays registered so a late response is
// still consumed harmlessly, but pending continuations no longer run.
func (f *Future) Abandon() {
	f.abandoned.Store(true)
}
