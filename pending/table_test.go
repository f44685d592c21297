package pending

import (
	"context"
	"encoding/json"
	"errors"
	"ext-bridge/message"
	"sync"
	"testing"
	"time"
)

func TestRegisterResolve(t *testing.T) {
	table := NewTable()

	seq, fut, err := table.Register()
	if err != nil {
		t.Fatal(err)
	}
	if seq == 0 {
		t.Fatal("seq 0 is reserved for notifications")
	}

	if !table.Resolve(seq, Outcome{Value: json.RawMessage(`"pong"`)}) {
		t.Fatal("expect first resolve to succeed")
	}
	if table.Resolve(seq, Outcome{Value: json.RawMessage(`"again"`)}) {
		t.Fatal("expect second resolve to be a no-op")
	}

	var got string
	if err := fut.Decode(context.Background(), &got); err != nil {
		t.Fatal(err)
	}
	if got != "pong" {
		t.Fatalf("expect pong, got %q", got)
	}
	if table.Len() != 0 {
		t.Fatalf("expect empty table, got %d entries", table.Len())
	}
}

func TestResolveUnknownSeqIsNoop(t *testing.T) {
	table := NewTable()
	if table.Resolve(12345, Outcome{}) {
		t.Fatal("expect unknown seq to be ignored")
	}
}

func TestSeqUniqueAmongPending(t *testing.T) {
	table := NewTable()
	seen := map[uint32]bool{}
	for i := 0; i < 100; i++ {
		seq, _, err := table.Register()
		if err != nil {
			t.Fatal(err)
		}
		if seen[seq] {
			t.Fatalf("duplicate seq %d", seq)
		}
		seen[seq] = true
	}
}

func TestSeqWraparoundSkipsBusyIDs(t *testing.T) {
	table := NewTable()
	seq1, _, _ := table.Register() // 1 stays pending

	table.lastSeq = ^uint32(0) - 1
	seqMax, _, _ := table.Register()
	seqNext, _, _ := table.Register()

	if seqMax != ^uint32(0) {
		t.Fatalf("expect max seq, got %d", seqMax)
	}
	if seqNext == 0 || seqNext == seq1 {
		t.Fatalf("wraparound must skip 0 and busy id %d, got %d", seq1, seqNext)
	}
}

func TestDrainResolvesEveryPendingCall(t *testing.T) {
	table := NewTable()
	const k = 25

	futures := make([]*Future, 0, k)
	for i := 0; i < k; i++ {
		_, fut, err := table.Register()
		if err != nil {
			t.Fatal(err)
		}
		futures = append(futures, fut)
	}

	if n := table.Drain(message.ErrChannelClosed); n != k {
		t.Fatalf("expect %d drained, got %d", k, n)
	}
	if n := table.Drain(message.ErrChannelClosed); n != 0 {
		t.Fatalf("second drain must do nothing, drained %d", n)
	}

	for i, fut := range futures {
		_, err := fut.Wait(context.Background())
		if !errors.Is(err, message.ErrChannelClosed) {
			t.Fatalf("future %d: expect ChannelClosed, got %v", i, err)
		}
	}

	if table.Len() != 0 {
		t.Fatalf("expect empty table, got %d", table.Len())
	}
	if table.Resolve(futures[0].Seq(), Outcome{}) {
		t.Fatal("late response after drain must be a no-op")
	}
	if _, _, err := table.Register(); !errors.Is(err, message.ErrChannelClosed) {
		t.Fatalf("expect Register after drain to fail with ChannelClosed, got %v", err)
	}

	registered, resolved := table.Stats()
	if registered != resolved {
		t.Fatalf("registrations %d != resolutions %d", registered, resolved)
	}
}

func TestConcurrentResolveAndDrain(t *testing.T) {
	table := NewTable()
	const n = 200

	var completions sync.WaitGroup
	var mu sync.Mutex
	calls := map[uint32]int{}

	seqs := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		seq, fut, err := table.Register()
		if err != nil {
			t.Fatal(err)
		}
		seqs = append(seqs, seq)
		completions.Add(1)
		fut.Then(func(Outcome) {
			mu.Lock()
			calls[seq]++
			mu.Unlock()
			completions.Done()
		})
	}

	var wg sync.WaitGroup
	for _, seq := range seqs {
		wg.Add(1)
		go func(seq uint32) {
			defer wg.Done()
			table.Resolve(seq, Outcome{Value: json.RawMessage(`1`)})
		}(seq)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		table.Drain(message.ErrChannelClosed)
	}()
	wg.Wait()
	completions.Wait()

	for _, seq := range seqs {
		if calls[seq] != 1 {
			t.Fatalf("seq %d completed %d times", seq, calls[seq])
		}
	}
	registered, resolved := table.Stats()
	if registered != n || resolved != n {
		t.Fatalf("expect %d/%d, got registered=%d resolved=%d", n, n, registered, resolved)
	}
}

func TestWithTimeout(t *testing.T) {
	table := NewTable()
	seq, fut, _ := table.Register()
	table.WithTimeout(fut, 20*time.Millisecond)

	_, err := fut.Wait(context.Background())
	if !errors.Is(err, message.ErrTimeout) {
		t.Fatalf("expect Timeout fault, got %v", err)
	}

	// The remote side replies after the deadline: dropped without effect.
	if table.Resolve(seq, Outcome{Value: json.RawMessage(`"late"`)}) {
		t.Fatal("late response must not resolve a timed-out call")
	}
}

func TestWithTimeoutBeatenByResponse(t *testing.T) {
	table := NewTable()
	seq, fut, _ := table.Register()
	table.WithTimeout(fut, time.Second)

	table.Resolve(seq, Outcome{Value: json.RawMessage(`true`)})

	var ok bool
	if err := fut.Decode(context.Background(), &ok); err != nil || !ok {
		t.Fatalf("expect true, got %v, %v", ok, err)
	}
}
