package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"ext-bridge/message"
	"ext-bridge/pending"
	"sync"
	"testing"
)

// recordingSender keeps every envelope it is asked to send.
type recordingSender struct {
	mu   sync.Mutex
	sent []*message.Envelope
	err  error
}

func (s *recordingSender) Send(env *message.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, env)
	return nil
}

var commands = Contract{
	Service: "ExtHostCommands",
	Methods: map[string]message.CallKind{
		"executeContributedCommand":     message.Request,
		"acceptCommandsChanged":         message.Notification,
		"getContributedCommandMetadata": message.Request,
	},
}

func TestNotifySendsWithoutRegistering(t *testing.T) {
	sender := &recordingSender{}
	table := pending.NewTable()
	p := New(commands, sender, table)

	if err := p.Notify("acceptCommandsChanged", "a", 1); err != nil {
		t.Fatal(err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expect 1 envelope, got %d", len(sender.sent))
	}
	env := sender.sent[0]
	if env.Kind != message.KindNotification || env.Seq != 0 {
		t.Fatalf("expect notification with no seq, got %v seq %d", env.Kind, env.Seq)
	}
	if string(env.Payload) != `["a",1]` {
		t.Fatalf("expect ordered args, got %s", env.Payload)
	}
	if table.Len() != 0 {
		t.Fatal("notifications must not register pending entries")
	}
}

func TestNotifyReportsSendFailureSynchronously(t *testing.T) {
	sender := &recordingSender{err: message.ErrChannelClosed}
	p := New(commands, sender, pending.NewTable())

	if err := p.Notify("acceptCommandsChanged"); !errors.Is(err, message.ErrChannelClosed) {
		t.Fatalf("expect ChannelClosed, got %v", err)
	}
}

func TestRequestRegistersBeforeSend(t *testing.T) {
	table := pending.NewTable()
	var seenPending int
	sender := senderFunc(func(env *message.Envelope) error {
		seenPending = table.Len()
		return nil
	})
	p := New(commands, sender, table)

	fut := p.Request("executeContributedCommand", "editor.action.format")
	if seenPending != 1 {
		t.Fatalf("expect entry registered before send, saw %d", seenPending)
	}

	table.Resolve(fut.Seq(), pending.Outcome{Value: json.RawMessage(`"done"`)})
	var got string
	if err := fut.Decode(context.Background(), &got); err != nil || got != "done" {
		t.Fatalf("expect done, got %q %v", got, err)
	}
}

func TestRequestSendFailureResolvesFuture(t *testing.T) {
	table := pending.NewTable()
	p := New(commands, &recordingSender{err: message.ErrChannelClosed}, table)

	fut := p.Request("getContributedCommandMetadata")
	if _, err := fut.Wait(context.Background()); !errors.Is(err, message.ErrChannelClosed) {
		t.Fatalf("expect ChannelClosed, got %v", err)
	}
	if table.Len() != 0 {
		t.Fatal("failed send leaked a pending entry")
	}
}

func TestCallKindIsEnforced(t *testing.T) {
	sender := &recordingSender{}
	p := New(commands, sender, pending.NewTable())

	if err := p.Notify("executeContributedCommand"); message.CodeOf(err) != message.CodeUnknownMethod {
		t.Fatalf("expect UnknownMethod for wrong kind, got %v", err)
	}
	if _, err := p.Request("acceptCommandsChanged").Wait(context.Background()); message.CodeOf(err) != message.CodeUnknownMethod {
		t.Fatalf("expect UnknownMethod for wrong kind, got %v", err)
	}
	if err := p.Notify("nope"); message.CodeOf(err) != message.CodeUnknownMethod {
		t.Fatalf("expect UnknownMethod for undeclared method, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("rejected calls must not reach the wire")
	}
}

func TestProxyWithoutChannelFailsFast(t *testing.T) {
	p := New(commands, nil, pending.NewTable())

	if err := p.Notify("acceptCommandsChanged"); !errors.Is(err, message.ErrNotConnected) {
		t.Fatalf("expect not connected, got %v", err)
	}
	if _, err := p.Request("executeContributedCommand").Wait(context.Background()); !errors.Is(err, message.ErrChannelClosed) {
		t.Fatalf("expect channel-closed fault, got %v", err)
	}
}

func TestArgumentsAreNotMutated(t *testing.T) {
	sender := &recordingSender{}
	p := New(commands, sender, pending.NewTable())

	args := map[string]int{"a": 1}
	if err := p.Notify("acceptCommandsChanged", args); err != nil {
		t.Fatal(err)
	}
	args["a"] = 2

	if string(sender.sent[0].Payload) != `[{"a":1}]` {
		t.Fatalf("payload must snapshot the args, got %s", sender.sent[0].Payload)
	}
}

type senderFunc func(env *message.Envelope) error

func (f senderFunc) Send(env *message.Envelope) error { return f(env) }

func TestMethodNamesSorted(t *testing.T) {
	names := commands.MethodNames()
	if len(names) != 3 || names[0] != "acceptCommandsChanged" {
		t.Fatalf("unexpected names %v", names)
	}
}
