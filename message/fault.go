package message

import (
	"errors"
	"fmt"
)

// FaultCode classifies why a call did not produce a value.
type FaultCode string

const (
	CodeChannelClosed  FaultCode = "ChannelClosed"  // transport unavailable
	CodeUnknownService FaultCode = "UnknownService" // no contract or handler for the service id
	CodeUnknownMethod  FaultCode = "UnknownMethod"  // service known, method not
	CodeTimeout        FaultCode = "Timeout"        // caller-imposed deadline elapsed
	CodeHandlerFault   FaultCode = "HandlerFault"   // a local handler failed while serving a remote call
	CodeBadArguments   FaultCode = "BadArguments"   // arguments do not decode into the handler parameters
	CodeRateLimited    FaultCode = "RateLimited"    // inbound dispatch shed by the rate limiter
)

// Fault is the error descriptor of a failed call. It crosses the wire as-is.
type Fault struct {
	Code    FaultCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

var (
	// ErrChannelClosed is the outcome of every pending and new call once the channel is gone.
	ErrChannelClosed = &Fault{Code: CodeChannelClosed, Message: "channel closed"}
	// ErrNotConnected is returned by proxies whose session has no channel attached yet.
	ErrNotConnected = &Fault{Code: CodeChannelClosed, Message: "channel not connected"}
	// ErrTimeout is the outcome a caller-layered timeout resolves a pending call with.
	ErrTimeout = &Fault{Code: CodeTimeout, Message: "request timed out"}
)

// NewFault builds a fault with a formatted message.
func NewFault(code FaultCode, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (f *Fault) Error() string {
	if f == nil {
		return ""
	}
	if f.Message == "" {
		return string(f.Code)
	}
	return string(f.Code) + ": " + f.Message
}

// Is reports whether target is a Fault with the same code, so errors.Is(err, ErrChannelClosed)
// holds for any channel-closed fault regardless of message.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok || f == nil || t == nil {
		return false
	}
	return f.Code == t.Code
}

// AsFault converts err into a Fault. Faults pass through; anything else becomes a HandlerFault.
func AsFault(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Code: CodeHandlerFault, Message: err.Error()}
}

// CodeOf returns the fault code carried by err, or "" if err is not a fault.
func CodeOf(err error) FaultCode {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}
