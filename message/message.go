// Package message defines the envelopes exchanged between the host and the extension runtime.
//
// Envelope is the unit of every remote interaction. It gets serialized by the codec layer
// and wrapped in a protocol frame; the frame header carries the kind and the correlation id,
// the body carries everything else.
package message

import "encoding/json"

// ServiceID names one logical service contract. Identical ids on both ends name the same contract.
type ServiceID string

// Kind tells a receiver what to do with an envelope.
type Kind byte

const (
	KindRequest      Kind = 0 // Call that expects exactly one correlated Response
	KindResponse     Kind = 1 // Outcome of a Request, matched by Seq
	KindNotification Kind = 3 // One-way call, no Seq, no Response
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// CallKind is fixed for every method when its contract is declared.
type CallKind byte

const (
	Request      CallKind = CallKind(KindRequest)
	Notification CallKind = CallKind(KindNotification)
)

// Kind returns the envelope kind used to carry a call of this kind.
func (c CallKind) Kind() Kind {
	return Kind(c)
}

func (c CallKind) String() string {
	return Kind(c).String()
}

// Envelope carries a single call or the response to one.
//
//   - Request / Notification: Service and Method are set, Payload is a JSON array of the ordered arguments.
//   - Response: Payload is the JSON result, Fault is non-nil if the call failed.
//
// Kind and Seq travel in the frame header, never in the body.
type Envelope struct {
	Kind    Kind            `json:"-"`
	Seq     uint32          `json:"-"` // Correlation id, only meaningful for Request and Response
	Service ServiceID       `json:"service,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Fault   *Fault          `json:"fault,omitempty"`
}

// NewResponse builds the response to req carrying either payload or fault.
func NewResponse(req *Envelope, payload json.RawMessage, fault *Fault) *Envelope {
	return &Envelope{
		Kind:    KindResponse,
		Seq:     req.Seq,
		Service: req.Service,
		Method:  req.Method,
		Payload: payload,
		Fault:   fault,
	}
}

// Target returns "Service.Method", used in logs.
func (e *Envelope) Target() string {
	return string(e.Service) + "." + e.Method
}
