// Package middleware wraps the dispatch of calls arriving from the remote side.
//
// A HandlerFunc always returns a response envelope; for notifications the session
// only logs its fault instead of sending it back.
package middleware

import (
	"context"
	"ext-bridge/message"
)

type HandlerFunc func(ctx context.Context, req *message.Envelope) *message.Envelope

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one listed runs outermost:
// Chain(A, B)(h) == A(B(h)).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

func faultResponse(req *message.Envelope, fault *message.Fault) *message.Envelope {
	return message.NewResponse(req, nil, fault)
}
