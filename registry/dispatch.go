package registry

import (
	"context"
	"encoding/json"
	"ext-bridge/message"
	"ext-bridge/middleware"
	"fmt"
	"log/slog"
)

// Dispatch serves an inbound Request or Notification. For a Request it returns the
// Response to send back; for a Notification it returns nil and only logs a failure.
func (r *Registry) Dispatch(ctx context.Context, env *message.Envelope) *message.Envelope {
	r.chainOnce.Do(func() {
		r.mu.RLock()
		mws := append([]middleware.Middleware(nil), r.middlewares...)
		r.mu.RUnlock()
		r.handler = middleware.Chain(mws...)(r.serve)
	})

	switch env.Kind {
	case message.KindRequest:
		return r.handler(ctx, env)
	case message.KindNotification:
		if resp := r.handler(ctx, env); resp != nil && resp.Fault != nil {
			slog.Warn(fmt.Sprintf("%s - notification %s dropped: %v", logPrefix, env.Target(), resp.Fault))
		}
		return nil
	default:
		slog.Warn(fmt.Sprintf("%s - cannot dispatch %s envelope seq=%d", logPrefix, env.Kind, env.Seq))
		return nil
	}
}

// serve is the innermost handler of the chain.
func (r *Registry) serve(ctx context.Context, req *message.Envelope) *message.Envelope {
	svc, ok := r.lookup(req.Service)
	if !ok {
		return message.NewResponse(req, nil, message.NewFault(message.CodeUnknownService, "no handler for %s", req.Service))
	}
	if !svc.has(req.Method) {
		return message.NewResponse(req, nil, message.NewFault(message.CodeUnknownMethod, "%s has no method %q", req.Service, req.Method))
	}

	var args []json.RawMessage
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &args); err != nil {
			return message.NewResponse(req, nil, message.NewFault(message.CodeBadArguments, "arguments of %s are not an array: %v", req.Target(), err))
		}
	}

	result, err := svc.call(ctx, req.Method, args)
	if err != nil {
		return message.NewResponse(req, nil, message.AsFault(err))
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return message.NewResponse(req, nil, message.NewFault(message.CodeHandlerFault, "encode result of %s: %v", req.Target(), err))
	}
	return message.NewResponse(req, payload, nil)
}
