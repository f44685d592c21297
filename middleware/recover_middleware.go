package middleware

import (
	"context"
	"ext-bridge/message"
	"fmt"
	"log/slog"
)

// RecoverMiddleware turns a panicking handler into a HandlerFault response so one bad
// handler cannot take the channel down.
func RecoverMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (resp *message.Envelope) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error(fmt.Sprintf("%s - handler for %s panicked: %v", logPrefix, req.Target(), r))
					resp = faultResponse(req, message.NewFault(message.CodeHandlerFault, "panic: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}
