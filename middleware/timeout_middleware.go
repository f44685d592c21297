package middleware

import (
	"context"
	"ext-bridge/message"
	"fmt"
	"log/slog"
	"time"
)

// TimeOutMiddleware answers a Request with a Timeout fault when its handler runs longer
// than timeout. The handler keeps running with a cancelled context; its late result is
// discarded. Notifications pass straight through: they are dispatched one at a time in
// wire order, and abandoning one would let the next start while it still runs.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			if req.Kind == message.KindNotification {
				return next(ctx, req)
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Envelope, 1)
			go func() {
				// A recover further out cannot see a panic on this goroutine.
				defer func() {
					if r := recover(); r != nil {
						slog.Error(fmt.Sprintf("%s - handler for %s panicked: %v", logPrefix, req.Target(), r))
						done <- faultResponse(req, message.NewFault(message.CodeHandlerFault, "panic: %v", r))
					}
				}()
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return faultResponse(req, message.NewFault(message.CodeTimeout, "%s exceeded %s", req.Target(), timeout))
			}
		}
	}
}
