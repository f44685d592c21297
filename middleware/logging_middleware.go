package middleware

import (
	"context"
	"ext-bridge/message"
	"fmt"
	"log/slog"
	"time"
)

const logPrefix = "middleware:dispatch"

// LoggingMiddleware logs every inbound call with its duration, and its fault if any.
func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			start := time.Now()
			resp := next(ctx, req)
			duration := time.Since(start)

			slog.Debug(fmt.Sprintf("%s - %s %s seq=%d took %s", logPrefix, req.Kind, req.Target(), req.Seq, duration))
			if resp != nil && resp.Fault != nil {
				slog.Warn(fmt.Sprintf("%s - %s %s failed: %v", logPrefix, req.Kind, req.Target(), resp.Fault))
			}
			return resp
		}
	}
}
