package middleware

import (
	"context"
	"ext-bridge/message"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware sheds inbound calls beyond a token bucket of r calls per second
// with the given burst.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			if !limiter.Allow() {
				return faultResponse(req, message.NewFault(message.CodeRateLimited, "rate limit exceeded"))
			}
			return next(ctx, req)
		}
	}
}
