package cache

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// startSpan opens a db.cache span when the context carries a Sentry hub.
// The key is recorded without its value so membership entries never leave
// the process.
func startSpan(ctx context.Context, backend, operation, key string) *sentry.Span {
	if sentry.GetHubFromContext(ctx) == nil {
		return nil
	}
	span := sentry.StartSpan(ctx, "db.cache", sentry.WithDescription("cache."+backend+"."+operation))
	span.SetData("cache.backend", backend)
	if key != "" {
		span.SetData("cache.key", key)
	}
	return span
}

// finishSpan records the lookup result and closes the span. nil spans are ignored.
func finishSpan(span *sentry.Span, hit *bool) {
	if span == nil {
		return
	}
	if hit != nil {
		span.SetData("cache.hit", *hit)
	}
	span.Status = sentry.SpanStatusOK
	span.Finish()
}
