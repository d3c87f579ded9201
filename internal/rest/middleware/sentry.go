package middleware

import (
	"time"

	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// SentryMiddleware attaches a hub to the request, captures panics and tags
// the request id. Tenant tags are added when an error is reported.
func SentryMiddleware(cfg *config.Configuration) []gin.HandlerFunc {
	if !cfg.Sentry.Enabled || cfg.Sentry.DSN == "" {
		return nil
	}

	return []gin.HandlerFunc{
		sentrygin.New(sentrygin.Options{
			Repanic:         true,
			WaitForDelivery: false,
			Timeout:         2 * time.Second,
		}),
		func(c *gin.Context) {
			if hub := sentrygin.GetHubFromContext(c); hub != nil {
				hub.Scope().SetTag("request_id", types.GetRequestID(c.Request.Context()))
				c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))
			}
			c.Next()
		},
	}
}
