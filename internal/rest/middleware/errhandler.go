package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/sentry"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last handler error as ierr.ErrorResponse. Server
// side failures are logged and reported; client errors only carry their hint.
func ErrorHandler(log *logger.Logger, sentrySvc *sentry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		ctx := c.Request.Context()

		status := ierr.HTTPStatusFromErr(err)
		if status >= http.StatusInternalServerError {
			log.WithContext(ctx).Errorw("request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"status", status,
				"error", err,
			)
			sentrySvc.CaptureException(ctx, err)
		}

		c.JSON(status, ierr.ErrorResponse{
			Success: false,
			Error: ierr.ErrorDetail{
				Code:    ierr.CodeFromErr(err),
				Display: getDisplayMessage(err),
				Details: getSafeDetails(err),
			},
		})
	}
}

func getDisplayMessage(err error) string {
	// GetAllHints is a post-order traversal, the first non-empty hint is the innermost
	for _, hint := range errors.GetAllHints(err) {
		if hint = strings.TrimSpace(hint); hint != "" {
			return hint
		}
	}
	return "An unexpected error occurred"
}

func getSafeDetails(err error) map[string]any {
	details := make(map[string]any)

	for _, sdp := range errors.GetAllSafeDetails(err) {
		for _, payload := range sdp.SafeDetails {
			jsonStr, ok := strings.CutPrefix(payload, "__json__:")
			if !ok {
				continue
			}
			var jsonDetails map[string]any
			if err := json.Unmarshal([]byte(jsonStr), &jsonDetails); err == nil {
				for k, v := range jsonDetails {
					details[k] = v
				}
			}
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}
