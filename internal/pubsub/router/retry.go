package router

import (
	"errors"
	"net"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/httpclient"
	"github.com/counterpos/counterpos/internal/logger"
)

// shouldRetry decides whether a failed sink delivery is redelivered.
// Malformed events and business rejections are dropped after logging.
func shouldRetry(log *logger.Logger, topic string, err error) bool {
	if httpErr, ok := httpclient.IsHTTPError(err); ok {
		log.Debugw("sink received http error",
			"topic", topic,
			"status_code", httpErr.StatusCode,
			"temporary", httpErr.Temporary(),
		)
		return httpErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case ierr.IsRetryable(err):
		return true
	case ierr.IsValidation(err),
		ierr.IsNotFound(err),
		ierr.IsPermissionDenied(err),
		ierr.IsInvalidOperation(err):
		return false
	}

	return true
}
