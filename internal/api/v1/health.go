package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/counterpos/counterpos/internal/logger"
	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db     Pinger
	logger *logger.Logger
}

func NewHealthHandler(db Pinger, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// @Summary Health check
// @Description Reports 503 while the database is unreachable
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.WithContext(ctx).Warnw("database ping failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
}
