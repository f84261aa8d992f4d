package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/summarizer/internal/httpapi/middleware"
)

// Health pings every dependency; any failure turns the answer into 503.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.Deps))
	for n := range h.Deps {
		names = append(names, n)
	}
	sort.Strings(names)

	checks := gin.H{}
	healthy := true
	for _, n := range names {
		if err := h.Deps[n].Ping(ctx); err != nil {
			healthy = false
			checks[n] = "down"
			middleware.LoggerFrom(c).Warn().Err(err).Str("dependency", n).Msg("health check failed")
			continue
		}
		checks[n] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"checks":    checks,
		"timestamp": isoTime(time.Now()),
	})
}
