package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/snapquestion/internal/common"
)

func (h *Handler) Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// Healthz reports this service as up; the backend status is informational.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	backend := gin.H{"ok": false}
	if hc, err := h.Backend.HealthCheck(ctx); err != nil {
		slog.WarnContext(ctx, "backend health check failed", "err", err)
		backend["error"] = "unreachable"
	} else {
		backend["ok"] = hc.OK
		backend["service"] = hc.Service
	}

	common.OK(c, gin.H{
		"ok":             true,
		"service":        "snapquestion-web",
		"backend":        backend,
		"active_widgets": h.Widgets.Len(),
	})
}
