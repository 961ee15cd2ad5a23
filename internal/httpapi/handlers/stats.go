package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/snapquestion/internal/answer"
	"github.com/suPer8Hu/snapquestion/internal/common"
)

func (h *Handler) GetTenantStats(c *gin.Context) {
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	if tenantID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "tenant_id required")
		return
	}

	ctx := answer.WithIdentityToken(c.Request.Context(), bearer(c))
	st, cached, err := h.Stats.Get(ctx, tenantID)
	if err != nil {
		var se *answer.StatusError
		if errors.As(err, &se) {
			switch se.Code {
			case http.StatusNotFound:
				common.Fail(c, http.StatusNotFound, 40403, "tenant not found")
				return
			case http.StatusUnauthorized, http.StatusForbidden:
				common.Fail(c, http.StatusForbidden, 40301, "not allowed to read tenant stats")
				return
			}
		}
		slog.ErrorContext(ctx, "tenant stats failed", "tenant_id", tenantID, "err", err)
		common.Fail(c, http.StatusBadGateway, 50201, "stats unavailable")
		return
	}

	common.OK(c, gin.H{"stats": st, "cached": cached})
}

// bearer returns the caller's own bearer token, if any, to forward upstream.
func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
