package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/snapquestion/internal/auth"
	"github.com/suPer8Hu/snapquestion/internal/common"
	"github.com/suPer8Hu/snapquestion/internal/logger"
	"github.com/suPer8Hu/snapquestion/internal/widget"
)

const (
	WidgetSessionIDKey  = "widget_session_id"
	WidgetControllerKey = "widget_controller"

	WidgetSessionHeader = "X-Widget-Session"
	WidgetSessionCookie = "sq_widget"
)

// SetWidgetCookie stores the session token for the widget routes. Embedding
// pages are third-party, which needs SameSite=None and therefore TLS.
func SetWidgetCookie(c *gin.Context, token string, ttl time.Duration, secure bool) {
	if secure {
		c.SetSameSite(http.SameSiteNoneMode)
	}
	c.SetCookie(WidgetSessionCookie, token, int(ttl.Seconds()), "/widget", "", secure, true)
}

// WidgetSession resolves the mounted widget from the session token (header
// first, then cookie). The registry keeps active sessions alive, so a token
// past half its ttl is re-issued in the response header and cookie.
func WidgetSession(secret string, ttl time.Duration, secureCookie bool, reg *widget.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := strings.TrimSpace(c.GetHeader(WidgetSessionHeader))
		if tok == "" {
			tok, _ = c.Cookie(WidgetSessionCookie)
		}
		if tok == "" {
			common.Abort(c, http.StatusUnauthorized, 40101, "missing widget session")
			return
		}

		claims, err := auth.ParseWidgetToken(tok, secret)
		if err != nil {
			common.Abort(c, http.StatusUnauthorized, 40101, "invalid widget session")
			return
		}

		ctrl, ok := reg.Get(claims.Subject)
		if !ok {
			common.Abort(c, http.StatusNotFound, 40404, "widget session expired")
			return
		}

		if claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) < ttl/2 {
			fresh, err := auth.SignWidgetToken(claims.Subject, claims.ConversationID, secret, ttl)
			if err != nil {
				slog.WarnContext(c.Request.Context(), "widget token refresh failed", "err", err)
			} else {
				c.Header(WidgetSessionHeader, fresh)
				SetWidgetCookie(c, fresh, ttl, secureCookie)
			}
		}

		c.Set(WidgetSessionIDKey, claims.Subject)
		c.Set(WidgetControllerKey, ctrl)
		c.Request = c.Request.WithContext(logger.WithSessionID(c.Request.Context(), claims.Subject))
		c.Next()
	}
}
