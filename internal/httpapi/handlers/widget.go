package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/snapquestion/internal/answer"
	"github.com/suPer8Hu/snapquestion/internal/auth"
	"github.com/suPer8Hu/snapquestion/internal/common"
	"github.com/suPer8Hu/snapquestion/internal/httpapi/middleware"
	"github.com/suPer8Hu/snapquestion/internal/widget"
)

func widgetFromContext(c *gin.Context) (*widget.Controller, string, bool) {
	v, ok := c.Get(middleware.WidgetControllerKey)
	if !ok {
		return nil, "", false
	}
	ctrl, ok := v.(*widget.Controller)
	return ctrl, c.GetString(middleware.WidgetSessionIDKey), ok
}

// allowedAPIURL reports whether a script tag may point the widget at u.
func (h *Handler) allowedAPIURL(u string) bool {
	u = strings.TrimRight(u, "/")
	return u == h.Cfg.APIBaseURL || slices.Contains(h.Cfg.WidgetAllowedAPIURLs, u)
}

func hasAPIURL(attrs map[string]string) bool {
	for _, k := range []string{"data-api-url", "api-url", "api_url"} {
		if strings.TrimSpace(attrs[k]) != "" {
			return true
		}
	}
	return false
}

// MountWidget starts a conversation for a host page. The body carries the
// script tag attributes; an empty body mounts with defaults.
func (h *Handler) MountWidget(c *gin.Context) {
	attrs := map[string]string{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&attrs); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
			return
		}
	}

	cfg := widget.ParseEmbedConfig(attrs)
	if !hasAPIURL(attrs) {
		cfg.APIBaseURL = h.Cfg.APIBaseURL
	}
	if !h.allowedAPIURL(cfg.APIBaseURL) {
		common.Fail(c, http.StatusBadRequest, 10011, "api_url not allowed")
		return
	}

	sid, ctrl, err := h.Widgets.Mount(cfg)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "widget mount failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	ttl := h.Cfg.WidgetSessionTTL
	token, err := auth.SignWidgetToken(sid, ctrl.ConversationID(), h.Cfg.JWTSecret, ttl)
	if err != nil {
		h.Widgets.Unmount(sid)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to sign token")
		return
	}

	middleware.SetWidgetCookie(c, token, ttl, h.Cfg.IsProduction())

	common.OK(c, gin.H{
		"session_token":   token,
		"conversation_id": ctrl.ConversationID(),
		"config":          ctrl.Config(),
		"expires_in":      int(ttl.Seconds()),
	})
}

func (h *Handler) UnmountWidget(c *gin.Context) {
	_, sid, ok := widgetFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "missing widget session")
		return
	}
	h.Widgets.Unmount(sid)
	c.SetCookie(middleware.WidgetSessionCookie, "", -1, "/widget", "", h.Cfg.IsProduction(), true)
	common.OK(c, gin.H{"unmounted": true})
}

type sendWidgetMessageReq struct {
	// not "required": blank input is a silent no-op, not a 400
	Message string `json:"message"`
}

func rejectReason(err error) string {
	if errors.Is(err, widget.ErrPending) {
		return "pending"
	}
	return "empty"
}

// SendWidgetMessage accepts a message and returns at once. With ?wait=true it
// holds the response until the reply turn is appended.
func (h *Handler) SendWidgetMessage(c *gin.Context) {
	ctrl, _, ok := widgetFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "missing widget session")
		return
	}

	var req sendWidgetMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := answer.WithIdentityToken(c.Request.Context(), bearer(c))
	rec, err := ctrl.Submit(ctx, req.Message)
	if err != nil {
		if widget.IsRejected(err) {
			common.OK(c, gin.H{"accepted": false, "reason": rejectReason(err)})
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if c.Query("wait") != "true" {
		c.JSON(http.StatusAccepted, gin.H{
			"code":    0,
			"message": "ok",
			"data":    gin.H{"accepted": true, "turn": widget.RenderTurn(rec.User)},
		})
		return
	}

	select {
	case reply := <-rec.Done:
		common.OK(c, gin.H{
			"accepted": true,
			"turn":     widget.RenderTurn(rec.User),
			"reply":    widget.RenderTurn(reply),
		})
	case <-c.Request.Context().Done():
		// client went away; the reply still lands in the transcript
	}
}

// StreamWidgetMessage sends a message and streams the exchange as SSE:
// user, typing, turn, done (ping every PingInterval meanwhile).
func (h *Handler) StreamWidgetMessage(c *gin.Context) {
	ctrl, _, ok := widgetFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "missing widget session")
		return
	}

	var req sendWidgetMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()
	rec, err := ctrl.Submit(answer.WithIdentityToken(ctx, bearer(c)), req.Message)
	if err != nil {
		if widget.IsRejected(err) {
			common.OK(c, gin.H{"accepted": false, "reason": rejectReason(err)})
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\n", event)
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	writeJSON("user", widget.RenderTurn(rec.User))
	writeJSON("typing", gin.H{"typing": true})

	ticker := time.NewTicker(h.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case reply := <-rec.Done:
			writeJSON("turn", widget.RenderTurn(reply))
			writeJSON("done", gin.H{"typing": false, "turn_id": reply.ID})
			return

		case <-ticker.C:
			writeJSON("ping", gin.H{"ts": time.Now().Unix()})

		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) GetTranscript(c *gin.Context) {
	ctrl, _, ok := widgetFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "missing widget session")
		return
	}
	common.OK(c, widget.Render(ctrl.Config(), ctrl.Snapshot()))
}

func (h *Handler) GetTranscriptHTML(c *gin.Context) {
	ctrl, _, ok := widgetFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "missing widget session")
		return
	}
	html, err := widget.RenderHTML(widget.Render(ctrl.Config(), ctrl.Snapshot()))
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "render transcript failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50004, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (h *Handler) ClearTranscript(c *gin.Context) {
	ctrl, _, ok := widgetFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "missing widget session")
		return
	}
	ctrl.Clear()
	common.OK(c, gin.H{"conversation_id": ctrl.ConversationID(), "turns": 0})
}
