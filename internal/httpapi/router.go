package httpapi

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/snapquestion/internal/common"
	"github.com/suPer8Hu/snapquestion/internal/config"
	"github.com/suPer8Hu/snapquestion/internal/httpapi/handlers"
	"github.com/suPer8Hu/snapquestion/internal/httpapi/middleware"
)

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Authorization",
			middleware.WidgetSessionHeader, "Idempotency-Key", "X-Request-ID",
		},
		ExposeHeaders: []string{"X-Request-ID", middleware.WidgetSessionHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		// cookie based widget sessions
		cc.AllowCredentials = true
	}
	return cc
}

func NewRouter(cfg config.Config, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/ping", h.Ping)
	r.GET("/healthz", h.Healthz)

	// widget host
	r.POST("/widget/sessions", h.MountWidget)
	widgetGroup := r.Group("/widget")
	widgetGroup.Use(middleware.WidgetSession(cfg.JWTSecret, cfg.WidgetSessionTTL, cfg.IsProduction(), h.Widgets))
	widgetGroup.DELETE("/sessions", h.UnmountWidget)
	widgetGroup.POST("/messages", h.SendWidgetMessage)
	widgetGroup.POST("/messages/stream", h.StreamWidgetMessage)
	widgetGroup.GET("/transcript", h.GetTranscript)
	widgetGroup.GET("/transcript.html", h.GetTranscriptHTML)
	widgetGroup.DELETE("/transcript", h.ClearTranscript)

	r.GET("/tenants/:tenant_id/stats", h.GetTenantStats)

	// marketing site contact form
	r.POST("/contact", h.SubmitContact)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.AdminRequired(cfg.AdminUser, cfg.AdminPasswordHash))
	adminGroup.GET("/contacts", h.ListContacts)
	adminGroup.GET("/contacts/:id", h.GetContact)
	return r
}
