package handlers

import (
	"context"
	"time"

	"github.com/suPer8Hu/snapquestion/internal/answer"
	"github.com/suPer8Hu/snapquestion/internal/config"
	"github.com/suPer8Hu/snapquestion/internal/contact"
	"github.com/suPer8Hu/snapquestion/internal/widget"
)

// HealthChecker is the answering API's health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*answer.Health, error)
}

// StatsReader serves tenant usage stats.
type StatsReader interface {
	Get(ctx context.Context, tenantID string) (*answer.TenantStats, bool, error)
}

type Handler struct {
	Cfg      config.Config
	Widgets  *widget.Registry
	Backend  HealthChecker
	Contacts *contact.Service
	Stats    StatsReader

	// heartbeat period of SSE streams
	PingInterval time.Duration
}

func NewHandler(cfg config.Config, widgets *widget.Registry, backend HealthChecker, contacts *contact.Service, st StatsReader) *Handler {
	return &Handler{
		Cfg:          cfg,
		Widgets:      widgets,
		Backend:      backend,
		Contacts:     contacts,
		Stats:        st,
		PingInterval: 15 * time.Second,
	}
}
