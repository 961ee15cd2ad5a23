package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/snapquestion/internal/answer"
	"github.com/suPer8Hu/snapquestion/internal/config"
	"github.com/suPer8Hu/snapquestion/internal/contact"
	"github.com/suPer8Hu/snapquestion/internal/db"
	"github.com/suPer8Hu/snapquestion/internal/httpapi"
	"github.com/suPer8Hu/snapquestion/internal/httpapi/handlers"
	"github.com/suPer8Hu/snapquestion/internal/logger"
	"github.com/suPer8Hu/snapquestion/internal/stats"
	"github.com/suPer8Hu/snapquestion/internal/store/rabbitmq"
	"github.com/suPer8Hu/snapquestion/internal/store/redisstore"
	"github.com/suPer8Hu/snapquestion/internal/widget"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.IsProduction())

	gdb := db.Connect(cfg.DBDSN)
	contactRepo := contact.NewRepo(gdb)
	if err := contactRepo.AutoMigrate(); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer pub.Close()

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rds.Ping(ctx); err != nil {
			// stats fall back to uncached reads
			slog.Warn("redis unavailable", "addr", cfg.RedisAddr, "err", err)
		}
		cancel()
	}

	client := answer.NewClient(cfg.APIBaseURL, answer.IdentityOrDev{Configured: cfg.IDToken})

	// contact requests are delivered by cmd/worker
	contacts := contact.NewService(contactRepo, pub, nil)
	statsSvc := stats.NewService(rds, client, cfg.StatsCacheTTL, redisstore.StatsKey)

	widgets := widget.NewRegistry(func(ec widget.EmbedConfig) (*widget.Controller, error) {
		return widget.NewController(ec, client.WithBaseURL(ec.APIBaseURL))
	}, cfg.WidgetSessionTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go widgets.Run(ctx, time.Minute)

	h := handlers.NewHandler(cfg, widgets, client, contacts, statsSvc)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(cfg, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", cfg.HTTPAddr, "api_base", cfg.APIBaseURL, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}
