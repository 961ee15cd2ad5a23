package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/snapquestion/internal/config"
	"github.com/suPer8Hu/snapquestion/internal/contact"
	"github.com/suPer8Hu/snapquestion/internal/db"
	"github.com/suPer8Hu/snapquestion/internal/email"
	"github.com/suPer8Hu/snapquestion/internal/logger"
	"github.com/suPer8Hu/snapquestion/internal/store/rabbitmq"
)

const maxAttempts = 5

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()
	logger.Setup(cfg.IsProduction())

	gdb := db.Connect(cfg.DBDSN)

	repo := contact.NewRepo(gdb)
	if err := repo.AutoMigrate(); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	notifier := email.NewContactNotifier(email.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}, cfg.SupportInbox)

	// the worker never publishes
	svc := contact.NewService(repo, nil, notifier)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	//  strict concurrency control
	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency, "smtp", notifier.SMTP.Enabled())

	// workers share ch for retry publishes
	var retryMu sync.Mutex
	park := func(id string, body []byte, attempt int) bool {
		// bookkeeping must finish even when shutdown cancelled ctx
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		retryMu.Lock()
		defer retryMu.Unlock()
		if err := rabbitmq.Retry(wctx, ch, cfg.RabbitQueue, body, attempt); err != nil {
			slog.Error("retry publish failed", "id", id, "err", err)
			return false
		}
		return true
	}
	requeue := func(id string) bool {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		ok, err := svc.Retry(wctx, id)
		if err != nil {
			slog.Error("requeue failed", "id", id, "err", err)
		}
		return err == nil && ok
	}

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				id, err := rabbitmq.DecodeJob(d.Body)
				if err != nil {
					slog.Warn("bad message", "worker", workerID, "err", err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				err = svc.Deliver(ctx, id)
				if errors.Is(err, contact.ErrInFlight) {
					// held by another worker; look again once its lease may have run out
					if park(id, d.Body, rabbitmq.Attempt(d.Headers)) {
						_ = d.Ack(false)
					} else {
						_ = d.Nack(false, true)
					}
					continue
				}
				if err != nil {
					attempt := rabbitmq.Attempt(d.Headers) + 1
					slog.Error("contact delivery failed", "worker", workerID, "id", id, "attempt", attempt, "cost", time.Since(start), "err", err)
					if attempt < maxAttempts && requeue(id) && park(id, d.Body, attempt) {
						_ = d.Ack(false)
						continue
					}
					// dead-lettered; the row stays undelivered
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					slog.Error("ack failed", "worker", workerID, "id", id, "err", err)
				}
				if cost := time.Since(start); cost > 2*time.Second {
					slog.Info("slow contact delivery", "id", id, "cost", cost)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				slog.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}
