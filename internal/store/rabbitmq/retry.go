package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const attemptHeader = "x-attempt"

const (
	baseRetryDelay = 5 * time.Second
	maxRetryDelay  = 5 * time.Minute
)

// Attempt returns how many times a delivery has already failed.
func Attempt(headers amqp.Table) int {
	switch v := headers[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// RetryDelay doubles from 5s per attempt, capped at 5m.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseRetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// RetryTiers lists every delay RetryDelay can return, shortest first.
func RetryTiers() []time.Duration {
	var tiers []time.Duration
	for attempt := 1; ; attempt++ {
		d := RetryDelay(attempt)
		tiers = append(tiers, d)
		if d == maxRetryDelay {
			return tiers
		}
	}
}

// RetryQueue names the retry queue of one tier, e.g. contact_requests.retry.10s.
// Each tier is its own queue with a queue-level TTL: RabbitMQ only expires
// messages at the head of a queue, so mixed delays in one queue would hold
// short retries behind long ones.
func RetryQueue(queue string, delay time.Duration) string {
	return fmt.Sprintf("%s.retry.%ds", queue, int64(delay/time.Second))
}

// Retry parks body on the retry queue for RetryDelay(attempt). It expires
// back onto queue carrying attempt in its headers.
func Retry(ctx context.Context, ch *amqp.Channel, queue string, body []byte, attempt int) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(cctx, "", RetryQueue(queue, RetryDelay(attempt)), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{attemptHeader: int32(attempt)},
	})
}
