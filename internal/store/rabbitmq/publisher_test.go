package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestJobMessage_RoundTrip(t *testing.T) {
	b, err := EncodeJob("01JOB")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != `{"job_id":"01JOB"}` {
		t.Fatalf("unexpected body: %s", b)
	}
	id, err := DecodeJob(b)
	if err != nil || id != "01JOB" {
		t.Fatalf("decode: id=%q err=%v", id, err)
	}
}

func TestDecodeJob_Rejects(t *testing.T) {
	for _, body := range []string{`{}`, `not json`, `{"job_id":""}`} {
		if _, err := DecodeJob([]byte(body)); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}

func TestAttempt(t *testing.T) {
	cases := []struct {
		headers amqp.Table
		want    int
	}{
		{nil, 0},
		{amqp.Table{"x-attempt": int32(2)}, 2},
		{amqp.Table{"x-attempt": int64(3)}, 3},
		{amqp.Table{"x-attempt": "4"}, 0},
	}
	for _, c := range cases {
		if got := Attempt(c.headers); got != c.want {
			t.Fatalf("Attempt(%v) = %d, want %d", c.headers, got, c.want)
		}
	}
}

func TestRetryDelay(t *testing.T) {
	cases := map[int]time.Duration{
		0:  5 * time.Second,
		1:  5 * time.Second,
		2:  10 * time.Second,
		4:  40 * time.Second,
		10: 5 * time.Minute,
	}
	for attempt, want := range cases {
		if got := RetryDelay(attempt); got != want {
			t.Fatalf("RetryDelay(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestRetryTiers_OneQueuePerDelay(t *testing.T) {
	tiers := RetryTiers()
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second,
		80 * time.Second, 160 * time.Second, 5 * time.Minute}
	if len(tiers) != len(want) {
		t.Fatalf("unexpected tiers: %v", tiers)
	}
	for i := range want {
		if tiers[i] != want[i] {
			t.Fatalf("tier %d = %s, want %s", i, tiers[i], want[i])
		}
	}

	// every attempt lands on a declared tier
	names := map[string]bool{}
	for _, d := range tiers {
		names[RetryQueue("contact_requests", d)] = true
	}
	for attempt := 0; attempt < 20; attempt++ {
		q := RetryQueue("contact_requests", RetryDelay(attempt))
		if !names[q] {
			t.Fatalf("attempt %d uses undeclared queue %s", attempt, q)
		}
	}
	if q := RetryQueue("contact_requests", 10*time.Second); q != "contact_requests.retry.10s" {
		t.Fatalf("unexpected queue name %q", q)
	}
}
