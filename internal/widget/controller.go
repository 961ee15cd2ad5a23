package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/snapquestion/internal/answer"
	"github.com/suPer8Hu/snapquestion/internal/common"
	"github.com/suPer8Hu/snapquestion/internal/logger"
)

var (
	ErrEmptyInput = errors.New("widget: empty message")
	ErrPending    = errors.New("widget: a request is already in flight")
)

// IsRejected reports whether err is a validation rejection. Rejections are
// not failures: nothing was appended and nothing should be shown.
func IsRejected(err error) bool {
	return errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrPending)
}

// Answerer is the remote answering service.
type Answerer interface {
	Answer(ctx context.Context, req answer.Request) (*answer.Response, error)
}

// Normalize trims raw input and reports whether it is sendable.
func Normalize(raw string) (string, bool) {
	msg := strings.TrimSpace(raw)
	return msg, msg != ""
}

// Receipt is handed back for an accepted message. Done yields the single
// assistant turn (answer or error) once the request settles, then closes.
type Receipt struct {
	User Turn
	Done <-chan Turn
}

type Controller struct {
	cfg    EmbedConfig
	client Answerer
	log    *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	session Session
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController mounts a session for cfg. The conversation id is a ULID of
// the mount time and stays fixed for the life of the controller.
func NewController(cfg EmbedConfig, client Answerer, opts ...Option) (*Controller, error) {
	if client == nil {
		return nil, errors.New("widget: answerer is nil")
	}
	if cfg.TenantID == "" {
		cfg.TenantID = DefaultTenantID
	}
	c := &Controller{cfg: cfg, client: client, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(c)
	}

	started := c.now()
	id, err := common.NewULIDAt(started)
	if err != nil {
		return nil, fmt.Errorf("widget: conversation id: %w", err)
	}
	c.session = Session{
		TenantID:       cfg.TenantID,
		ConversationID: "conv_" + id,
		StartedAt:      started,
	}
	return c, nil
}

func (c *Controller) Config() EmbedConfig { return c.cfg }

func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ConversationID
}

// Snapshot returns a copy of the session; callers may not mutate the live one.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.snapshot()
}

func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Pending
}

// Submit appends the user turn and sends it. It never blocks on the network.
// Empty input or a submit while pending returns a rejection and changes
// nothing. The request outlives ctx cancellation; values (request id,
// identity token) are kept.
func (c *Controller) Submit(ctx context.Context, raw string) (*Receipt, error) {
	msg, ok := Normalize(raw)
	if !ok {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if c.session.Pending {
		c.mu.Unlock()
		return nil, ErrPending
	}
	user := c.session.append(Turn{Sender: SenderUser, Text: msg}, c.now())
	c.session.Pending = true
	convID := c.session.ConversationID
	req := answer.Request{
		TenantID:       c.session.TenantID,
		QueryText:      msg,
		ConversationID: &convID,
	}
	c.mu.Unlock()

	done := make(chan Turn, 1)
	go c.dispatch(context.WithoutCancel(ctx), req, done)
	return &Receipt{User: user, Done: done}, nil
}

// Clear drops every turn. The conversation id is kept, and a request still in
// flight lands after whatever the transcript holds when it settles.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Turns = nil
}

func (c *Controller) dispatch(ctx context.Context, req answer.Request, done chan<- Turn) {
	reply := Turn{Sender: SenderAssistant, Text: ErrorText, IsError: true}

	defer func() {
		if r := recover(); r != nil {
			c.log.ErrorContext(ctx, "answer request panicked",
				"conversation_id", *req.ConversationID, "panic", fmt.Sprint(r))
			reply = Turn{Sender: SenderAssistant, Text: ErrorText, IsError: true}
		}
		c.mu.Lock()
		t := c.session.append(reply, c.now())
		c.session.Pending = false
		c.mu.Unlock()

		done <- t
		close(done)
	}()

	start := time.Now()
	resp, err := c.client.Answer(ctx, req)
	if err == nil && resp == nil {
		err = answer.ErrMalformedResponse
	}
	if err != nil {
		c.log.ErrorContext(ctx, "answer request failed",
			"tenant_id", req.TenantID,
			"conversation_id", *req.ConversationID,
			"query", logger.Truncate(req.QueryText, 80),
			"cost", time.Since(start),
			"err", err,
		)
		return
	}

	md := &Metadata{Confidence: resp.Confidence, Escalated: resp.Escalated}
	for _, cit := range resp.Citations {
		md.Citations = append(md.Citations, Citation{Title: cit.Title, Page: cit.Page})
	}
	reply = Turn{Sender: SenderAssistant, Text: resp.Answer, Metadata: md}

	if time.Since(start) > 5*time.Second {
		c.log.WarnContext(ctx, "slow answer", "conversation_id", *req.ConversationID, "cost", time.Since(start))
	}
}
